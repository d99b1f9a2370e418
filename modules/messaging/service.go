package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/example/campusmesh-dm/events"
	"github.com/example/campusmesh-dm/store"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// unreadConcurrency bounds the per-conversation reads of one aggregation.
const unreadConcurrency = 8

// ViewRegistry reports which conversation a user has open.
type ViewRegistry interface {
	IsViewing(userID, conversationID string) bool
}

// NameResolver resolves peer display names for conversation summaries.
type NameResolver interface {
	ResolveDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Publisher announces messaging events.
type Publisher interface {
	PublishMessageSent(event events.MessageSentEvent) error
	PublishConversationDeleted(event events.ConversationDeletedEvent) error
}

// Service implements the message log, seen receipts, the conversation
// directory and unread aggregation on top of a Store.
type Service struct {
	store     store.Store
	views     ViewRegistry
	names     NameResolver
	publisher Publisher
	logger    types.Logger
	now       func() time.Time

	seqMu      sync.Mutex
	lastSentAt time.Time
}

// NewService creates a messaging service. views, names and publisher may be nil.
func NewService(st store.Store, views ViewRegistry, names NameResolver, publisher Publisher, logger types.Logger) *Service {
	return &Service{
		store:     st,
		views:     views,
		names:     names,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func notParticipant(conversationID, userID string) error {
	return fmt.Errorf("%w: user %s in conversation %s", dm.ErrNotParticipant, userID, conversationID)
}

// participants parses conversationID and checks that userID belongs to it.
func participants(conversationID, userID string) (dm.Participants, error) {
	p, err := dm.ParseConversationID(conversationID)
	if err != nil {
		return dm.Participants{}, err
	}
	if err := dm.ValidateUserID(userID); err != nil {
		return dm.Participants{}, err
	}
	if !p.Includes(userID) {
		return dm.Participants{}, notParticipant(conversationID, userID)
	}
	return p, nil
}

// OpenConversation returns the conversation id for the pair without writing anything.
func (s *Service) OpenConversation(_ context.Context, userID, peerID string) (string, error) {
	return dm.OpenConversationID(userID, peerID)
}

// next assigns the id and timestamp of a new message. Timestamps never go
// backwards, so (SentAt, ID) order matches assignment order.
func (s *Service) next() (string, time.Time, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	now := s.now()
	if now.Before(s.lastSentAt) {
		now = s.lastSentAt
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate message id: %w", err)
	}
	s.lastSentAt = now
	return id.String(), now, nil
}

// Send appends a message and updates both participants' directory entries.
func (s *Service) Send(ctx context.Context, conversationID, senderID, body string) (dm.Message, error) {
	p, err := dm.ParseConversationID(conversationID)
	if err != nil {
		return dm.Message{}, err
	}
	if err := dm.ValidateUserID(senderID); err != nil {
		return dm.Message{}, err
	}
	if !p.Includes(senderID) {
		return dm.Message{}, dm.NotParticipantError(conversationID, senderID)
	}
	if err := dm.ValidateBody(body); err != nil {
		return dm.Message{}, err
	}

	id, sentAt, err := s.next()
	if err != nil {
		return dm.Message{}, err
	}

	rec := messageRecord{SenderID: senderID, Body: body, SentAt: sentAt}
	if err := store.CreateJSON(ctx, s.store, messageKey(conversationID, id), rec); err != nil {
		return dm.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	preview := dm.Preview(body)
	conv := conversationRecord{
		Participants:       p.Users(),
		LastMessagePreview: preview,
		LastActivityAt:     sentAt,
	}
	if err := store.PutJSON(ctx, s.store, conversationKey(conversationID), conv); err != nil {
		return dm.Message{}, fmt.Errorf("failed to update conversation: %w", err)
	}
	for _, u := range p.Users() {
		summary := summaryRecord{
			ConversationID:     conversationID,
			PeerID:             p.Peer(u),
			LastMessagePreview: preview,
			LastActivityAt:     sentAt,
		}
		if err := store.PutJSON(ctx, s.store, userConversationKey(u, conversationID), summary); err != nil {
			return dm.Message{}, fmt.Errorf("failed to update conversation list of %s: %w", u, err)
		}
	}

	msg := dm.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		SentAt:         sentAt,
	}

	recipient := p.Peer(senderID)
	event := events.MessageSentEvent{
		ConversationID:   conversationID,
		MessageID:        id,
		SenderID:         senderID,
		RecipientID:      recipient,
		Preview:          preview,
		SentAt:           sentAt,
		RecipientViewing: s.views != nil && s.views.IsViewing(recipient, conversationID),
	}
	if s.publisher != nil {
		if err := s.publisher.PublishMessageSent(event); err != nil {
			s.logger.Warn("Failed to publish MessageSent event", "conversationID", conversationID, "messageID", id, "error", err)
		}
	}

	s.logger.Debug("Message sent", "conversationID", conversationID, "messageID", id, "senderID", senderID)
	return msg, nil
}

// readMessages returns the ordered log of conversationID without access checks.
func (s *Service) readMessages(ctx context.Context, conversationID string) ([]dm.Message, error) {
	entries, err := s.store.List(ctx, messagesPrefix(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return decodeMessages(conversationID, entries)
}

// ListMessages returns the messages of a conversation in (SentAt, ID) order.
func (s *Service) ListMessages(ctx context.Context, conversationID, requesterID string) ([]dm.Message, error) {
	if _, err := participants(conversationID, requesterID); err != nil {
		return nil, err
	}
	return s.readMessages(ctx, conversationID)
}

// MarkSeen records a receipt for every message viewerID has not seen and
// did not send. Receipts are write-once, so concurrent calls cannot move an
// existing acknowledgement. It returns the number of receipts written.
func (s *Service) MarkSeen(ctx context.Context, conversationID, viewerID string) (int, error) {
	if _, err := participants(conversationID, viewerID); err != nil {
		return 0, err
	}
	messages, err := s.readMessages(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	return s.markUnseen(ctx, conversationID, viewerID, messages)
}

func (s *Service) markUnseen(ctx context.Context, conversationID, viewerID string, messages []dm.Message) (int, error) {
	written := 0
	for _, m := range dm.Unseen(messages, viewerID) {
		err := store.CreateJSON(ctx, s.store, seenKey(conversationID, m.ID, viewerID), s.now())
		if errors.Is(err, store.ErrKeyExists) {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("failed to mark message %s seen: %w", m.ID, err)
		}
		written++
	}
	return written, nil
}

// UnreadCount returns the number of messages in conversationID userID has
// neither sent nor seen.
func (s *Service) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	messages, err := s.ListMessages(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	return dm.UnreadCount(messages, userID), nil
}

// summaries reads userID's directory and derives the unread counts from a
// fresh read of every conversation.
func (s *Service) summaries(ctx context.Context, userID string) ([]dm.ConversationSummary, error) {
	if err := dm.ValidateUserID(userID); err != nil {
		return nil, err
	}
	entries, err := s.store.List(ctx, userConversationsPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation list: %w", err)
	}

	out := make([]dm.ConversationSummary, 0, len(entries))
	for _, e := range entries {
		rest, ok := store.Relative(userConversationsPrefix(userID), e.Key)
		if !ok || len(rest) != 1 {
			continue
		}
		rec, err := decodeSummary(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, dm.ConversationSummary{
			ConversationID:     rest[0],
			PeerID:             rec.PeerID,
			LastMessagePreview: rec.LastMessagePreview,
			LastActivityAt:     rec.LastActivityAt,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(unreadConcurrency)
	for i := range out {
		g.Go(func() error {
			messages, err := s.readMessages(gctx, out[i].ConversationID)
			if err != nil {
				return err
			}
			out[i].UnreadCount = dm.UnreadCount(messages, userID)
			out[i].HasUnread = out[i].UnreadCount > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dm.SortSummaries(out)
	return out, nil
}

// ListConversations returns userID's conversations, most recent first,
// with unread counts and peer display names.
func (s *Service) ListConversations(ctx context.Context, userID string) (dm.ConversationList, error) {
	out, err := s.summaries(ctx, userID)
	if err != nil {
		return dm.ConversationList{}, err
	}
	s.attachNames(ctx, out)
	return dm.ConversationList{
		UserID:        userID,
		Conversations: out,
		TotalUnread:   dm.TotalUnread(out),
	}, nil
}

// TotalUnread sums the unread counts over userID's conversations.
func (s *Service) TotalUnread(ctx context.Context, userID string) (int, error) {
	out, err := s.summaries(ctx, userID)
	if err != nil {
		return 0, err
	}
	return dm.TotalUnread(out), nil
}

func (s *Service) attachNames(ctx context.Context, summaries []dm.ConversationSummary) {
	if s.names == nil || len(summaries) == 0 {
		return
	}
	peers := make([]string, 0, len(summaries))
	for _, sum := range summaries {
		peers = append(peers, sum.PeerID)
	}
	names, err := s.names.ResolveDisplayNames(ctx, peers)
	if err != nil {
		s.logger.Warn("Failed to resolve peer display names", "error", err)
		return
	}
	for i := range summaries {
		summaries[i].PeerDisplayName = names[summaries[i].PeerID]
	}
}

// DeleteConversation removes the conversation, its messages and receipts,
// and both participants' directory entries.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, requesterID string) error {
	p, err := participants(conversationID, requesterID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, conversationKey(conversationID)); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	for _, u := range p.Users() {
		if err := s.store.Delete(ctx, userConversationKey(u, conversationID)); err != nil {
			return fmt.Errorf("failed to delete conversation list entry of %s: %w", u, err)
		}
	}

	if s.publisher != nil {
		event := events.ConversationDeletedEvent{
			ConversationID: conversationID,
			DeletedBy:      requesterID,
			Participants:   p.Users(),
			DeletedAt:      s.now(),
		}
		if err := s.publisher.PublishConversationDeleted(event); err != nil {
			s.logger.Warn("Failed to publish ConversationDeleted event", "conversationID", conversationID, "error", err)
		}
	}

	s.logger.Info("Conversation deleted", "conversationID", conversationID, "by", requesterID)
	return nil
}
