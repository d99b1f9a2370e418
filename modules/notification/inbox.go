package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/example/campusmesh-dm/events"
	"github.com/example/campusmesh-dm/store"
	nanoid "github.com/jaevor/go-nanoid"
)

// IDLength is the length of a notification id.
const IDLength = 21

// ErrNotificationNotFound is returned when a notification does not exist.
var ErrNotificationNotFound = fmt.Errorf("notification %w", dm.ErrNotFound)

// Inbox stores per-user notification records.
type Inbox struct {
	store store.Store
	newID func() string
	now   func() time.Time
}

// NewInbox creates an inbox over st.
func NewInbox(st store.Store) (*Inbox, error) {
	gen, err := nanoid.Standard(IDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	return &Inbox{
		store: st,
		newID: gen,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func inboxPrefix(userID string) string {
	return store.Key("notifications", userID)
}

func notificationKey(userID, notificationID string) string {
	return store.Key("notifications", userID, notificationID)
}

// Deliver records a message notification for the recipient of event. A
// message to oneself creates nothing and returns nil.
func (in *Inbox) Deliver(ctx context.Context, event events.MessageSentEvent) (*dm.NotificationRecord, error) {
	if event.SenderID == event.RecipientID {
		return nil, nil
	}
	if err := dm.ValidateUserID(event.RecipientID); err != nil {
		return nil, err
	}

	rec := dm.NotificationRecord{
		ID:         in.newID(),
		Kind:       dm.NotificationKindMessage,
		FromUserID: event.SenderID,
		Payload: dm.NotificationPayload{
			ConversationID: event.ConversationID,
			MessageID:      event.MessageID,
			Preview:        event.Preview,
		},
		CreatedAt: in.now(),
		Read:      event.RecipientViewing,
	}
	if err := store.CreateJSON(ctx, in.store, notificationKey(event.RecipientID, rec.ID), rec); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	return &rec, nil
}

// List returns the notifications of userID, newest first.
func (in *Inbox) List(ctx context.Context, userID string) ([]dm.NotificationRecord, error) {
	if err := dm.ValidateUserID(userID); err != nil {
		return nil, err
	}
	entries, err := in.store.List(ctx, inboxPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}

	out := make([]dm.NotificationRecord, 0, len(entries))
	for _, e := range entries {
		rest, ok := store.Relative(inboxPrefix(userID), e.Key)
		if !ok || len(rest) != 1 {
			continue
		}
		var rec dm.NotificationRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode notification %s: %w", rest[0], err)
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UnreadCount returns the number of unread notifications of userID.
func (in *Inbox) UnreadCount(ctx context.Context, userID string) (int, error) {
	records, err := in.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if !r.Read {
			n++
		}
	}
	return n, nil
}

// MarkRead flags one notification of userID as read.
func (in *Inbox) MarkRead(ctx context.Context, userID, notificationID string) (dm.NotificationRecord, error) {
	if err := dm.ValidateUserID(userID); err != nil {
		return dm.NotificationRecord{}, err
	}
	if !store.ValidSegment(notificationID) {
		return dm.NotificationRecord{}, dm.Validationf("malformed notification id %q", notificationID)
	}

	key := notificationKey(userID, notificationID)
	rec, err := store.GetJSON[dm.NotificationRecord](ctx, in.store, key)
	if errors.Is(err, store.ErrKeyNotFound) {
		return dm.NotificationRecord{}, ErrNotificationNotFound
	}
	if err != nil {
		return dm.NotificationRecord{}, fmt.Errorf("failed to read notification: %w", err)
	}
	if rec.Read {
		return rec, nil
	}
	rec.Read = true
	if err := store.PutJSON(ctx, in.store, key, rec); err != nil {
		return dm.NotificationRecord{}, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return rec, nil
}

// Purge removes the notifications of userID that refer to conversationID.
func (in *Inbox) Purge(ctx context.Context, userID, conversationID string) (int, error) {
	records, err := in.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if r.Payload.ConversationID != conversationID {
			continue
		}
		if err := in.store.Delete(ctx, notificationKey(userID, r.ID)); err != nil {
			return n, fmt.Errorf("failed to delete notification %s: %w", r.ID, err)
		}
		n++
	}
	return n, nil
}

// WatchUnreadCount pushes the unread count of userID on start and whenever
// it changes, until ctx is done.
func (in *Inbox) WatchUnreadCount(ctx context.Context, userID string, emit func(count int) error) error {
	if err := dm.ValidateUserID(userID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := inboxPrefix(userID)
	changes, err := in.store.Watch(ctx, prefix)
	if err != nil {
		return err
	}

	last := -1
	for {
		n, err := in.UnreadCount(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n != last {
			if err := emit(n); err != nil {
				return err
			}
			last = n
		}

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: watch on %s lost", dm.ErrTransientIO, prefix)
			}
		}
	}
}
