package messaging

import (
	"context"
	"fmt"
	"reflect"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/example/campusmesh-dm/store"
	"github.com/example/campusmesh-dm/subscription"
)

// MessagesFunc receives a fresh ordered snapshot of a conversation.
type MessagesFunc func(messages []dm.Message) error

// ConversationsFunc receives a fresh snapshot of a user's directory.
type ConversationsFunc func(list dm.ConversationList) error

// LiveQueries are the push-based reads used by client sessions.
type LiveQueries interface {
	WatchMessages(ctx context.Context, conversationID, viewerID string, markSeen bool, emit MessagesFunc) error
	WatchConversations(ctx context.Context, userID string, emit ConversationsFunc) error
}

var _ LiveQueries = (*Service)(nil)

// errWatchLost is returned when a store watch closes while its context is live.
func errWatchLost(prefix string) error {
	return fmt.Errorf("%w: watch on %s lost", dm.ErrTransientIO, prefix)
}

// WatchMessages pushes the ordered log of conversationID on start and on
// every change below it until ctx is done. With markSeen set, every
// snapshot acknowledges the messages the viewer has not seen yet.
func (s *Service) WatchMessages(ctx context.Context, conversationID, viewerID string, markSeen bool, emit MessagesFunc) error {
	if _, err := participants(conversationID, viewerID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := messagesPrefix(conversationID)
	changes, err := s.store.Watch(ctx, prefix)
	if err != nil {
		return err
	}

	for {
		messages, err := s.readMessages(ctx, conversationID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := emit(messages); err != nil {
			return err
		}
		if markSeen {
			if _, err := s.markUnseen(ctx, conversationID, viewerID, messages); err != nil && ctx.Err() == nil {
				s.logger.Warn("Failed to mark messages seen", "conversationID", conversationID, "viewerID", viewerID, "error", err)
			}
		}

		if !waitForChange(ctx, changes) {
			if ctx.Err() != nil {
				return nil
			}
			return errWatchLost(prefix)
		}
	}
}

// waitForChange blocks until at least one event arrives, then drains the
// events already queued. It returns false when the channel closed or ctx ended.
func waitForChange(ctx context.Context, changes <-chan store.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-changes:
		if !ok {
			return false
		}
	}
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

// WatchConversations pushes userID's directory on start and whenever the
// directory or a message in any listed conversation changes. Per-conversation
// watches are added and removed as the directory changes.
func (s *Service) WatchConversations(ctx context.Context, userID string, emit ConversationsFunc) error {
	if err := dm.ValidateUserID(userID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := userConversationsPrefix(userID)
	listChanges, err := s.store.Watch(ctx, prefix)
	if err != nil {
		return err
	}

	dirty := make(chan struct{}, 1)
	signal := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}

	children := subscription.NewSupervisor(s.logger)
	defer children.Close()

	var last *dm.ConversationList
	for {
		list, err := s.ListConversations(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.reconcileWatches(children, userID, list, signal)

		if last == nil || !reflect.DeepEqual(*last, list) {
			if err := emit(list); err != nil {
				return err
			}
			last = &list
		}

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-listChanges:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errWatchLost(prefix)
			}
		case <-dirty:
		}
	}
}

// reconcileWatches keeps exactly one message watch per listed conversation.
func (s *Service) reconcileWatches(children *subscription.Supervisor, userID string, list dm.ConversationList, signal func()) {
	want := make(map[subscription.Key]string, len(list.Conversations))
	for _, c := range list.Conversations {
		want[subscription.Key{Path: messagesPrefix(c.ConversationID), Subscriber: userID}] = c.ConversationID
	}

	for _, key := range children.Keys() {
		if _, ok := want[key]; !ok {
			children.Unsubscribe(key)
		}
	}
	for key := range want {
		if children.Has(key) {
			continue
		}
		path := key.Path
		_ = children.Subscribe(key, func(ctx context.Context) error {
			return s.forwardChanges(ctx, path, signal)
		})
	}
}

// forwardChanges turns events below prefix into directory refresh signals.
func (s *Service) forwardChanges(ctx context.Context, prefix string, signal func()) error {
	changes, err := s.store.Watch(ctx, prefix)
	if err != nil {
		return err
	}
	// Resync after every (re)subscribe.
	signal()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errWatchLost(prefix)
			}
			signal()
		}
	}
}
