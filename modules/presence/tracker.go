package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/example/campusmesh-dm/store"
	"golang.org/x/sync/errgroup"
)

// Tracker records heartbeats and derives presence status.
type Tracker struct {
	store      store.Store
	staleAfter time.Duration
	now        func() time.Time
}

// NewTracker creates a tracker over st.
func NewTracker(st store.Store, staleAfter time.Duration) *Tracker {
	return &Tracker{
		store:      st,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func presenceKey(userID string) string {
	return store.Key("presence", userID)
}

// Heartbeat marks userID online as of now.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) (dm.PresenceRecord, error) {
	if err := dm.ValidateUserID(userID); err != nil {
		return dm.PresenceRecord{}, err
	}
	rec := dm.PresenceRecord{LastSeenAt: t.now(), IsOnline: true}
	if err := store.PutJSON(ctx, t.store, presenceKey(userID), rec); err != nil {
		return dm.PresenceRecord{}, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return rec, nil
}

// GoOffline marks userID offline as of now.
func (t *Tracker) GoOffline(ctx context.Context, userID string) error {
	if err := dm.ValidateUserID(userID); err != nil {
		return err
	}
	rec := dm.PresenceRecord{LastSeenAt: t.now(), IsOnline: false}
	if err := store.PutJSON(ctx, t.store, presenceKey(userID), rec); err != nil {
		return fmt.Errorf("failed to record offline: %w", err)
	}
	return nil
}

// Record returns the stored presence of userID, or nil when none exists.
func (t *Tracker) Record(ctx context.Context, userID string) (*dm.PresenceRecord, error) {
	if err := dm.ValidateUserID(userID); err != nil {
		return nil, err
	}
	rec, err := store.GetJSON[dm.PresenceRecord](ctx, t.store, presenceKey(userID))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}
	return &rec, nil
}

// Status derives the presence bucket of userID.
func (t *Tracker) Status(ctx context.Context, userID string) (dm.PresenceStatus, error) {
	rec, err := t.Record(ctx, userID)
	if err != nil {
		return dm.PresenceStatus{}, err
	}
	return DeriveStatus(userID, rec, t.now(), t.staleAfter), nil
}

// Statuses derives the presence of several users concurrently.
func (t *Tracker) Statuses(ctx context.Context, userIDs []string) ([]dm.PresenceStatus, error) {
	out := make([]dm.PresenceStatus, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range userIDs {
		g.Go(func() error {
			st, err := t.Status(gctx, id)
			if err != nil {
				return err
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
