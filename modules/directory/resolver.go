package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// MaxDisplayNameLength bounds a display name in runes.
const MaxDisplayNameLength = 50

const cachePrefix = "dm:displayname:"

// Placeholder is the display name of a user without a profile.
func Placeholder(userID string) string {
	if len(userID) <= 6 {
		return "User_" + userID
	}
	return "User_" + userID[len(userID)-6:]
}

// ValidateDisplayName trims name and checks its length.
func ValidateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", dm.Validationf("display name cannot be empty")
	}
	if !utf8.ValidString(name) {
		return "", dm.Validationf("display name is not valid UTF-8")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", dm.Validationf("display name exceeds %d characters", MaxDisplayNameLength)
	}
	return name, nil
}

// Resolver resolves display names with a cache-aside lookup.
type Resolver struct {
	repo    ProfileRepository
	cache   Cache
	ttl     time.Duration
	sfGroup singleflight.Group // Prevents cache stampede
	logger  types.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(repo ProfileRepository, cache Cache, ttl time.Duration, logger types.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// ResolveDisplayName returns the display name of userID. Users without a
// profile, and lookups that fail, get the placeholder name.
func (r *Resolver) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	if err := dm.ValidateUserID(userID); err != nil {
		return "", err
	}

	if name, ok := r.cached(ctx, userID); ok {
		return name, nil
	}

	val, err, _ := r.sfGroup.Do(userID, func() (any, error) {
		p, err := r.repo.FindByID(ctx, userID)
		if err != nil {
			return "", err
		}
		return p.DisplayName, nil
	})
	if err != nil {
		if !errors.Is(err, dm.ErrNotFound) {
			r.logger.Warn("Display name lookup failed, using placeholder", "userID", userID, "error", err)
			return Placeholder(userID), nil
		}
		val = Placeholder(userID)
	}

	name := val.(string)
	r.store(ctx, userID, name)
	return name, nil
}

// ResolveDisplayNames resolves several users. Unknown users map to placeholders.
func (r *Resolver) ResolveDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if _, done := out[id]; done {
			continue
		}
		name, err := r.ResolveDisplayName(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, nil
}

// UpdateProfile sets the display name of userID and invalidates the cache.
func (r *Resolver) UpdateProfile(ctx context.Context, userID, displayName string) (*Profile, error) {
	if err := dm.ValidateUserID(userID); err != nil {
		return nil, err
	}
	name, err := ValidateDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	p, err := r.repo.Upsert(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dm.ErrTransientIO, err)
	}

	r.sfGroup.Forget(userID)
	if r.cache != nil {
		if err := r.cache.DeleteWithContext(ctx, cachePrefix+userID); err != nil {
			r.logger.Warn("Failed to invalidate display name", "userID", userID, "error", err)
		}
	}
	return p, nil
}

func (r *Resolver) cached(ctx context.Context, userID string) (string, bool) {
	if r.cache == nil {
		return "", false
	}
	data, err := r.cache.GetWithContext(ctx, cachePrefix+userID)
	if err != nil {
		r.logger.Warn("Display name cache read failed", "userID", userID, "error", err)
		return "", false
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (r *Resolver) store(ctx context.Context, userID, name string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetWithContext(ctx, cachePrefix+userID, []byte(name), r.ttl); err != nil {
		r.logger.Warn("Failed to cache display name", "userID", userID, "error", err)
	}
}
