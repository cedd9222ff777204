package cache

import (
	"context"
	"time"
)

const (
	// PublishedCampaignsKey holds the global published listing.
	PublishedCampaignsKey = "campaigns:published"
	// RevokedTokenPrefix marks revoked session token ids.
	RevokedTokenPrefix = "blacklist:"
)

// DefaultPublishedTTL bounds how stale the global listing may be. Deadlines
// are evaluated when the listing is built, so the TTL also bounds how long an
// expired campaign can remain listed.
const DefaultPublishedTTL = 30 * time.Second

// InvalidatePublished drops the cached global listing.
func (s *Store) InvalidatePublished(ctx context.Context) {
	s.Invalidate(ctx, PublishedCampaignsKey)
}

// RevokeToken marks a token id as revoked until ttl elapses.
func (s *Store) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if !s.Enabled() || jti == "" || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, RevokedTokenPrefix+jti, "1", ttl).Err()
}

// IsTokenRevoked reports whether jti was revoked. Lookup failures are treated
// as not revoked.
func (s *Store) IsTokenRevoked(ctx context.Context, jti string) bool {
	if !s.Enabled() || jti == "" {
		return false
	}
	n, err := s.client.Exists(ctx, RevokedTokenPrefix+jti).Result()
	return err == nil && n > 0
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Close()
}
