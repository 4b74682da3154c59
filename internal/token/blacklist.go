package token

import (
	"context"
	"fmt"
	"time"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/keyvalue"
)

const blacklistPrefix = "token_blacklist:"

// Blacklist invalidates token ids ahead of their natural expiry. Entries
// only need to live as long as the token itself, so each one carries the
// token's remaining lifetime as its TTL.
type Blacklist struct {
	store keyvalue.Store
}

func NewBlacklist(store keyvalue.Store) *Blacklist {
	return &Blacklist{store: store}
}

// Add blacklists a jti. Returns false if it was already blacklisted, which
// lets logout treat a replayed token as a terminal failure instead of a new
// revocation.
func (b *Blacklist) Add(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		// Token already expired; nothing to block.
		return true, nil
	}
	ok, err := b.store.SetNX(ctx, blacklistPrefix+jti, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("failed to blacklist token: %w", err)
	}
	return ok, nil
}

// Contains reports whether a jti has been revoked.
func (b *Blacklist) Contains(ctx context.Context, jti string) (bool, error) {
	exists, err := b.store.Exists(ctx, blacklistPrefix+jti)
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists, nil
}
