package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phone-auth-service/internal/models"
)

// usernameClaim is a row of username_to_account.
type usernameClaim struct {
	username  string
	bucket    int
	accountID string
	createdAt time.Time
}

// claimSettler decides what a username claim without an account row means.
// Create writes the claim before the account row, so a fresh claim is a
// create in progress and an old one was left behind by a create that failed
// and could not release it.
type claimSettler struct {
	backoff    []time.Duration
	staleAfter time.Duration
	nowF       func() time.Time
}

func defaultClaimSettler() claimSettler {
	return claimSettler{
		backoff:    []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
		staleAfter: 2 * time.Minute,
		nowF:       time.Now,
	}
}

// settle returns the claim's account once it is readable. A stale claim is
// released and reported as no account (nil, nil) so the username can be
// claimed again; a claim that stays fresh and empty past the backoff is
// models.ErrAccountPending.
func (s claimSettler) settle(
	ctx context.Context,
	claim usernameClaim,
	load func(ctx context.Context) (*models.Account, error),
	release func(ctx context.Context) error,
) (*models.Account, error) {
	for i := 0; ; i++ {
		account, err := load(ctx)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, models.ErrAccountNotFound) {
			return nil, err
		}

		if s.nowF().Sub(claim.createdAt) >= s.staleAfter {
			if err := release(ctx); err != nil {
				return nil, fmt.Errorf("failed to release stale username claim: %w", err)
			}
			return nil, nil
		}
		if i >= len(s.backoff) {
			return nil, fmt.Errorf("username claimed by %s: %w", claim.accountID, models.ErrAccountPending)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff[i]):
		}
	}
}
