package scylla

import (
	"context"
	"errors"
	"testing"
	"time"

	"phone-auth-service/internal/models"
)

func testSettler(now time.Time) claimSettler {
	return claimSettler{
		backoff:    []time.Duration{time.Millisecond, time.Millisecond},
		staleAfter: time.Minute,
		nowF:       func() time.Time { return now },
	}
}

func TestClaimSettler_AccountWrittenDuringBackoff(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	claim := usernameClaim{username: "+15551234", accountID: "acct-1", createdAt: now.Add(-time.Second)}

	loads := 0
	load := func(ctx context.Context) (*models.Account, error) {
		loads++
		if loads < 3 {
			return nil, models.ErrAccountNotFound
		}
		return &models.Account{ID: "acct-1"}, nil
	}
	release := func(ctx context.Context) error {
		t.Error("release called for a fresh claim")
		return nil
	}

	account, err := testSettler(now).settle(context.Background(), claim, load, release)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if account == nil || account.ID != "acct-1" {
		t.Errorf("account = %+v, want acct-1", account)
	}
	if loads != 3 {
		t.Errorf("loads = %d, want 3", loads)
	}
}

func TestClaimSettler_FreshEmptyClaimIsPending(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	claim := usernameClaim{username: "+15551234", accountID: "acct-1", createdAt: now}

	loads := 0
	load := func(ctx context.Context) (*models.Account, error) {
		loads++
		return nil, models.ErrAccountNotFound
	}
	release := func(ctx context.Context) error {
		t.Error("release called for a fresh claim")
		return nil
	}

	_, err := testSettler(now).settle(context.Background(), claim, load, release)
	if !errors.Is(err, models.ErrAccountPending) {
		t.Fatalf("settle err = %v, want ErrAccountPending", err)
	}
	if loads != 3 {
		t.Errorf("loads = %d, want 3", loads)
	}
}

func TestClaimSettler_StaleClaimIsReleased(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	claim := usernameClaim{username: "+15551234", accountID: "acct-1", createdAt: now.Add(-time.Hour)}

	released := false
	load := func(ctx context.Context) (*models.Account, error) { return nil, models.ErrAccountNotFound }
	release := func(ctx context.Context) error {
		released = true
		return nil
	}

	account, err := testSettler(now).settle(context.Background(), claim, load, release)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if account != nil {
		t.Errorf("account = %+v, want none", account)
	}
	if !released {
		t.Error("stale claim was not released")
	}
}

func TestClaimSettler_LoadFailureIsReturned(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	boom := errors.New("read timeout")
	load := func(ctx context.Context) (*models.Account, error) { return nil, boom }
	release := func(ctx context.Context) error { return nil }

	_, err := testSettler(now).settle(context.Background(), usernameClaim{createdAt: now}, load, release)
	if !errors.Is(err, boom) {
		t.Errorf("settle err = %v, want %v", err, boom)
	}
}

func TestClaimSettler_StopsOnContextCancel(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s := testSettler(now)
	s.backoff = []time.Duration{time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	load := func(context.Context) (*models.Account, error) {
		cancel()
		return nil, models.ErrAccountNotFound
	}
	release := func(context.Context) error { return nil }

	_, err := s.settle(ctx, usernameClaim{createdAt: now}, load, release)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("settle err = %v, want context.Canceled", err)
	}
}
