package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"phone-auth-service/internal/models"
)

func TestOTPStore_ConsumeRefusedAtAttemptLimit(t *testing.T) {
	s := NewOTPStore()
	ctx := context.Background()
	_ = s.Save(ctx, &models.OTPCredential{
		ID:          "cred-1",
		OwnerID:     "acct-1",
		ExpiresAt:   time.Now().Add(time.Minute),
		MaxAttempts: 1,
	})

	if n, err := s.IncrementAttempts(ctx, "acct-1", "cred-1"); err != nil || n != 1 {
		t.Fatalf("IncrementAttempts = %d, %v; want 1, nil", n, err)
	}
	if ok, _ := s.Consume(ctx, "acct-1", "cred-1"); ok {
		t.Error("Consume succeeded on a locked credential")
	}
}

func TestOTPStore_IncrementRefusedAfterConsume(t *testing.T) {
	s := NewOTPStore()
	ctx := context.Background()
	_ = s.Save(ctx, &models.OTPCredential{ID: "cred-1", OwnerID: "acct-1", ExpiresAt: time.Now().Add(time.Minute)})

	if ok, _ := s.Consume(ctx, "acct-1", "cred-1"); !ok {
		t.Fatal("Consume failed")
	}
	if _, err := s.IncrementAttempts(ctx, "acct-1", "cred-1"); !errors.Is(err, models.ErrOTPNotFound) {
		t.Errorf("IncrementAttempts(consumed) err = %v, want ErrOTPNotFound", err)
	}
}

func TestAttemptStore_UpdateDoesNotRecreate(t *testing.T) {
	s := NewAttemptStore()
	ctx := context.Background()
	attempt := &models.AuthAttempt{SessionID: "sess-1", Stage: models.StageOTPWait}

	if err := s.Update(ctx, attempt); !errors.Is(err, models.ErrAttemptNotFound) {
		t.Errorf("Update(missing) err = %v, want ErrAttemptNotFound", err)
	}
	if _, err := s.Get(ctx, "sess-1"); !errors.Is(err, models.ErrAttemptNotFound) {
		t.Errorf("Update created the attempt: Get err = %v", err)
	}

	_ = s.Save(ctx, attempt)
	attempt.Stage = models.StageRejected
	if err := s.Update(ctx, attempt); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := s.Get(ctx, "sess-1"); got.Stage != models.StageRejected {
		t.Errorf("Stage = %s, want REJECTED", got.Stage)
	}
}
