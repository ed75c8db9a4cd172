package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"phone-auth-service/internal/models"
)

func TestAccountDirectory_CreateIsExclusivePerUsername(t *testing.T) {
	dir := NewAccountDirectory()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- dir.Create(ctx, &models.Account{Username: "+15551234", Enabled: true})
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, models.ErrAccountExists):
		default:
			t.Errorf("Create: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("created %d accounts, want 1", created)
	}
	if dir.Count() != 1 {
		t.Errorf("Count() = %d, want 1", dir.Count())
	}
}

func TestAccountDirectory_FindIsCaseInsensitive(t *testing.T) {
	dir := NewAccountDirectory()
	ctx := context.Background()
	dir.Import(&models.Account{ID: "a", Username: "alice", Email: "Alice@Example.com"})

	for _, identity := range []string{"ALICE", "alice@example.COM"} {
		got, err := dir.FindByUsernameOrEmail(ctx, identity)
		if err != nil || got == nil || got.ID != "a" {
			t.Errorf("FindByUsernameOrEmail(%q) = %v, %v", identity, got, err)
		}
	}

	got, err := dir.FindByUsernameOrEmail(ctx, "bob")
	if err != nil || got != nil {
		t.Errorf("FindByUsernameOrEmail(bob) = %v, %v; want nil, nil", got, err)
	}
}

func TestAccountDirectory_ImportedDuplicatesConflict(t *testing.T) {
	dir := NewAccountDirectory()
	dir.Import(&models.Account{ID: "a", Username: "x", Email: "dup@example.com"})
	dir.Import(&models.Account{ID: "b", Username: "y", Email: "dup@example.com"})

	_, err := dir.FindByUsernameOrEmail(context.Background(), "dup@example.com")
	var dup *models.DuplicateError
	if !errors.As(err, &dup) || dup.Field != models.DuplicateEmail {
		t.Fatalf("err = %v, want email DuplicateError", err)
	}
}

func TestAccountDirectory_ReturnsCopies(t *testing.T) {
	dir := NewAccountDirectory()
	ctx := context.Background()
	_ = dir.Create(ctx, &models.Account{ID: "a", Username: "+15551234"})

	got, _ := dir.GetByID(ctx, "a")
	got.Enabled = true
	again, _ := dir.GetByID(ctx, "a")
	if again.Enabled {
		t.Error("mutating a returned account changed the directory")
	}

	if err := dir.MarkPhoneVerified(ctx, "a"); err != nil {
		t.Fatalf("MarkPhoneVerified: %v", err)
	}
	again, _ = dir.GetByID(ctx, "a")
	if !again.PhoneVerified || again.UpdatedAt == nil {
		t.Errorf("account = %+v, want verified", again)
	}
	if err := dir.MarkPhoneVerified(ctx, "missing"); !errors.Is(err, models.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}
