package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"phone-auth-service/internal/models"
	"phone-auth-service/internal/repository/memory"
)

type failingFinder struct{ err error }

func (f failingFinder) FindByUsernameOrEmail(ctx context.Context, identity string) (*models.Account, error) {
	return nil, f.err
}

func TestUserResolver_Resolve(t *testing.T) {
	identity := &models.PhoneIdentity{Raw: "5551234", Normalized: "+15551234", CountryCode: "+1"}

	tests := []struct {
		name      string
		seed      []*models.Account
		wantKind  ResolveKind
		wantID    string
		wantField models.DuplicateField
	}{
		{
			name:     "not found",
			seed:     []*models.Account{{ID: "a", Username: "+15550000", Enabled: true}},
			wantKind: ResolveNotFound,
		},
		{
			name:     "by username",
			seed:     []*models.Account{{ID: "a", Username: "+15551234", Enabled: true}},
			wantKind: ResolveFound,
			wantID:   "a",
		},
		{
			name:     "by email",
			seed:     []*models.Account{{ID: "b", Username: "bob", Email: "+15551234", Enabled: true}},
			wantKind: ResolveFound,
			wantID:   "b",
		},
		{
			name: "username collision",
			seed: []*models.Account{
				{ID: "a", Username: "+15551234"},
				{ID: "b", Username: "+15551234"},
			},
			wantKind:  ResolveConflict,
			wantField: models.DuplicateUsername,
		},
		{
			name: "email collides with another account",
			seed: []*models.Account{
				{ID: "a", Username: "+15551234", Email: "a@example.com"},
				{ID: "b", Username: "bob", Email: "+15551234"},
			},
			wantKind:  ResolveConflict,
			wantField: models.DuplicateEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := memory.NewAccountDirectory()
			for _, a := range tt.seed {
				dir.Import(a)
			}
			r := NewUserResolver(dir, zap.NewNop())

			got, err := r.Resolve(context.Background(), identity)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if tt.wantID != "" && (got.Account == nil || got.Account.ID != tt.wantID) {
				t.Errorf("Account = %+v, want id %q", got.Account, tt.wantID)
			}
			if got.ConflictField != tt.wantField {
				t.Errorf("ConflictField = %q, want %q", got.ConflictField, tt.wantField)
			}
			if tt.wantKind == ResolveConflict && dir.Count() != len(tt.seed) {
				t.Errorf("Count = %d, resolve must not create accounts", dir.Count())
			}
		})
	}
}

func TestUserResolver_StoreFailure(t *testing.T) {
	boom := errors.New("directory unavailable")
	r := NewUserResolver(failingFinder{err: boom}, zap.NewNop())

	_, err := r.Resolve(context.Background(), &models.PhoneIdentity{Normalized: "+15551234"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
