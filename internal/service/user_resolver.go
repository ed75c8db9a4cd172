package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"phone-auth-service/internal/models"
)

type ResolveKind int

const (
	ResolveNotFound ResolveKind = iota
	ResolveFound
	ResolveConflict
)

type ResolveResult struct {
	Kind          ResolveKind
	Account       *models.Account
	ConflictField models.DuplicateField
}

// AccountFinder looks an identity up by username or email, case-insensitively.
// Ambiguous matches are reported as *models.DuplicateError.
type AccountFinder interface {
	FindByUsernameOrEmail(ctx context.Context, identity string) (*models.Account, error)
}

type UserResolver struct {
	finder AccountFinder
	logger *zap.Logger
}

func NewUserResolver(finder AccountFinder, logger *zap.Logger) *UserResolver {
	return &UserResolver{finder: finder, logger: logger}
}

// Resolve never creates anything. A non-nil error means the directory
// itself failed, not that the identity is unknown.
func (r *UserResolver) Resolve(ctx context.Context, identity *models.PhoneIdentity) (*ResolveResult, error) {
	account, err := r.finder.FindByUsernameOrEmail(ctx, identity.Normalized)
	if err != nil {
		var dup *models.DuplicateError
		if errors.As(err, &dup) {
			r.logger.Warn("Identity matches more than one account",
				zap.String("duplicate_field", string(dup.Field)),
				zap.Int("matches", dup.Count),
			)
			return &ResolveResult{Kind: ResolveConflict, ConflictField: dup.Field}, nil
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	if account == nil {
		return &ResolveResult{Kind: ResolveNotFound}, nil
	}
	return &ResolveResult{Kind: ResolveFound, Account: account}, nil
}
