package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Attribute keys carried on every phone-provisioned account.
const (
	AttrPhoneNumber         = "phoneNumber"
	AttrPhoneNumberVerified = "phoneNumberVerified"
)

// ErrAccountExists is returned by a directory when a create loses the race
// against another create for the same username.
var ErrAccountExists = errors.New("account already exists")

var ErrAccountNotFound = errors.New("account not found")

// ErrAccountPending means the identity is claimed by a create that has not
// finished writing its account yet.
var ErrAccountPending = errors.New("account creation pending")

type Account struct {
	AccountBucket int               `db:"account_bucket" json:"-"`
	ID            string            `db:"account_id" json:"id"`
	Username      string            `db:"username" json:"username"`
	Email         string            `db:"email" json:"email,omitempty"`
	Enabled       bool              `db:"enabled" json:"enabled"`
	PhoneNumber   string            `db:"phone_number" json:"phone_number"`
	PhoneVerified bool              `db:"phone_verified" json:"phone_verified"`
	Attributes    map[string]string `db:"-" json:"attributes,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}

// Clone returns a deep copy so stores never hand out shared maps.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Attributes != nil {
		out.Attributes = make(map[string]string, len(a.Attributes))
		for k, v := range a.Attributes {
			out.Attributes[k] = v
		}
	}
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		out.UpdatedAt = &t
	}
	return &out
}

type DuplicateField string

const (
	DuplicateEmail    DuplicateField = "email"
	DuplicateUsername DuplicateField = "username"
)

// DuplicateError reports that a lookup matched more than one account.
type DuplicateError struct {
	Field DuplicateField
	Count int
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%d accounts share the same %s", e.Count, e.Field)
}

// ResolveMatches applies the lookup precedence shared by every directory:
// several username hits conflict on username, several email hits conflict
// on email, and a username hit that differs from the email hit conflicts on
// email. Otherwise the single hit (or nil) is returned.
func ResolveMatches(byUsername, byEmail []*Account) (*Account, error) {
	if len(byUsername) > 1 {
		return nil, &DuplicateError{Field: DuplicateUsername, Count: len(byUsername)}
	}
	if len(byEmail) > 1 {
		return nil, &DuplicateError{Field: DuplicateEmail, Count: len(byEmail)}
	}

	switch {
	case len(byUsername) == 1 && len(byEmail) == 1:
		if byUsername[0].ID != byEmail[0].ID {
			return nil, &DuplicateError{Field: DuplicateEmail, Count: 2}
		}
		return byUsername[0], nil
	case len(byUsername) == 1:
		return byUsername[0], nil
	case len(byEmail) == 1:
		return byEmail[0], nil
	}
	return nil, nil
}

// NormalizeLookupKey folds usernames and emails for case-insensitive lookup.
func NormalizeLookupKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
