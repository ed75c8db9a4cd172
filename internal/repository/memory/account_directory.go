package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"phone-auth-service/internal/models"
)

// AccountDirectory is an in-process account store used in development and
// tests. Import bypasses uniqueness checks the way a federated import can,
// which makes it possible to seed duplicate usernames or emails.
type AccountDirectory struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	order    []string
	nowF     func() time.Time
}

func NewAccountDirectory() *AccountDirectory {
	return &AccountDirectory{
		accounts: make(map[string]*models.Account),
		nowF:     time.Now,
	}
}

func (d *AccountDirectory) FindByUsernameOrEmail(ctx context.Context, identity string) (*models.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var byUsername, byEmail []*models.Account
	for _, id := range d.order {
		a := d.accounts[id]
		if strings.EqualFold(a.Username, identity) {
			byUsername = append(byUsername, a.Clone())
		}
		if a.Email != "" && strings.EqualFold(a.Email, identity) {
			byEmail = append(byEmail, a.Clone())
		}
	}
	return models.ResolveMatches(byUsername, byEmail)
}

func (d *AccountDirectory) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[accountID]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return a.Clone(), nil
}

// Create is atomic with respect to the username: of several concurrent
// creates for one username exactly one succeeds.
func (d *AccountDirectory) Create(ctx context.Context, account *models.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.accounts {
		if strings.EqualFold(existing.Username, account.Username) {
			return models.ErrAccountExists
		}
	}
	d.insertLocked(account)
	return nil
}

// Import stores account without any uniqueness check.
func (d *AccountDirectory) Import(account *models.Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.insertLocked(account)
}

func (d *AccountDirectory) insertLocked(account *models.Account) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = d.nowF().UTC()
	}
	d.accounts[account.ID] = account.Clone()
	d.order = append(d.order, account.ID)
}

func (d *AccountDirectory) MarkPhoneVerified(ctx context.Context, accountID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}
	now := d.nowF().UTC()
	a.PhoneVerified = true
	a.UpdatedAt = &now
	return nil
}

// SetEnabled toggles an account; used by operators in development.
func (d *AccountDirectory) SetEnabled(accountID string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.Enabled = enabled
	return nil
}

func (d *AccountDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.accounts)
}

func (d *AccountDirectory) HealthCheck(ctx context.Context) error {
	return nil
}
