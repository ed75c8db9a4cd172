package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/repository/memory"
)

func testHasher(t *testing.T) *hashing.Hasher {
	t.Helper()
	h, err := hashing.NewHasher(&config.HashingConfig{
		Argon2MemoryCost:  64,
		Argon2TimeCost:    1,
		Argon2Parallelism: 1,
		Pepper:            "test-pepper",
		PepperVersion:     1,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

// gatedHasher blocks verification of one code until release is closed, so
// tests can interleave concurrent verifications deterministically.
type gatedHasher struct {
	OTPHasher
	mu      sync.Mutex
	code    string
	entered chan struct{}
	release chan struct{}
}

func newGatedHasher(inner OTPHasher) *gatedHasher {
	return &gatedHasher{
		OTPHasher: inner,
		entered:   make(chan struct{}, 1),
		release:   make(chan struct{}),
	}
}

func (g *gatedHasher) hold(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.code = code
}

func (g *gatedHasher) VerifyOTP(otp string, hashResult *hashing.HashResult) (bool, error) {
	g.mu.Lock()
	held := g.code != "" && otp == g.code
	if held {
		g.code = ""
	}
	g.mu.Unlock()
	if held {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.OTPHasher.VerifyOTP(otp, hashResult)
}

func newTestOTPManager(t *testing.T) (*OTPManager, *memory.OTPStore) {
	store := memory.NewOTPStore()
	return NewOTPManager(store, testHasher(t), zap.NewNop()), store
}

func TestOTPManager_SingleUse(t *testing.T) {
	m, _ := newTestOTPManager(t)
	ctx := context.Background()

	if _, err := m.Issue(ctx, "acct-1", "123456", 5*time.Minute, 0); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	res, err := m.Verify(ctx, "acct-1", "123456")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Result != models.VerifyOK {
		t.Fatalf("first Verify = %v, want ok", res.Result)
	}

	res, err = m.Verify(ctx, "acct-1", "123456")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Result == models.VerifyOK {
		t.Fatal("second Verify of a consumed code succeeded")
	}
}

func TestOTPManager_MismatchDoesNotConsume(t *testing.T) {
	m, _ := newTestOTPManager(t)
	ctx := context.Background()
	m.Issue(ctx, "acct-1", "123456", 5*time.Minute, 0)

	for i := 1; i <= 2; i++ {
		res, err := m.Verify(ctx, "acct-1", "654321")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if res.Result != models.VerifyMismatch || res.Attempts != i {
			t.Fatalf("wrong code #%d = %v/%d, want mismatch/%d", i, res.Result, res.Attempts, i)
		}
	}

	res, _ := m.Verify(ctx, "acct-1", "123456")
	if res.Result != models.VerifyOK {
		t.Errorf("Verify after mismatches = %v, want ok", res.Result)
	}
}

func TestOTPManager_ExpiredEvenWithCorrectCode(t *testing.T) {
	m, _ := newTestOTPManager(t)
	ctx := context.Background()

	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.nowF = func() time.Time { return issuedAt }
	cred, _ := m.Issue(ctx, "acct-1", "123456", time.Minute, 0)
	if !cred.ExpiresAt.Equal(issuedAt.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, issuedAt.Add(time.Minute))
	}

	m.nowF = func() time.Time { return issuedAt.Add(time.Minute) }
	res, _ := m.Verify(ctx, "acct-1", "123456")
	if res.Result != models.VerifyExpired {
		t.Errorf("Verify at expiry = %v, want expired", res.Result)
	}
}

func TestOTPManager_ReissueReplacesPrevious(t *testing.T) {
	m, store := newTestOTPManager(t)
	ctx := context.Background()

	m.Issue(ctx, "acct-1", "111111", 5*time.Minute, 0)
	m.Issue(ctx, "acct-1", "222222", 5*time.Minute, 0)

	if res, _ := m.Verify(ctx, "acct-1", "111111"); res.Result != models.VerifyMismatch {
		t.Errorf("Verify(old code) = %v, want mismatch", res.Result)
	}
	if res, _ := m.Verify(ctx, "acct-1", "222222"); res.Result != models.VerifyOK {
		t.Errorf("Verify(new code) = %v, want ok", res.Result)
	}

	cred, err := store.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cred.CodeHash == "" || cred.CodeHash == "222222" {
		t.Errorf("stored hash %q looks like plaintext", cred.CodeHash)
	}
}

func TestOTPManager_UnknownOwner(t *testing.T) {
	m, _ := newTestOTPManager(t)
	res, err := m.Verify(context.Background(), "nobody", "123456")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Result != models.VerifyNotFound {
		t.Errorf("Verify = %v, want not_found", res.Result)
	}
}

func TestOTPManager_ConcurrentVerifySingleWinner(t *testing.T) {
	m, _ := newTestOTPManager(t)
	ctx := context.Background()
	m.Issue(ctx, "acct-1", "123456", 5*time.Minute, 0)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Verify(ctx, "acct-1", "123456")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs++
				return
			}
			if res.Result == models.VerifyOK {
				oks++
			}
		}()
	}
	wg.Wait()

	if errs != 0 {
		t.Fatalf("%d verifications failed with an error", errs)
	}
	if oks != 1 {
		t.Errorf("successful verifications = %d, want 1", oks)
	}
}

func TestOTPManager_LockedAtAttemptLimit(t *testing.T) {
	m, _ := newTestOTPManager(t)
	ctx := context.Background()
	m.Issue(ctx, "acct-1", "123456", 5*time.Minute, 2)

	if res, _ := m.Verify(ctx, "acct-1", "000000"); res.Result != models.VerifyMismatch || res.Attempts != 1 {
		t.Fatalf("first wrong code = %v/%d, want mismatch/1", res.Result, res.Attempts)
	}
	if res, _ := m.Verify(ctx, "acct-1", "000000"); res.Result != models.VerifyLocked || res.Attempts != 2 {
		t.Fatalf("second wrong code = %v/%d, want locked/2", res.Result, res.Attempts)
	}
	for i := 0; i < 5; i++ {
		if res, _ := m.Verify(ctx, "acct-1", "123456"); res.Result != models.VerifyLocked {
			t.Fatalf("correct code after limit = %v, want locked", res.Result)
		}
	}
}

func TestOTPManager_CorrectCodeRacingLastMismatch(t *testing.T) {
	store := memory.NewOTPStore()
	gate := newGatedHasher(testHasher(t))
	m := NewOTPManager(store, gate, zap.NewNop())
	ctx := context.Background()
	m.Issue(ctx, "acct-1", "123456", 5*time.Minute, 1)
	gate.hold("123456")

	done := make(chan *VerifyOutcome, 1)
	go func() {
		res, err := m.Verify(ctx, "acct-1", "123456")
		if err != nil {
			t.Errorf("Verify(correct): %v", err)
		}
		done <- res
	}()
	<-gate.entered

	if res, _ := m.Verify(ctx, "acct-1", "000000"); res.Result != models.VerifyLocked {
		t.Fatalf("wrong code at limit = %v, want locked", res.Result)
	}
	close(gate.release)

	res := <-done
	if res == nil || res.Result != models.VerifyLocked {
		t.Errorf("correct code racing the last mismatch = %+v, want locked", res)
	}
}

func TestOTPManager_ConcurrentGuessesNeverExceedLimit(t *testing.T) {
	m, store := newTestOTPManager(t)
	ctx := context.Background()
	m.Issue(ctx, "acct-1", "123456", 5*time.Minute, 3)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		mismatches int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Verify(ctx, "acct-1", "000000")
			if err != nil {
				t.Errorf("Verify: %v", err)
				return
			}
			if res.Result == models.VerifyMismatch {
				mu.Lock()
				mismatches++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if mismatches > 2 {
		t.Errorf("usable mismatches = %d, want at most 2 before lock", mismatches)
	}
	if res, _ := m.Verify(ctx, "acct-1", "123456"); res.Result != models.VerifyLocked {
		t.Errorf("correct code after concurrent guesses = %v, want locked", res.Result)
	}
	cred, _ := store.Get(ctx, "acct-1")
	if cred.Consumed {
		t.Error("locked credential was consumed")
	}
}

func TestOTPManager_Revoke(t *testing.T) {
	m, _ := newTestOTPManager(t)
	ctx := context.Background()
	m.Issue(ctx, "acct-1", "123456", 5*time.Minute, 0)

	if err := m.Revoke(ctx, "acct-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if res, _ := m.Verify(ctx, "acct-1", "123456"); res.Result != models.VerifyNotFound {
		t.Errorf("Verify after revoke = %v, want not_found", res.Result)
	}
}

func TestGenerateCode(t *testing.T) {
	for _, n := range []int{4, 6, 10} {
		code, err := GenerateCode(n)
		if err != nil {
			t.Fatalf("GenerateCode(%d): %v", n, err)
		}
		if len(code) != n {
			t.Errorf("len(GenerateCode(%d)) = %d", n, len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Errorf("GenerateCode(%d) = %q, want digits only", n, code)
				break
			}
		}
	}
	if _, err := GenerateCode(0); err == nil {
		t.Error("GenerateCode(0) should fail")
	}
}
