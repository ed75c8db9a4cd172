package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

const (
	algorithmArgon2id = "argon2id-v1"
	otpContext        = "otp"
)

var (
	ErrInvalidHash          = errors.New("invalid hash format")
	ErrUnknownPepper        = errors.New("pepper version not found")
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value   string
	Version int
}

// Hasher derives argon2id hashes of short secrets. Hashes record the pepper
// version used so that retired peppers keep verifying until their
// credentials expire. A Hasher is immutable after construction.
type Hasher struct {
	params        Argon2Params
	currentPepper *Pepper
	oldPeppers    map[int]*Pepper
}

type HashResult struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(cfg *config.HashingConfig) (*Hasher, error) {
	h := &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Argon2MemoryCost),
			Iterations:  uint32(cfg.Argon2TimeCost),
			Parallelism: uint8(cfg.Argon2Parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
		oldPeppers: make(map[int]*Pepper),
	}

	value := cfg.Pepper
	if value == "" {
		// Codes hashed with a random pepper do not survive a restart or
		// verify on another replica. Config validation forbids this in
		// production.
		generated, err := randomPepper()
		if err != nil {
			return nil, err
		}
		value = generated
		util.Warn("No OTP pepper configured, using a process-local pepper")
	}
	h.currentPepper = &Pepper{Value: value, Version: cfg.PepperVersion}

	for _, entry := range cfg.PreviousPeppers {
		pepper, err := parsePepper(entry)
		if err != nil {
			return nil, err
		}
		if pepper.Version == h.currentPepper.Version {
			return nil, fmt.Errorf("previous pepper reuses active version %d", pepper.Version)
		}
		h.oldPeppers[pepper.Version] = pepper
	}

	util.Info("Hasher initialized",
		zap.Int("pepper_version", h.currentPepper.Version),
		zap.Int("previous_peppers", len(h.oldPeppers)),
	)
	return h, nil
}

func parsePepper(entry string) (*Pepper, error) {
	version, value, ok := strings.Cut(entry, ":")
	if !ok || value == "" {
		return nil, fmt.Errorf("previous pepper must be version:value")
	}
	v, err := strconv.Atoi(version)
	if err != nil || v < 1 {
		return nil, fmt.Errorf("invalid previous pepper version %q", version)
	}
	return &Pepper{Value: value, Version: v}, nil
}

func randomPepper() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate pepper: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (h *Hasher) HashOTP(otp string) (*HashResult, error) {
	return h.hashWithPepper(otp, otpContext)
}

func (h *Hasher) VerifyOTP(otp string, hashResult *HashResult) (bool, error) {
	return h.verifyWithPepper(otp, hashResult, otpContext)
}

func (h *Hasher) hashWithPepper(data, purpose string) (*HashResult, error) {
	pepper := h.currentPepper

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := h.derive(data, pepper.Value, purpose, salt, h.params.KeyLength)

	return &HashResult{
		Hash:          base64.RawURLEncoding.EncodeToString(hash),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: pepper.Version,
		Algorithm:     algorithmArgon2id,
	}, nil
}

func (h *Hasher) verifyWithPepper(data string, hashResult *HashResult, purpose string) (bool, error) {
	if hashResult == nil {
		return false, ErrInvalidHash
	}
	if hashResult.Algorithm != algorithmArgon2id {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, hashResult.Algorithm)
	}

	pepper, err := h.pepper(hashResult.PepperVersion)
	if err != nil {
		return false, err
	}

	salt, err := base64.RawURLEncoding.DecodeString(hashResult.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(hashResult.Hash)
	if err != nil || len(expected) == 0 {
		return false, ErrInvalidHash
	}

	computed := h.derive(data, pepper, purpose, salt, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// derive binds the purpose into the input so an OTP hash can never be
// replayed as a hash for another secret type.
func (h *Hasher) derive(data, pepper, purpose string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey(
		[]byte(data+pepper+purpose),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		keyLen,
	)
}

func (h *Hasher) pepper(version int) (string, error) {
	if h.currentPepper.Version == version {
		return h.currentPepper.Value, nil
	}
	if p, ok := h.oldPeppers[version]; ok {
		return p.Value, nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownPepper, version)
}

func (h *Hasher) PepperVersion() int {
	return h.currentPepper.Version
}
