package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"phone-auth-service/internal/models"
)

const (
	minPhoneDigits = 5
	maxPhoneDigits = 15
)

var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// PhoneNormalizer canonicalizes user-entered phone numbers into "+" followed
// by digits. It is stateless after construction and safe for concurrent use.
type PhoneNormalizer struct {
	callingCodes []string
}

func NewPhoneNormalizer() *PhoneNormalizer {
	seen := make(map[string]bool)
	codes := make([]string, 0, len(regionCallingCodes))
	for _, code := range regionCallingCodes {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	// Longest first so "+880" wins over "+8".
	sort.Slice(codes, func(i, j int) bool {
		if len(codes[i]) != len(codes[j]) {
			return len(codes[i]) > len(codes[j])
		}
		return codes[i] < codes[j]
	})
	return &PhoneNormalizer{callingCodes: codes}
}

// CallingCodeForRegion resolves an ISO 3166-1 region such as "US" to its
// calling code.
func (n *PhoneNormalizer) CallingCodeForRegion(region string) (string, error) {
	r, err := language.ParseRegion(region)
	if err != nil {
		return "", fmt.Errorf("unknown region %q: %w", region, err)
	}
	code, ok := regionCallingCodes[r.String()]
	if !ok {
		return "", fmt.Errorf("no calling code known for region %s", r)
	}
	return code, nil
}

// Normalize applies, in order: trim and strip separators; a leading "0"
// becomes the default country code; input already starting with the
// default code is kept; other "+"-prefixed input must carry a known calling
// code; anything else gets the default code prepended. The result must be
// "+" and 5 to 15 digits. Normalize is idempotent.
func (n *PhoneNormalizer) Normalize(raw, defaultCountryCode string) (*models.PhoneIdentity, error) {
	if !n.knownCode(defaultCountryCode) {
		return nil, fmt.Errorf("%w: unsupported default country code %q", ErrInvalidPhoneNumber, defaultCountryCode)
	}

	compact := stripSeparators(strings.TrimSpace(raw))
	if compact == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidPhoneNumber)
	}

	var candidate string
	switch {
	case strings.HasPrefix(compact, "0"):
		candidate = defaultCountryCode + compact[1:]
	case strings.HasPrefix(compact, defaultCountryCode):
		candidate = compact
	case strings.HasPrefix(compact, "+"):
		if n.matchCode(compact) == "" {
			return nil, fmt.Errorf("%w: unknown country calling code", ErrInvalidPhoneNumber)
		}
		candidate = compact
	default:
		candidate = defaultCountryCode + compact
	}

	if err := validateE164(candidate); err != nil {
		return nil, err
	}

	return &models.PhoneIdentity{
		Raw:         raw,
		Normalized:  candidate,
		CountryCode: n.matchCode(candidate),
	}, nil
}

func (n *PhoneNormalizer) knownCode(code string) bool {
	for _, c := range n.callingCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (n *PhoneNormalizer) matchCode(number string) string {
	for _, c := range n.callingCodes {
		if strings.HasPrefix(number, c) {
			return c
		}
	}
	return ""
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.', r == '(', r == ')':
			return -1
		}
		return r
	}, s)
}

func validateE164(s string) error {
	if !strings.HasPrefix(s, "+") {
		return fmt.Errorf("%w: missing country code", ErrInvalidPhoneNumber)
	}
	digits := s[1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidPhoneNumber, r)
		}
	}
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return fmt.Errorf("%w: expected %d to %d digits, got %d", ErrInvalidPhoneNumber, minPhoneDigits, maxPhoneDigits, len(digits))
	}
	return nil
}
