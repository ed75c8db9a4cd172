package models

// PhoneIdentity is a phone number after normalization; Normalized doubles as
// the account username.
type PhoneIdentity struct {
	Raw         string `json:"-"`
	Normalized  string `json:"normalized"`
	CountryCode string `json:"country_code"`
}

func (p *PhoneIdentity) String() string {
	return p.Normalized
}
