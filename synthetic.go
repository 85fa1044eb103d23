package phoneauth

import "fmt"

// SyntheticEmail forms the deterministic backend address for a normalized
// phone number. The backend treats phone-registered users as ordinary
// email/password accounts; this address is what keys them.
func SyntheticEmail(phone, domain string) string {
	return phone + "@" + domain
}

// syntheticCredentials derives the (email, password) pair for a normalized
// phone number. Deterministic: every device and every retry converges on the
// same pair, which is what makes the bridge idempotent.
func (e *Engine) syntheticCredentials(phone string) (email, pass string, err error) {
	email = SyntheticEmail(phone, e.config.Synthetic.EmailDomain)
	pass, err = e.deriver.Derive(phone)
	if err != nil {
		return "", "", fmt.Errorf("%w: credential derivation: %v", ErrSessionEstablishmentFailed, err)
	}
	return email, pass, nil
}
