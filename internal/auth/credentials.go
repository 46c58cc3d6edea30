package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the single administrator account. An empty
// PasswordHash means no account is configured.
type Credentials struct {
	User         string
	PasswordHash string
}

func (c Credentials) Enabled() bool { return c.PasswordHash != "" }

func (c Credentials) Check(user, password string) bool {
	if !c.Enabled() {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.User)) == 1
	// the hash is compared even when the user differs
	passErr := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password))
	return userOK && passErr == nil
}

// HashPassword returns a bcrypt hash suitable for BIBXML_ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
