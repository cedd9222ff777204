// Package validation checks account input before it reaches a repository.
package validation

import (
	"regexp"
	"strings"
	"unicode"
)

// Account field names reported in FieldError.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

// Length limits for account fields.
const (
	UsernameMinLen = 3
	UsernameMaxLen = 30
	PasswordMinLen = 12
	PasswordMaxLen = 128
	EmailMaxLen    = 254
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9_-]*[a-zA-Z0-9])?$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// FieldError names the offending field next to a user-facing message.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

func fieldError(field, msg string) *FieldError {
	return &FieldError{Field: field, Message: msg}
}

type passwordRule struct {
	msg string
	ok  func(string) bool
}

func containsAny(pred func(rune) bool) func(string) bool {
	return func(s string) bool {
		return strings.IndexFunc(s, pred) >= 0
	}
}

func isSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

var passwordRules = []passwordRule{
	{"password must contain an uppercase letter", containsAny(unicode.IsUpper)},
	{"password must contain a lowercase letter", containsAny(unicode.IsLower)},
	{"password must contain a digit", containsAny(unicode.IsDigit)},
	{"password must contain a symbol such as ! or #", containsAny(isSymbol)},
}

// ValidatePassword enforces length bounds and the character-class rules.
// Length is counted in runes.
func ValidatePassword(password string) error {
	switch n := len([]rune(password)); {
	case n < PasswordMinLen:
		return fieldError(FieldPassword, "password must be at least 12 characters long")
	case n > PasswordMaxLen:
		return fieldError(FieldPassword, "password must not exceed 128 characters")
	}
	for _, rule := range passwordRules {
		if !rule.ok(password) {
			return fieldError(FieldPassword, rule.msg)
		}
	}
	return nil
}

// ValidateUsername allows ASCII letters, digits, '_' and '-', with an
// alphanumeric first and last character.
func ValidateUsername(username string) error {
	switch {
	case len(username) < UsernameMinLen:
		return fieldError(FieldUsername, "username must be at least 3 characters long")
	case len(username) > UsernameMaxLen:
		return fieldError(FieldUsername, "username must not exceed 30 characters")
	case !usernameRe.MatchString(username):
		return fieldError(FieldUsername, "username may only use letters, digits, '_' and '-', and must start and end with a letter or digit")
	}
	return nil
}

func ValidateEmail(email string) error {
	if len(email) > EmailMaxLen {
		return fieldError(FieldEmail, "email must not exceed 254 characters")
	}
	if !emailRe.MatchString(email) {
		return fieldError(FieldEmail, "invalid email format")
	}
	return nil
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Registration is the account input of a sign-up.
type Registration struct {
	Username string
	Email    string
	Password string
}

// Normalize trims the username and normalizes the email in place.
func (r *Registration) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = NormalizeEmail(r.Email)
}

// Missing reports whether any field is empty.
func (r Registration) Missing() bool {
	return r.Username == "" || r.Email == "" || r.Password == ""
}

// Validate returns the first failing field, checked in username, email,
// password order.
func (r Registration) Validate() error {
	for _, check := range []func() error{
		func() error { return ValidateUsername(r.Username) },
		func() error { return ValidateEmail(r.Email) },
		func() error { return ValidatePassword(r.Password) },
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
