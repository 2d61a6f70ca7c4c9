package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
)

// User is an account allowed to operate the board.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NormalizeEmail trims and lower-cases an address after checking its format.
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("empty email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", fmt.Errorf("invalid email %q", raw)
	}
	return strings.ToLower(email), nil
}

// PasswordProblems lists every rule the password breaks. An empty result
// means the password is acceptable.
func PasswordProblems(pw string) []string {
	var problems []string
	if len([]rune(pw)) < 8 {
		problems = append(problems, "password must have at least 8 characters")
	}
	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		problems = append(problems, "password must contain an uppercase letter")
	}
	if !hasLower {
		problems = append(problems, "password must contain a lowercase letter")
	}
	if !hasDigit {
		problems = append(problems, "password must contain a digit")
	}
	if !hasSpecial {
		problems = append(problems, "password must contain a special character")
	}
	return problems
}
