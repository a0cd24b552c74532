package auth

import (
	"context"
	"fmt"
	"log/slog"
	"unicode"
	"unicode/utf8"
)

const DefaultMinPasswordLength = 8

// BreachChecker reports whether a password is known to be compromised.
type BreachChecker interface {
	Breached(ctx context.Context, password string) (bool, error)
}

// PasswordPolicy is applied on registration and password reset. Check
// returns every rule the password fails, so callers can report them all at
// once.
type PasswordPolicy struct {
	MinLength int
	Checkers  []BreachChecker
	Logger    *slog.Logger
}

func (p PasswordPolicy) Check(ctx context.Context, password string) []string {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}

	var problems []string
	if utf8.RuneCountInString(password) < minLen {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", minLen))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsSpace(r):
			symbol = true
		}
	}
	if !upper || !lower {
		problems = append(problems, "must contain at least one uppercase and one lowercase letter")
	}
	if !digit {
		problems = append(problems, "must contain at least one number")
	}
	if !symbol {
		problems = append(problems, "must contain at least one symbol")
	}
	if len(problems) > 0 {
		return problems
	}

	if p.breached(ctx, password) {
		problems = append(problems, "has appeared in a data leak, please choose a different password")
	}
	return problems
}

func (p PasswordPolicy) breached(ctx context.Context, password string) bool {
	for _, c := range p.Checkers {
		hit, err := c.Breached(ctx, password)
		if err != nil {
			logger := p.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("password breach check failed", "err", err)
			continue
		}
		if hit {
			return true
		}
	}
	return false
}
