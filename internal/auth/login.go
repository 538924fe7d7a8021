package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Authenticate checks a username and password. Unknown users, wrong
// passwords and inactive accounts all return ErrInvalidCredentials or
// ErrUserInactive without revealing which check failed first.
func Authenticate(ctx context.Context, repo UserRepository, username, password string) (*User, error) {
	user, err := repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = VerifyPassword(password, dummyHash) //nolint:errcheck // equalises timing
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// Greeting returns the dashboard salutation for an hour of the day.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good Morning"
	case hour >= 12 && hour < 18:
		return "Good Afternoon"
	default:
		return "Good Evening"
	}
}

// FirstName returns the first word of a display name.
func FirstName(displayName string) string {
	if f := strings.Fields(displayName); len(f) > 0 {
		return f[0]
	}
	return ""
}
