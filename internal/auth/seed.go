package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/mblarson/omnihome/internal/infrastructure/config"
)

// DefaultDisplayName is the household member shown on a fresh install.
const DefaultDisplayName = "Alex Doe"

const seedPasswordBytes = 16

// Logger is the logging interface used by Seed.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Seed creates the configured admin account when no accounts exist. With
// no configured password a random one is generated and logged once; the
// returned string is that password, or empty when nothing was created or
// the password came from configuration.
func Seed(ctx context.Context, repo UserRepository, admin config.AdminConfig, logger Logger) (string, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	username := admin.Username
	if username == "" {
		username = "admin"
	}
	if !IsValidUsername(username) {
		return "", fmt.Errorf("invalid admin username %q", username)
	}
	name := admin.DisplayName
	if name == "" {
		name = DefaultDisplayName
	}

	password := admin.Password
	generated := ""
	if password == "" {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(b)
		generated = password
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	user := &User{
		Username:     username,
		DisplayName:  name,
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := repo.Create(ctx, user); err != nil {
		return "", fmt.Errorf("creating admin account: %w", err)
	}

	if generated != "" {
		logger.Warn("admin account created with a generated password",
			"username", username,
			"password", generated,
			"action_required", "set security.admin.password and restart",
		)
	} else {
		logger.Info("admin account created", "username", username)
	}
	return generated, nil
}
