// Package apikeys authenticates the relay's API-key credentials. Keys take
// the form pd_<keyID>_<secret>; the key id is an indexed lookup column and
// only a bcrypt hash of the secret is stored.
package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/logging"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/users"
)

const keyPrefix = "pd"

// Service resolves API keys to users.
type Service struct {
	users  users.Repository
	logger logging.Logger
}

// NewService constructs the API-key service.
func NewService(ur users.Repository, logger logging.Logger) *Service {
	return &Service{users: ur, logger: logger.With("module", "apikeys")}
}

// Authenticate resolves an API key to its user. Any malformed, unknown, or
// mismatched key yields common.ErrorUnauthorized.
func (s *Service) Authenticate(ctx context.Context, key string) (*models.User, error) {
	keyID, secret, ok := splitKey(key)
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	user, err := s.users.FindByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("looking up api key: %w", err)
	}

	if bcrypt.CompareHashAndPassword(user.APIKeyHash, []byte(secret)) != nil {
		return nil, common.ErrorUnauthorized
	}

	return user, nil
}

// Provision creates a user and returns the plaintext API key. The key is
// shown exactly once; only its hash survives.
func (s *Service) Provision(ctx context.Context, name string) (*models.User, string, error) {
	keyID := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating key secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing key secret: %w", err)
	}

	user, err := s.users.Create(ctx, &models.User{
		Name:       name,
		APIKeyID:   keyID,
		APIKeyHash: hash,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return nil, "", fmt.Errorf("creating user: %w", err)
	}

	return user, fmt.Sprintf("%s_%s_%s", keyPrefix, keyID, secret), nil
}

// Bootstrap provisions an initial user when the users table is empty.
// Returns empty strings when nothing was done.
func (s *Service) Bootstrap(ctx context.Context, name string) (userID, plainKey string, err error) {
	if name == "" {
		return "", "", nil
	}

	n, err := s.users.Count(ctx)
	if err != nil {
		return "", "", fmt.Errorf("counting users: %w", err)
	}
	if n > 0 {
		return "", "", nil
	}

	user, key, err := s.Provision(ctx, name)
	if err != nil {
		return "", "", err
	}

	s.logger.Info(ctx, "bootstrap user provisioned", "user_id", user.ID, "name", name)

	return user.ID, key, nil
}

func splitKey(key string) (keyID, secret string, ok bool) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
