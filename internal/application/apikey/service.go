// Package apikey manages the lifecycle of embed-path API keys: creation
// with a prefix-indexed bcrypt hash, one-time raw-key disclosure, lookup
// by prefix for the embed auth path, and revocation. Grounded on the
// teacher's internal/application/systemkey/service.go (prefix + bcrypt
// hash-at-rest pattern, generalized here from a global system key to a
// tenant-scoped embed key).
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vizflow/vizflow/pkg/models"
)

const (
	KeyLength     = 32
	BcryptCost    = 10
	PrefixLength  = 12
	KeyPrefixText = "vzk_"
)

// Repository persists APIKeys, indexed for tenant-scoped lookup and
// prefix-scoped lookup (the embed path only has the raw key, so it must
// narrow candidates by prefix before a bcrypt compare).
type Repository interface {
	Create(ctx context.Context, key models.APIKey) error
	FindByID(ctx context.Context, tenantID, id string) (models.APIKey, error)
	FindByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.APIKey, error)
	Revoke(ctx context.Context, tenantID, id string) error
}

// Service issues and validates API keys.
type Service struct {
	repo       Repository
	bcryptCost int
}

// New constructs a Service.
func New(repo Repository) *Service {
	return &Service{repo: repo, bcryptCost: BcryptCost}
}

// CreateResult carries the persisted key plus the raw key text, which is
// never stored and must be surfaced to the caller exactly once
// (spec.md §3 "API Key").
type CreateResult struct {
	Key      models.APIKey
	PlainKey string
}

// Create issues a new API key for tenantID.
func (s *Service) Create(ctx context.Context, tenantID string, scopedWidgetIDs []string, rateLimit *int) (CreateResult, error) {
	plainKey, prefix, err := generatePlainKey()
	if err != nil {
		return CreateResult{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plainKey), s.bcryptCost)
	if err != nil {
		return CreateResult{}, fmt.Errorf("hash api key: %w", err)
	}

	key := models.APIKey{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		KeyHash:         prefix + ":" + string(hash),
		ScopedWidgetIDs: scopedWidgetIDs,
		RateLimit:       rateLimit,
		CreatedAt:       time.Now(),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return CreateResult{}, err
	}

	return CreateResult{Key: key, PlainKey: plainKey}, nil
}

// List returns every API key owned by tenantID (hashes never exposed).
func (s *Service) List(ctx context.Context, tenantID string) ([]models.APIKey, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

// Revoke marks a key revoked. Tenant-scoped: a key belonging to another
// tenant is reported as not found, not forbidden (SPEC_FULL.md §12
// "cross-tenant 404 masking").
func (s *Service) Revoke(ctx context.Context, tenantID, id string) error {
	if _, err := s.repo.FindByID(ctx, tenantID, id); err != nil {
		return err
	}
	return s.repo.Revoke(ctx, tenantID, id)
}

// Authenticate validates a raw key presented on the embed path and
// returns the matching, non-revoked APIKey.
func (s *Service) Authenticate(ctx context.Context, plainKey string) (models.APIKey, error) {
	if len(plainKey) < PrefixLength {
		return models.APIKey{}, models.ErrInvalidToken
	}
	prefix := plainKey[:PrefixLength]

	candidates, err := s.repo.FindByPrefix(ctx, prefix)
	if err != nil {
		return models.APIKey{}, err
	}

	for _, k := range candidates {
		hash := hashPortion(k.KeyHash)
		if hash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(plainKey)) == nil {
			if k.Revoked() {
				return models.APIKey{}, models.ErrKeyRevoked
			}
			return k, nil
		}
	}

	return models.APIKey{}, models.ErrAPIKeyNotFound
}

func hashPortion(stored string) string {
	for i := 0; i < len(stored); i++ {
		if stored[i] == ':' {
			return stored[i+1:]
		}
	}
	return ""
}

func generatePlainKey() (plainKey, prefix string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	plainKey = KeyPrefixText + base64.RawURLEncoding.EncodeToString(randomBytes)
	if len(plainKey) < PrefixLength {
		return "", "", fmt.Errorf("generated key shorter than prefix length")
	}
	return plainKey, plainKey[:PrefixLength], nil
}
