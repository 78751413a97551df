// Package apikey issues and validates API keys. Only the SHA-256 of a key
// is stored; the raw key is shown once, when it is created.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

var (
	ErrInvalidKey = apperrors.New(apperrors.ErrUnauthenticated, 401, "invalid api key")
	ErrExpiredKey = apperrors.New(apperrors.ErrUnauthenticated, 401, "api key expired")
)

// KeyInfo describes an issued key.
type KeyInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Principal   string     `json:"principal"`
	Authorities []string   `json:"authorities,omitempty"`
	RateLimit   int        `json:"rateLimit"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Caller is the identity the key authenticates.
func (k *KeyInfo) Caller() auth.Caller {
	return auth.Caller{Principal: k.Principal, Authorities: k.Authorities}
}

// Store persists keys by hash.
type Store interface {
	Lookup(ctx context.Context, hash string) (KeyInfo, bool, error)
	Insert(ctx context.Context, hash string, info KeyInfo) error
	Deactivate(ctx context.Context, hash string) (bool, error)
	List(ctx context.Context) ([]KeyInfo, error)
}

// Validator issues, validates and revokes keys.
type Validator struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewValidator creates a Validator over store.
func NewValidator(store Store) *Validator {
	return &Validator{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Validate returns the active key matching rawKey.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	info, found, err := v.store.Lookup(ctx, HashKey(rawKey))
	if err != nil {
		return nil, fmt.Errorf("looking up api key: %w", err)
	}
	if !found || !info.Active {
		return nil, ErrInvalidKey
	}
	if info.ExpiresAt != nil && !v.now().Before(*info.ExpiresAt) {
		return nil, ErrExpiredKey
	}
	return &info, nil
}

// CreateKey issues a key for principal and returns the raw key.
func (v *Validator) CreateKey(ctx context.Context, spec KeyInfo) (string, *KeyInfo, error) {
	if spec.Principal == "" {
		return "", nil, apperrors.New(apperrors.ErrInvalidInput, 400, "api key needs a principal")
	}
	raw, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}
	spec.ID = uuid.NewString()
	spec.Active = true
	spec.CreatedAt = v.now().UTC()
	if spec.Name == "" {
		spec.Name = spec.Principal
	}
	if err := v.store.Insert(ctx, HashKey(raw), spec); err != nil {
		return "", nil, fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "id", spec.ID, "principal", spec.Principal, "rate_limit", spec.RateLimit)
	return raw, &spec, nil
}

// RevokeKey deactivates rawKey.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	ok, err := v.store.Deactivate(ctx, HashKey(rawKey))
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if !ok {
		return ErrInvalidKey
	}
	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns the active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	return v.store.List(ctx)
}

// HashKey returns the hex SHA-256 of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
