package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTenantNotFound     = errors.Mark(errors.New("tenant not found"), domain.ErrNotFound)
	ErrTenantConflict     = errors.Mark(errors.New("tenant with this name already exists"), domain.ErrConflict)
	ErrInvalidCredentials = errors.Mark(errors.New("invalid credentials"), domain.ErrUnauthorized)
	ErrTenantInactive     = errors.Mark(errors.New("tenant is inactive"), domain.ErrForbidden)
	ErrJWTDisabled        = errors.Mark(errors.New("token login is not configured"), domain.ErrForbidden)
)

// TokenClaims are the claims carried by dashboard login tokens.
type TokenClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type TenantDefaults struct {
	DailyLimit   int64
	MonthlyLimit int64
}

type TenantService struct {
	store     domain.TenantStore
	jwtSecret []byte
	jwtTTL    time.Duration
	defaults  TenantDefaults
	logger    *zap.Logger
	now       func() time.Time
}

func NewTenantService(s domain.TenantStore, jwtSecret string, jwtTTL time.Duration, defaults TenantDefaults, logger *zap.Logger) *TenantService {
	return &TenantService{
		store:     s,
		jwtSecret: []byte(jwtSecret),
		jwtTTL:    jwtTTL,
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}
}

// GenerateAPIKey returns a new random API key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "bd_" + hex.EncodeToString(b), nil
}

// HashAPIKey returns the stored form of an API key.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// Create registers a tenant and returns its plaintext API key, which is not
// retrievable later.
func (s *TenantService) Create(ctx context.Context, name, password string, role domain.Role) (*domain.Tenant, string, error) {
	apiKey, err := GenerateAPIKey()
	if err != nil {
		return nil, "", errors.Wrap(err, "generate api key")
	}

	t := &domain.Tenant{
		Name:         name,
		Role:         role,
		APIKeyHash:   HashAPIKey(apiKey),
		IsActive:     true,
		WAEnabled:    true,
		DailyLimit:   s.defaults.DailyLimit,
		MonthlyLimit: s.defaults.MonthlyLimit,
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", errors.Wrap(err, "hash password")
		}
		t.PasswordHash = string(hash)
	}

	if err := s.store.Create(ctx, t); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", ErrTenantConflict
		}
		return nil, "", err
	}
	return t, apiKey, nil
}

// EnsureAdmin creates an admin tenant with the given name if none exists.
func (s *TenantService) EnsureAdmin(ctx context.Context, name, password string) error {
	_, err := s.store.GetByName(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, _, err := s.Create(ctx, name, password, domain.RoleAdmin); err != nil && !errors.Is(err, ErrTenantConflict) {
		return err
	}
	s.logger.Info("admin tenant created", zap.String("name", name))
	return nil
}

// Authenticate resolves a bearer credential, which is either an API key or a
// login token, to an active tenant.
func (s *TenantService) Authenticate(ctx context.Context, bearer string) (*domain.Tenant, error) {
	var (
		t   *domain.Tenant
		err error
	)
	if len(s.jwtSecret) > 0 && strings.Count(bearer, ".") == 2 {
		t, err = s.fromToken(ctx, bearer)
	} else {
		t, err = s.store.GetByAPIKeyHash(ctx, HashAPIKey(bearer))
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrTenantInactive
	}
	return t, nil
}

func (s *TenantService) fromToken(ctx context.Context, raw string) (*domain.Tenant, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	id, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.store.GetByID(ctx, id)
}

// Login checks a tenant's password and issues a signed token.
func (s *TenantService) Login(ctx context.Context, name, password string) (string, time.Time, *domain.Tenant, error) {
	if len(s.jwtSecret) == 0 {
		return "", time.Time{}, nil, ErrJWTDisabled
	}
	t, err := s.store.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", time.Time{}, nil, ErrInvalidCredentials
		}
		return "", time.Time{}, nil, err
	}
	if t.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(password)) != nil {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}
	if !t.IsActive {
		return "", time.Time{}, nil, ErrTenantInactive
	}

	now := s.now()
	exp := now.Add(s.jwtTTL)
	claims := TokenClaims{
		TenantID: t.ID.String(),
		Role:     string(t.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   t.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, nil, errors.Wrap(err, "sign token")
	}
	return signed, exp, t, nil
}

func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TenantService) List(ctx context.Context) ([]*domain.Tenant, error) {
	return s.store.List(ctx)
}

func (s *TenantService) mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrTenantNotFound
	}
	return err
}

func (s *TenantService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.mapNotFound(s.store.UpdateStatus(ctx, id, active))
}

func (s *TenantService) SetWAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.mapNotFound(s.store.UpdateWAEnabled(ctx, id, enabled))
}

func (s *TenantService) SetLimits(ctx context.Context, id uuid.UUID, limits domain.QuotaLimits) error {
	if limits.Daily < 0 || limits.Monthly < 0 {
		return domain.Validationf("limits must be non-negative")
	}
	return s.mapNotFound(s.store.UpdateLimits(ctx, id, limits))
}

func (s *TenantService) SetTelegramToken(ctx context.Context, id uuid.UUID, token string) error {
	return s.mapNotFound(s.store.UpdateTelegramToken(ctx, id, token))
}
