package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrMenuNotFound = errors.Mark(errors.New("menu not found"), domain.ErrNotFound)
	ErrMenuConflict = errors.Mark(errors.New("menu with this slug already exists"), domain.ErrConflict)
)

var (
	slugPattern      = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	configKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

const (
	maxSlugLen        = 64
	maxTitleLen       = 256
	maxConfigKeyLen   = 64
	maxConfigValueLen = 50000
)

func ValidateMenu(m *domain.Menu) error {
	if m.Slug == "" || len(m.Slug) > maxSlugLen || !slugPattern.MatchString(m.Slug) {
		return domain.Validationf("slug must be 1-%d characters of letters, digits, '-' or '_'", maxSlugLen)
	}
	if strings.TrimSpace(m.Title) == "" || len(m.Title) > maxTitleLen {
		return domain.Validationf("title must be 1-%d characters", maxTitleLen)
	}
	for i := range m.Items {
		if err := m.Items[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MenuService serves menus through a per-tenant read cache that every
// write invalidates.
type MenuService struct {
	store  domain.MenuStore
	cache  *gocache.Cache
	logger *zap.Logger
}

func NewMenuService(s domain.MenuStore, ttl time.Duration, logger *zap.Logger) *MenuService {
	return &MenuService{
		store:  s,
		cache:  gocache.New(ttl, 2*ttl),
		logger: logger,
	}
}

func menuCacheKey(tenantID uuid.UUID) string {
	return "menus:" + tenantID.String()
}

func (s *MenuService) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Menu, error) {
	if v, ok := s.cache.Get(menuCacheKey(tenantID)); ok {
		return v.([]*domain.Menu), nil
	}
	menus, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(menuCacheKey(tenantID), menus)
	return menus, nil
}

func (s *MenuService) Get(ctx context.Context, tenantID uuid.UUID, slug string) (*domain.Menu, error) {
	menus, err := s.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	m, ok := lo.Find(menus, func(m *domain.Menu) bool { return m.Slug == slug })
	if !ok {
		return nil, ErrMenuNotFound
	}
	return m, nil
}

func (s *MenuService) Create(ctx context.Context, m *domain.Menu) error {
	if err := ValidateMenu(m); err != nil {
		return err
	}
	defer s.cache.Delete(menuCacheKey(m.TenantID))
	if err := s.store.Create(ctx, m); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrMenuConflict
		}
		return err
	}
	return nil
}

// Replace overwrites the menu's title and full item list.
func (s *MenuService) Replace(ctx context.Context, m *domain.Menu) error {
	if err := ValidateMenu(m); err != nil {
		return err
	}
	defer s.cache.Delete(menuCacheKey(m.TenantID))
	if err := s.store.Replace(ctx, m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMenuNotFound
		}
		return err
	}
	return nil
}

func (s *MenuService) Delete(ctx context.Context, tenantID uuid.UUID, slug string) error {
	defer s.cache.Delete(menuCacheKey(tenantID))
	if err := s.store.Delete(ctx, tenantID, slug); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMenuNotFound
		}
		return err
	}
	return nil
}

func (s *MenuService) CountAll(ctx context.Context) (int64, error) {
	return s.store.CountAll(ctx)
}

// ConfigService stores keyed bot settings behind the same cache policy.
type ConfigService struct {
	store domain.ConfigStore
	cache *gocache.Cache
}

func NewConfigService(s domain.ConfigStore, ttl time.Duration) *ConfigService {
	return &ConfigService{store: s, cache: gocache.New(ttl, 2*ttl)}
}

func (s *ConfigService) GetAll(ctx context.Context, tenantID uuid.UUID) (domain.BotConfig, error) {
	key := tenantID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(domain.BotConfig), nil
	}
	cfg, err := s.store.GetAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, cfg)
	return cfg, nil
}

func (s *ConfigService) Set(ctx context.Context, tenantID uuid.UUID, key, value string) error {
	if key == "" || len(key) > maxConfigKeyLen || !configKeyPattern.MatchString(key) {
		return domain.Validationf("key must be 1-%d characters of letters, digits or '_'", maxConfigKeyLen)
	}
	if len(value) > maxConfigValueLen {
		return domain.Validationf("value exceeds %d characters", maxConfigValueLen)
	}
	defer s.cache.Delete(tenantID.String())
	return s.store.Set(ctx, tenantID, key, value)
}
