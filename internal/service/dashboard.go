package service

import (
	"context"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// SessionReader is the read side of the session orchestrator.
type SessionReader interface {
	Status(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error)
	ConnectedCount(kind domain.ChannelKind) int
}

type DashboardStats struct {
	MenuCount   int                `json:"menu_count"`
	TableCount  int                `json:"table_count"`
	ConfigCount int                `json:"config_count"`
	WAConnected bool               `json:"wa_connected"`
	WAPhone     string             `json:"wa_phone,omitempty"`
	WAName      string             `json:"wa_name,omitempty"`
	TGConnected bool               `json:"tg_connected"`
	TGBotName   string             `json:"tg_bot_name,omitempty"`
	Quota       domain.QuotaStatus `json:"quota"`
}

type AdminStats struct {
	TotalUsers    int   `json:"total_users"`
	ActiveUsers   int   `json:"active_users"`
	WAConnected   int   `json:"wa_connected"`
	TGConnected   int   `json:"tg_connected"`
	TotalTables   int64 `json:"total_tables"`
	TotalMenus    int64 `json:"total_menus"`
	MessagesToday int64 `json:"messages_today"`
}

// TenantOverview is one row of the admin user listing.
type TenantOverview struct {
	*domain.Tenant
	Quota     domain.QuotaStatus  `json:"quota"`
	WAState   domain.SessionState `json:"wa_state"`
	TGState   domain.SessionState `json:"tg_state"`
	WAPhone   string              `json:"wa_phone,omitempty"`
	TGBotName string              `json:"tg_bot_name,omitempty"`
}

type DashboardService struct {
	tenants  *TenantService
	menus    *MenuService
	configs  *ConfigService
	datasets *DatasetService
	quota    *QuotaService
	sessions SessionReader
	logger   *zap.Logger
}

func NewDashboardService(tenants *TenantService, menus *MenuService, configs *ConfigService, datasets *DatasetService, quota *QuotaService, sessions SessionReader, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		tenants:  tenants,
		menus:    menus,
		configs:  configs,
		datasets: datasets,
		quota:    quota,
		sessions: sessions,
		logger:   logger,
	}
}

// Stats summarizes one tenant's bot for the dashboard home page.
func (s *DashboardService) Stats(ctx context.Context, tenantID uuid.UUID) (*DashboardStats, error) {
	menus, err := s.menus.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tables, err := s.datasets.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	q, err := s.quota.Status(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	st := &DashboardStats{
		MenuCount:   len(menus),
		TableCount:  len(tables),
		ConfigCount: len(cfg),
		Quota:       q,
	}
	if wa := s.session(ctx, tenantID, domain.ChannelWhatsApp); wa.State == domain.StateConnected {
		st.WAConnected, st.WAPhone, st.WAName = true, wa.Identity, wa.DisplayName
	}
	if tg := s.session(ctx, tenantID, domain.ChannelTelegram); tg.State == domain.StateConnected {
		st.TGConnected, st.TGBotName = true, tg.Identity
	}
	return st, nil
}

// session never fails the caller; a broken status read shows as uninitialized.
func (s *DashboardService) session(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) domain.ChannelSession {
	cs, err := s.sessions.Status(ctx, tenantID, kind)
	if err != nil {
		s.logger.Warn("failed to read session status",
			zap.String("tenant_id", tenantID.String()),
			zap.String("channel", string(kind)),
			zap.Error(err))
		return domain.ChannelSession{TenantID: tenantID, Kind: kind, State: domain.StateUninitialized}
	}
	return cs
}

func (s *DashboardService) AdminStats(ctx context.Context) (*AdminStats, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := s.datasets.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	menus, err := s.menus.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	sent, err := s.quota.SentToday(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminStats{
		TotalUsers:    len(tenants),
		ActiveUsers:   lo.CountBy(tenants, func(t *domain.Tenant) bool { return t.IsActive }),
		WAConnected:   s.sessions.ConnectedCount(domain.ChannelWhatsApp),
		TGConnected:   s.sessions.ConnectedCount(domain.ChannelTelegram),
		TotalTables:   tables,
		TotalMenus:    menus,
		MessagesToday: sent,
	}, nil
}

// Users lists every tenant with its quota and session states. Per-tenant
// lookups run concurrently; a tenant whose quota fails to load is listed
// with an empty quota.
func (s *DashboardService) Users(ctx context.Context) ([]TenantOverview, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]TenantOverview, len(tenants))
	var wg conc.WaitGroup
	for i, t := range tenants {
		wg.Go(func() {
			ov := TenantOverview{Tenant: t}
			if q, err := s.quota.Status(ctx, t.ID); err == nil {
				ov.Quota = q
			} else {
				s.logger.Warn("failed to load quota", zap.String("tenant_id", t.ID.String()), zap.Error(err))
			}
			wa := s.session(ctx, t.ID, domain.ChannelWhatsApp)
			tg := s.session(ctx, t.ID, domain.ChannelTelegram)
			ov.WAState, ov.TGState = wa.State, tg.State
			if wa.State == domain.StateConnected {
				ov.WAPhone = wa.Identity
			}
			if tg.State == domain.StateConnected {
				ov.TGBotName = tg.Identity
			}
			out[i] = ov
		})
	}
	wg.Wait()
	return out, nil
}
