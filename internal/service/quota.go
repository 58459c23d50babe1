package service

import (
	"context"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/quota"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuotaService hydrates the in-memory ledger from persisted usage and records
// accepted sends back to the usage history.
type QuotaService struct {
	ledger  *quota.Ledger
	tenants domain.TenantStore
	usage   domain.UsageStore
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

func NewQuotaService(ledger *quota.Ledger, tenants domain.TenantStore, usage domain.UsageStore, loc *time.Location, logger *zap.Logger) *QuotaService {
	if loc == nil {
		loc = time.Local
	}
	return &QuotaService{
		ledger:  ledger,
		tenants: tenants,
		usage:   usage,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
	}
}

func (s *QuotaService) today() time.Time {
	return s.now().In(s.loc)
}

// ensure loads limits and counters outside the ledger's locks. Restore is
// idempotent, so concurrent loaders are harmless.
func (s *QuotaService) ensure(ctx context.Context, tenantID uuid.UUID) error {
	if s.ledger.Loaded(tenantID) {
		return nil
	}
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	now := s.today()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	todaySent, monthSent, err := s.usage.Totals(ctx, tenantID, now, monthStart)
	if err != nil {
		return err
	}
	s.ledger.Restore(tenantID, t.Limits(), todaySent, monthSent)
	return nil
}

// TryConsume checks and reserves n outbound sends for the tenant.
func (s *QuotaService) TryConsume(ctx context.Context, tenantID uuid.UUID, n int64) (domain.QuotaDecision, error) {
	if err := s.ensure(ctx, tenantID); err != nil {
		return domain.QuotaDecision{}, err
	}
	d := s.ledger.TryConsume(tenantID, n)
	if d.Allowed {
		if err := s.usage.Increment(ctx, tenantID, s.today(), n, 0); err != nil {
			s.logger.Warn("failed to record sent usage", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
	}
	return d, nil
}

// RecordReceived counts one inbound message in the usage history.
func (s *QuotaService) RecordReceived(ctx context.Context, tenantID uuid.UUID) {
	if err := s.usage.Increment(ctx, tenantID, s.today(), 0, 1); err != nil {
		s.logger.Warn("failed to record received usage", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}

func (s *QuotaService) Status(ctx context.Context, tenantID uuid.UUID) (domain.QuotaStatus, error) {
	if err := s.ensure(ctx, tenantID); err != nil {
		return domain.QuotaStatus{}, err
	}
	return s.ledger.Status(tenantID), nil
}

// SetLimits applies an administrative limit change to the live ledger.
func (s *QuotaService) SetLimits(tenantID uuid.UUID, limits domain.QuotaLimits) {
	if s.ledger.Loaded(tenantID) {
		s.ledger.SetLimits(tenantID, limits)
	}
}

func (s *QuotaService) History(ctx context.Context, tenantID uuid.UUID, days int) ([]domain.DailyUsage, error) {
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}
	from := s.today().AddDate(0, 0, -(days - 1))
	return s.usage.History(ctx, tenantID, from)
}

func (s *QuotaService) SentToday(ctx context.Context) (int64, error) {
	return s.usage.SentOn(ctx, s.today())
}
