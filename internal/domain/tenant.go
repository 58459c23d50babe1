package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Tenant struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	APIKeyHash    string    `json:"-"`
	PasswordHash  string    `json:"-"`
	IsActive      bool      `json:"is_active"`
	WAEnabled     bool      `json:"wa_enabled"`
	DailyLimit    int64     `json:"daily_limit"`
	MonthlyLimit  int64     `json:"monthly_limit"`
	TelegramToken string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (t *Tenant) IsAdmin() bool {
	return t.Role == RoleAdmin
}

// Limits returns the tenant's quota limits. Zero means unlimited.
func (t *Tenant) Limits() QuotaLimits {
	return QuotaLimits{Daily: t.DailyLimit, Monthly: t.MonthlyLimit}
}
