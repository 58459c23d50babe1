package domain

import "time"

// QuotaLimits caps outbound messages per tenant. Zero means unlimited.
type QuotaLimits struct {
	Daily   int64 `json:"daily_limit"`
	Monthly int64 `json:"monthly_limit"`
}

// QuotaDecision is the result of a check-and-increment. Remaining values are
// -1 when the corresponding limit is unlimited.
type QuotaDecision struct {
	Allowed          bool  `json:"allowed"`
	RemainingDaily   int64 `json:"remaining_daily"`
	RemainingMonthly int64 `json:"remaining_monthly"`
}

// QuotaStatus is the reporting view embedded in dashboard responses.
type QuotaStatus struct {
	DailyLimit       int64 `json:"daily_limit"`
	MonthlyLimit     int64 `json:"monthly_limit"`
	TodaySent        int64 `json:"today_sent"`
	MonthSent        int64 `json:"month_sent"`
	DailyRemaining   int64 `json:"daily_remaining"`
	MonthlyRemaining int64 `json:"monthly_remaining"`
	DailyPercent     int64 `json:"daily_percent"`
	MonthlyPercent   int64 `json:"monthly_percent"`
}

// NewQuotaStatus derives remaining and percent fields from raw counters.
func NewQuotaStatus(limits QuotaLimits, todaySent, monthSent int64) QuotaStatus {
	s := QuotaStatus{
		DailyLimit:   limits.Daily,
		MonthlyLimit: limits.Monthly,
		TodaySent:    todaySent,
		MonthSent:    monthSent,
	}
	s.DailyRemaining, s.DailyPercent = remainingAndPercent(limits.Daily, todaySent)
	s.MonthlyRemaining, s.MonthlyPercent = remainingAndPercent(limits.Monthly, monthSent)
	return s
}

func remainingAndPercent(limit, sent int64) (int64, int64) {
	if limit <= 0 {
		return -1, 0
	}
	remaining := limit - sent
	if remaining < 0 {
		remaining = 0
	}
	percent := sent * 100 / limit
	if percent > 100 {
		percent = 100
	}
	return remaining, percent
}

// DailyUsage is one row of per-day message history.
type DailyUsage struct {
	Date             time.Time `json:"date"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
}
