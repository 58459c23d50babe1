package service

import (
	"sync"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/quota"
	"go.uber.org/zap"
)

const defaultRolloverInterval = time.Minute

// RolloverService applies day and month resets to loaded quota counters on
// a schedule, so idle tenants start the new period at zero.
type RolloverService struct {
	ledger *quota.Ledger
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRolloverService(ledger *quota.Ledger, logger *zap.Logger) *RolloverService {
	return &RolloverService{
		ledger:   ledger,
		logger:   logger,
		interval: defaultRolloverInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *RolloverService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs the rollover on a periodic schedule in a background goroutine.
func (s *RolloverService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("quota rollover started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				s.run()
			case <-s.stopCh:
				s.logger.Info("quota rollover stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the rollover loop.
func (s *RolloverService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *RolloverService) run() {
	if n := s.ledger.Rollover(); n > 0 {
		s.logger.Info("quota counters rolled over", zap.Int("tenants", n))
	}
}
