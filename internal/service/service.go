package service

import (
	"time"

	"github.com/Dan9191/bank-cards/internal/auth"
	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/sirupsen/logrus"
)

// Service handles business logic
type Service struct {
	store  Store
	tokens *auth.TokenService
	log    *logrus.Logger
	config *config.Config
	now    func() time.Time
}

// NewService initializes a new service
func NewService(store Store, tokens *auth.TokenService, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{store: store, tokens: tokens, log: log, config: cfg, now: time.Now}
}

// today is the current calendar date as a UTC-midnight time.
func (s *Service) today() time.Time {
	loc, err := time.LoadLocation(s.config.SweepTimezone)
	if err != nil {
		loc = time.UTC
	}
	return todayIn(s.now(), loc)
}

func todayIn(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WithClock overrides the time source used for card dates.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
