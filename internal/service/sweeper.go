package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dan9191/bank-cards/internal/metrics"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ExpiryNotifier receives the cards expired by one sweep.
type ExpiryNotifier interface {
	SendExpiryReport(day time.Time, expired []*models.Card) error
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Checked int
	Expired []*models.Card
	Failed  int
}

// ExpirationSweeper moves past-due cards to EXPIRED on a schedule.
type ExpirationSweeper struct {
	store    CardStore
	log      *logrus.Logger
	loc      *time.Location
	now      func() time.Time
	notifier ExpiryNotifier

	mu   sync.Mutex
	cron *cron.Cron
}

// NewExpirationSweeper creates a sweeper that computes "today" in loc.
func NewExpirationSweeper(store CardStore, log *logrus.Logger, loc *time.Location) *ExpirationSweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &ExpirationSweeper{store: store, log: log, loc: loc, now: time.Now}
}

// WithNotifier attaches a report recipient for expired cards.
func (e *ExpirationSweeper) WithNotifier(n ExpiryNotifier) *ExpirationSweeper {
	e.notifier = n
	return e
}

// WithClock overrides the time source.
func (e *ExpirationSweeper) WithClock(now func() time.Time) *ExpirationSweeper {
	e.now = now
	return e
}

// Run sweeps for the current date.
func (e *ExpirationSweeper) Run(ctx context.Context) (SweepResult, error) {
	return e.RunFor(ctx, todayIn(e.now(), e.loc))
}

// RunFor expires every ACTIVE card whose expiration date is strictly
// before today. Each card is re-read under lock and updated in
// its own transaction, so a failure on one card leaves the rest intact
// and a repeated run changes nothing.
func (e *ExpirationSweeper) RunFor(ctx context.Context, today time.Time) (SweepResult, error) {
	today = models.DateOnly(today)
	var res SweepResult

	candidates, err := e.store.FindCardsByStatusBefore(ctx, models.CardActive, today)
	if err != nil {
		return res, storageError(err, nil, "find expired cards")
	}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		card, err := e.expire(ctx, c.ID, today)
		if err != nil {
			res.Failed++
			metrics.SweepFailuresTotal.Inc()
			e.log.WithError(err).Warnf("Failed to expire card %d", c.ID)
			continue
		}
		if card != nil {
			res.Expired = append(res.Expired, card)
			metrics.SweepExpiredTotal.Inc()
		}
	}

	e.log.WithFields(logrus.Fields{
		"date":    today.Format("2006-01-02"),
		"checked": res.Checked,
		"expired": len(res.Expired),
		"failed":  res.Failed,
	}).Info("Expiration sweep finished")

	if e.notifier != nil && len(res.Expired) > 0 {
		if err := e.notifier.SendExpiryReport(today, res.Expired); err != nil {
			e.log.WithError(err).Error("Failed to send expiry report")
		}
	}
	return res, nil
}

// expire returns nil, nil when the card no longer qualifies.
func (e *ExpirationSweeper) expire(ctx context.Context, id int64, today time.Time) (*models.Card, error) {
	var expired *models.Card
	err := e.store.WithinTx(ctx, func(tx repository.CardTx) error {
		cards, err := tx.LockCards(ctx, id)
		if err != nil {
			return err
		}
		card, ok := cards[id]
		if !ok || card.Status != models.CardActive || !card.ExpirationDate.Before(today) {
			return nil
		}
		if err := Expire(card); err != nil {
			return err
		}
		if err := tx.SaveCard(ctx, card); err != nil {
			return err
		}
		expired = card
		return nil
	})
	if err != nil {
		return nil, storageError(err, nil, fmt.Sprintf("expire card %d", id))
	}
	if expired != nil {
		metrics.CardTransitionsTotal.WithLabelValues(string(models.CardExpired)).Inc()
	}
	return expired, nil
}

// Start schedules Run with a standard five-field cron expression.
func (e *ExpirationSweeper) Start(schedule string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cron != nil {
		return errors.New("sweeper already started")
	}

	logger := cron.PrintfLogger(e.log)
	c := cron.New(
		cron.WithLocation(e.loc),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		if _, err := e.Run(context.Background()); err != nil {
			e.log.WithError(err).Error("Expiration sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	e.cron = c
	e.log.Infof("Expiration sweeper scheduled: %s (%s)", schedule, e.loc)
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (e *ExpirationSweeper) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
