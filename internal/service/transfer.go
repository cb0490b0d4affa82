package service

import (
	"context"

	"github.com/Dan9191/bank-cards/internal/metrics"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TransferResult holds both cards as committed by a transfer.
type TransferResult struct {
	Source *models.Card
	Target *models.Card
}

// Transfer moves amount between two cards of the acting owner.
// The checks on balances and statuses, and both writes, happen while
// both card rows are locked in ascending id order.
func (s *Service) Transfer(ctx context.Context, actor *models.Principal, sourceID, targetID int64, amount decimal.Decimal) (*TransferResult, error) {
	res, err := s.transfer(ctx, actor, sourceID, targetID, amount)
	if err != nil {
		metrics.TransfersTotal.WithLabelValues(KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.TransfersTotal.WithLabelValues("ok").Inc()
	s.log.WithFields(logrus.Fields{
		"user":   actor.Username,
		"source": sourceID,
		"target": targetID,
		"amount": amount.String(),
	}).Info("Transfer completed")
	return res, nil
}

func (s *Service) transfer(ctx context.Context, actor *models.Principal, sourceID, targetID int64, amount decimal.Decimal) (*TransferResult, error) {
	// admins cannot move money on behalf of owners
	if err := requireRole(actor, models.RoleOwner); err != nil {
		return nil, err
	}
	if sourceID == targetID {
		return nil, ErrSameCard
	}
	if !amount.IsPositive() || !hasCents(amount) {
		return nil, ErrInvalidAmount
	}

	var res *TransferResult
	err := s.store.WithinTx(ctx, func(tx repository.CardTx) error {
		cards, err := tx.LockCards(ctx, sourceID, targetID)
		if err != nil {
			return err
		}
		source, ok := cards[sourceID]
		if !ok {
			return ErrCardNotFound
		}
		target, ok := cards[targetID]
		if !ok {
			return ErrCardNotFound
		}

		if err := ValidateOwnership(source, actor.ID); err != nil {
			return err
		}
		if err := ValidateOwnership(target, actor.ID); err != nil {
			return err
		}
		if err := ValidateUsable(source); err != nil {
			return err
		}
		if err := ValidateUsable(target); err != nil {
			return err
		}
		if source.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		source.Balance = source.Balance.Sub(amount)
		target.Balance = target.Balance.Add(amount)
		if err := tx.SaveCard(ctx, source); err != nil {
			return err
		}
		if err := tx.SaveCard(ctx, target); err != nil {
			return err
		}
		res = &TransferResult{Source: source, Target: target}
		return nil
	})
	if err != nil {
		return nil, storageError(err, ErrCardNotFound, "transfer")
	}
	return res, nil
}
