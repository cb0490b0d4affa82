package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Dan9191/bank-cards/internal/metrics"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/shopspring/decimal"
)

// CreateCard issues a new card to an existing card owner
func (s *Service) CreateCard(ctx context.Context, actor *models.Principal, req models.CardCreationRequest) (*models.Card, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}

	number := strings.TrimSpace(req.CardNumber)
	if req.UserID == nil || number == "" {
		return nil, ErrInvalidCardRequest
	}
	if !utils.ValidCardNumber(number, s.config.CardBIN) {
		return nil, ErrInvalidCardNumber
	}
	balance := decimal.Zero
	if req.Balance != nil {
		balance = *req.Balance
	}
	if balance.IsNegative() || !hasCents(balance) {
		return nil, ErrInvalidBalance
	}

	exists, err := s.store.ExistsByCardNumber(ctx, number)
	if err != nil {
		return nil, storageError(err, nil, "create card")
	}
	if exists {
		return nil, ErrCardExists
	}

	// the owner row stays locked until the card is inserted, so a
	// concurrent promotion to admin waits for this issue to finish
	var card *models.Card
	err = s.store.WithinTx(ctx, func(tx repository.CardTx) error {
		owner, err := tx.LockUser(ctx, *req.UserID)
		if err != nil {
			return err
		}
		if owner.IsAdmin() {
			return ErrAdminCannotOwnCard
		}
		card = &models.Card{
			CardNumber:     number,
			OwnerID:        owner.ID,
			OwnerName:      owner.FullName(),
			Balance:        balance,
			Status:         models.CardActive,
			ExpirationDate: s.today().AddDate(s.config.CardValidityYears, 0, 0),
		}
		return tx.CreateCard(ctx, card)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrCardExists
		}
		return nil, storageError(err, ErrUserNotFound, "create card")
	}

	s.log.Infof("Card %d created for user %d", card.ID, card.OwnerID)
	return card, nil
}

// ListCards pages over all cards for an admin and over own cards for an owner
func (s *Service) ListCards(ctx context.Context, actor *models.Principal, page models.PageRequest) (models.Page[*models.Card], error) {
	page = page.Normalize()
	var ownerID *int64
	if actor == nil {
		return models.Page[*models.Card]{}, ErrUnauthenticated
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleOwner:
		ownerID = &actor.ID
	default:
		return models.Page[*models.Card]{}, ErrForbidden
	}

	cards, total, err := s.store.ListCards(ctx, ownerID, page)
	if err != nil {
		return models.Page[*models.Card]{}, storageError(err, nil, "list cards")
	}
	return models.NewPage(cards, page, total), nil
}

// GetCard returns a card the actor is allowed to see
func (s *Service) GetCard(ctx context.Context, actor *models.Principal, id int64) (*models.Card, error) {
	card, err := s.store.FindCardByID(ctx, id)
	if err != nil {
		return nil, storageError(err, ErrCardNotFound, "get card")
	}
	if err := authorizeCardAccess(actor, card); err != nil {
		return nil, err
	}
	return card, nil
}

// BlockCard blocks a card; owners may only block their own cards
func (s *Service) BlockCard(ctx context.Context, actor *models.Principal, id int64) (*models.Card, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleOwner); err != nil {
		return nil, err
	}
	card, err := s.mutateCard(ctx, id, func(card *models.Card) error {
		if err := authorizeCardAccess(actor, card); err != nil {
			return err
		}
		return Block(card)
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Card %d blocked by %s", id, actor.Username)
	return card, nil
}

// UnblockCard reactivates a blocked card
func (s *Service) UnblockCard(ctx context.Context, actor *models.Principal, id int64) (*models.Card, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	card, err := s.mutateCard(ctx, id, Unblock)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Card %d unblocked by %s", id, actor.Username)
	return card, nil
}

// DeleteCard removes a card
func (s *Service) DeleteCard(ctx context.Context, actor *models.Principal, id int64) error {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return err
	}
	if err := s.store.DeleteCard(ctx, id); err != nil {
		return storageError(err, ErrCardNotFound, "delete card")
	}
	s.log.Infof("Card %d deleted by %s", id, actor.Username)
	return nil
}

// mutateCard applies fn to the locked card and saves it in one transaction.
func (s *Service) mutateCard(ctx context.Context, id int64, fn func(*models.Card) error) (*models.Card, error) {
	var updated *models.Card
	err := s.store.WithinTx(ctx, func(tx repository.CardTx) error {
		cards, err := tx.LockCards(ctx, id)
		if err != nil {
			return err
		}
		card, ok := cards[id]
		if !ok {
			return ErrCardNotFound
		}
		if err := fn(card); err != nil {
			return err
		}
		if err := tx.SaveCard(ctx, card); err != nil {
			return err
		}
		updated = card
		return nil
	})
	if err != nil {
		return nil, storageError(err, ErrCardNotFound, "update card")
	}
	metrics.CardTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()
	return updated, nil
}

// hasCents reports whether d has at most two fractional digits.
func hasCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
