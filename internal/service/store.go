package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
)

// UserStore is the identity store.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*models.Principal, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, user *models.Principal) error
}

// CardStore is the card ledger.
type CardStore interface {
	FindCardByID(ctx context.Context, id int64) (*models.Card, error)
	ExistsByCardNumber(ctx context.Context, number string) (bool, error)
	DeleteCard(ctx context.Context, id int64) error
	// ListCards pages over all cards, or over one owner's when ownerID is non-nil.
	ListCards(ctx context.Context, ownerID *int64, page models.PageRequest) ([]*models.Card, int64, error)
	// FindCardsByStatusBefore returns cards in status whose expiration date is strictly before date.
	FindCardsByStatusBefore(ctx context.Context, status models.CardStatus, date time.Time) ([]*models.Card, error)
	// WithinTx runs fn in one atomic unit of work; fn's error rolls it back.
	WithinTx(ctx context.Context, fn func(tx repository.CardTx) error) error
}

// Store is the full persistence collaborator.
type Store interface {
	UserStore
	CardStore
}

// storageError translates repository failures into service errors.
// notFound is used for repository.ErrNotFound; nil leaves it wrapped as is.
func storageError(err error, notFound *Error, op string) error {
	switch {
	case err == nil:
		return nil
	case KindOf(err) != KindInternal:
		return err
	case errors.Is(err, repository.ErrNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, repository.ErrTransient):
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
