package repository

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) (*MemoryRepository, *models.Principal) {
	t.Helper()
	repo := NewMemoryRepository()
	user := &models.Principal{Username: "ivan", Role: models.RoleOwner, FirstName: "Ivan", LastName: "Petrov"}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return repo, user
}

func newCard(owner int64, number, balance string) *models.Card {
	return &models.Card{
		CardNumber:     number,
		OwnerID:        owner,
		Balance:        decimal.RequireFromString(balance),
		Status:         models.CardActive,
		ExpirationDate: time.Date(2030, 1, 1, 15, 0, 0, 0, time.UTC),
	}
}

func insertCard(ctx context.Context, repo interface {
	WithinTx(context.Context, func(CardTx) error) error
}, card *models.Card) error {
	return repo.WithinTx(ctx, func(tx CardTx) error {
		return tx.CreateCard(ctx, card)
	})
}

func TestMemory_Users(t *testing.T) {
	repo, user := seedMemory(t)
	ctx := context.Background()
	assert.NotZero(t, user.ID)

	err := repo.CreateUser(ctx, &models.Principal{Username: "ivan"})
	assert.ErrorIs(t, err, ErrConflict)

	exists, err := repo.ExistsByUsername(ctx, "ivan")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.FindUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UserRoleUnderLock(t *testing.T) {
	repo, user := seedMemory(t)
	ctx := context.Background()

	err := repo.WithinTx(ctx, func(tx CardTx) error {
		return tx.UpdateUserRole(ctx, user.ID, models.RoleAdmin)
	})
	assert.Error(t, err, "updating an unlocked user")

	err = repo.WithinTx(ctx, func(tx CardTx) error {
		_, err := tx.LockUser(ctx, 99)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.WithinTx(ctx, func(tx CardTx) error {
		locked, err := tx.LockUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleOwner, locked.Role)
		require.NoError(t, tx.UpdateUserRole(ctx, user.ID, models.RoleAdmin))

		// the tx sees its own change before commit
		again, err := tx.LockUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, again.Role)
		stored, err := repo.FindUserByUsername(ctx, user.Username)
		require.NoError(t, err)
		assert.Equal(t, models.RoleOwner, stored.Role)
		return nil
	})
	require.NoError(t, err)
	got, err := repo.FindUserByUsername(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
}

func TestMemory_CreateCardInTx(t *testing.T) {
	repo, user := seedMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	card := newCard(user.ID, "4000-0000-0000-0001", "5")
	err := repo.WithinTx(ctx, func(tx CardTx) error {
		require.NoError(t, tx.CreateCard(ctx, card))
		n, err := tx.CountCards(ctx, user.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		assert.ErrorIs(t, tx.CreateCard(ctx, newCard(user.ID, "4000-0000-0000-0001", "1")), ErrConflict)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	exists, err := repo.ExistsByCardNumber(ctx, card.CardNumber)
	require.NoError(t, err)
	assert.False(t, exists, "rolled back insert")

	require.NoError(t, insertCard(ctx, repo, card))
	assert.NotZero(t, card.ID)
	err = repo.WithinTx(ctx, func(tx CardTx) error {
		n, err := tx.CountCards(ctx, user.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_Cards(t *testing.T) {
	repo, user := seedMemory(t)
	ctx := context.Background()

	card := newCard(user.ID, "4000-0000-0000-0001", "10")
	require.NoError(t, insertCard(ctx, repo, card))
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), card.ExpirationDate)

	assert.ErrorIs(t, insertCard(ctx, repo, newCard(user.ID, "4000-0000-0000-0001", "1")), ErrConflict)
	assert.ErrorIs(t, insertCard(ctx, repo, newCard(404, "4000-0000-0000-0002", "1")), ErrNotFound)

	// returned cards are copies
	got, err := repo.FindCardByID(ctx, card.ID)
	require.NoError(t, err)
	got.Balance = decimal.NewFromInt(1000)
	again, err := repo.FindCardByID(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, again.Balance.Equal(decimal.NewFromInt(10)))

	require.NoError(t, repo.DeleteCard(ctx, card.ID))
	assert.ErrorIs(t, repo.DeleteCard(ctx, card.ID), ErrNotFound)
	exists, err := repo.ExistsByCardNumber(ctx, card.CardNumber)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_ListAndFindBefore(t *testing.T) {
	repo, user := seedMemory(t)
	other := &models.Principal{Username: "olga", Role: models.RoleOwner}
	require.NoError(t, repo.CreateUser(context.Background(), other))
	ctx := context.Background()

	for i, n := range []string{"1", "2", "3"} {
		c := newCard(user.ID, "4000-0000-0000-000"+n, "1")
		c.ExpirationDate = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, insertCard(ctx, repo, c))
	}
	require.NoError(t, insertCard(ctx, repo, newCard(other.ID, "4000-0000-0000-0009", "1")))

	cards, total, err := repo.ListCards(ctx, &user.ID, models.PageRequest{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, cards, 1)
	assert.Equal(t, "4000-0000-0000-0003", cards[0].CardNumber)

	_, total, err = repo.ListCards(ctx, nil, models.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)

	cards, _, err = repo.ListCards(ctx, nil, models.PageRequest{Page: 5, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, cards)

	// an offset that overflowed is treated as past the end
	cards, _, err = repo.ListCards(ctx, nil, models.PageRequest{Page: math.MaxInt, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, cards)

	due, err := repo.FindCardsByStatusBefore(ctx, models.CardActive, time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestMemory_TxStagesUntilCommit(t *testing.T) {
	repo, user := seedMemory(t)
	ctx := context.Background()
	card := newCard(user.ID, "4000-0000-0000-0001", "10")
	require.NoError(t, insertCard(ctx, repo, card))

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(tx CardTx) error {
		cards, err := tx.LockCards(ctx, card.ID)
		require.NoError(t, err)
		cards[card.ID].Balance = decimal.Zero
		require.NoError(t, tx.SaveCard(ctx, cards[card.ID]))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	stored, _ := repo.FindCardByID(ctx, card.ID)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(10)))
	assert.Zero(t, repo.SaveCount(card.ID))

	err = repo.WithinTx(ctx, func(tx CardTx) error {
		return tx.SaveCard(ctx, card)
	})
	assert.Error(t, err, "saving an unlocked card")

	err = repo.WithinTx(ctx, func(tx CardTx) error {
		cards, _ := tx.LockCards(ctx, card.ID)
		cards[card.ID].Balance = decimal.NewFromInt(-1)
		return tx.SaveCard(ctx, cards[card.ID])
	})
	assert.Error(t, err, "negative balance")

	err = repo.WithinTx(ctx, func(tx CardTx) error {
		cards, _ := tx.LockCards(ctx, card.ID, 404)
		assert.Len(t, cards, 1)
		cards[card.ID].Status = models.CardBlocked
		return tx.SaveCard(ctx, cards[card.ID])
	})
	require.NoError(t, err)
	stored, _ = repo.FindCardByID(ctx, card.ID)
	assert.Equal(t, models.CardBlocked, stored.Status)
	assert.Equal(t, 1, repo.SaveCount(card.ID))
}

func TestMemory_CancelledContextIsTransient(t *testing.T) {
	repo, _ := seedMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.WithinTx(ctx, func(CardTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrTransient)
	assert.False(t, called)
}
