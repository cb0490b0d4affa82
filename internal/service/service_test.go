package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/bank-cards/internal/auth"
	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:         "test-secret",
		JWTTTL:            time.Hour,
		BcryptCost:        bcrypt.MinCost,
		CardBIN:           "4000",
		CardValidityYears: 5,
		SweepTimezone:     "UTC",
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	svc   *Service
	repo  *repository.MemoryRepository
	admin *models.Principal
	seq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	repo := repository.NewMemoryRepository()
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	svc := NewService(repo, tokens, quietLogger(), cfg).WithClock(func() time.Time { return testNow })

	require.NoError(t, svc.EnsureAdmin(context.Background(), "admin", "admin-password"))
	admin, err := repo.FindUserByUsername(context.Background(), "admin")
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, admin: admin}
}

func (f *fixture) owner(t *testing.T, username string) *models.Principal {
	t.Helper()
	_, err := f.svc.Register(context.Background(), models.RegistrationRequest{
		Username:  username,
		Password:  "password",
		FirstName: "Ivan",
		LastName:  "Petrov",
	})
	require.NoError(t, err)
	p, err := f.repo.FindUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return p
}

func (f *fixture) nextNumber() string {
	f.seq++
	return fmt.Sprintf("4000-0000-0000-%04d", f.seq)
}

func (f *fixture) card(t *testing.T, owner *models.Principal, balance string) *models.Card {
	t.Helper()
	b := decimal.RequireFromString(balance)
	card, err := f.svc.CreateCard(context.Background(), f.admin, models.CardCreationRequest{
		CardNumber: f.nextNumber(),
		UserID:     &owner.ID,
		Balance:    &b,
	})
	require.NoError(t, err)
	return card
}

func (f *fixture) stored(t *testing.T, id int64) *models.Card {
	t.Helper()
	card, err := f.repo.FindCardByID(context.Background(), id)
	require.NoError(t, err)
	return card
}

func (f *fixture) setStatus(t *testing.T, id int64, status models.CardStatus) {
	t.Helper()
	err := f.repo.WithinTx(context.Background(), func(tx repository.CardTx) error {
		cards, err := tx.LockCards(context.Background(), id)
		if err != nil {
			return err
		}
		cards[id].Status = status
		return tx.SaveCard(context.Background(), cards[id])
	})
	require.NoError(t, err)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.svc.Register(ctx, models.RegistrationRequest{
		Username: "ivan", Password: "secret", FirstName: "Ivan", LastName: "Petrov",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	p, err := f.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ivan", p.Username)
	assert.Equal(t, models.RoleOwner, p.Role)
	assert.Equal(t, "Ivan Petrov", p.FullName())
	assert.NotEqual(t, "secret", p.PasswordHash)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.owner(t, "ivan")

	_, err := f.svc.Register(context.Background(), models.RegistrationRequest{
		Username: "ivan", Password: "other", FirstName: "Other", LastName: "Person",
	})
	require.ErrorIs(t, err, ErrUserExists)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  models.RegistrationRequest
		want error
	}{
		{"empty username", models.RegistrationRequest{Password: "p", FirstName: "A", LastName: "B"}, ErrEmptyCredentials},
		{"blank password", models.RegistrationRequest{Username: "u1", Password: "  ", FirstName: "A", LastName: "B"}, ErrEmptyCredentials},
		{"missing first name", models.RegistrationRequest{Username: "u2", Password: "p", LastName: "B"}, ErrInvalidUserData},
		{"missing last name", models.RegistrationRequest{Username: "u3", Password: "p", FirstName: "A"}, ErrInvalidUserData},
		{"password over 72 bytes", models.RegistrationRequest{Username: "u4", Password: strings.Repeat("x", 73), FirstName: "A", LastName: "B"}, ErrPasswordTooLong},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, c.req)
			require.ErrorIs(t, err, c.want)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.owner(t, "ivan")

	token, err := f.svc.Login(ctx, models.AuthRequest{Username: "ivan", Password: "password"})
	require.NoError(t, err)
	p, err := f.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ivan", p.Username)

	_, err = f.svc.Login(ctx, models.AuthRequest{Username: "ivan", Password: "wrong"})
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = f.svc.Login(ctx, models.AuthRequest{Username: "nobody", Password: "password"})
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = f.svc.Login(ctx, models.AuthRequest{Username: "", Password: ""})
	assert.ErrorIs(t, err, ErrEmptyCredentials)
}

func TestAuthenticate_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := testConfig()

	t.Run("garbage", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
		assert.Equal(t, KindAuthentication, KindOf(err))
	})

	t.Run("expired", func(t *testing.T) {
		past := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL).WithClock(func() time.Time {
			return time.Now().Add(-2 * cfg.JWTTTL)
		})
		token, err := past.Issue("admin")
		require.NoError(t, err)
		_, err = f.svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("unknown user", func(t *testing.T) {
		token, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL).Issue("ghost")
		require.NoError(t, err)
		_, err = f.svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrPrincipalNotFound)
	})

	t.Run("foreign secret", func(t *testing.T) {
		token, err := auth.NewTokenService("other-secret", cfg.JWTTTL).Issue("admin")
		require.NoError(t, err)
		_, err = f.svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := models.RegistrationRequest{Username: "olga", Password: "pw", FirstName: "Olga", LastName: "Ivanova"}

	user, err := f.svc.CreateUser(ctx, f.admin, req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, user.Role)
	assert.NotZero(t, user.ID)

	owner := f.owner(t, "ivan")
	_, err = f.svc.CreateUser(ctx, owner, models.RegistrationRequest{Username: "x", Password: "pw", FirstName: "X", LastName: "Y"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateUser(ctx, nil, req)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMakeAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain := f.owner(t, "plain")
	require.NoError(t, f.svc.MakeAdmin(ctx, f.admin, plain.ID))
	promoted, err := f.repo.FindUserByUsername(ctx, plain.Username)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, promoted.Role)

	// already an admin
	require.NoError(t, f.svc.MakeAdmin(ctx, f.admin, plain.ID))

	holder := f.owner(t, "holder")
	f.card(t, holder, "0")
	assert.ErrorIs(t, f.svc.MakeAdmin(ctx, f.admin, holder.ID), ErrAdminCannotOwnCard)

	assert.ErrorIs(t, f.svc.MakeAdmin(ctx, f.admin, 9999), ErrUserNotFound)
	assert.ErrorIs(t, f.svc.MakeAdmin(ctx, holder, holder.ID), ErrForbidden)
}

func TestCreateCardRacingMakeAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		u := f.owner(t, fmt.Sprintf("racer-%d", i))
		number := f.nextNumber()

		var cardErr, adminErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cardErr = f.svc.CreateCard(ctx, f.admin, models.CardCreationRequest{CardNumber: number, UserID: &u.ID})
		}()
		go func() {
			defer wg.Done()
			adminErr = f.svc.MakeAdmin(ctx, f.admin, u.ID)
		}()
		wg.Wait()

		stored, err := f.repo.FindUserByUsername(ctx, u.Username)
		require.NoError(t, err)
		_, owned, err := f.repo.ListCards(ctx, &u.ID, models.PageRequest{Size: 1})
		require.NoError(t, err)

		// exactly one side wins, and an admin never ends up with a card
		if stored.IsAdmin() {
			assert.Zero(t, owned)
			assert.NoError(t, adminErr)
			assert.ErrorIs(t, cardErr, ErrAdminCannotOwnCard)
		} else {
			assert.EqualValues(t, 1, owned)
			assert.NoError(t, cardErr)
			assert.ErrorIs(t, adminErr, ErrAdminCannotOwnCard)
		}
	}
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.EnsureAdmin(context.Background(), "admin", "another"))

	_, err := f.svc.Login(context.Background(), models.AuthRequest{Username: "admin", Password: "admin-password"})
	assert.NoError(t, err)
}

func TestStorageError(t *testing.T) {
	assert.Nil(t, storageError(nil, ErrCardNotFound, "op"))
	assert.Same(t, ErrCardNotFound, storageError(fmt.Errorf("x: %w", repository.ErrNotFound), ErrCardNotFound, "op"))
	assert.Same(t, ErrSameCard, storageError(ErrSameCard, ErrCardNotFound, "op"))

	err := storageError(fmt.Errorf("x: %w", repository.ErrTransient), nil, "transfer")
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, repository.ErrTransient)
	assert.Equal(t, KindTransient, KindOf(err))

	err = storageError(fmt.Errorf("x: %w", repository.ErrNotFound), nil, "list")
	assert.Equal(t, KindInternal, KindOf(err))
}
