package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dan9191/bank-cards/internal/auth"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Register creates a new card owner and returns a bearer token for it
func (s *Service) Register(ctx context.Context, req models.RegistrationRequest) (string, error) {
	user, err := s.createPrincipal(ctx, req, models.RoleOwner)
	if err != nil {
		return "", err
	}
	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", err
	}
	s.log.Infof("User registered: %s", user.Username)
	return token, nil
}

// Login authenticates a user and returns a bearer token
func (s *Service) Login(ctx context.Context, req models.AuthRequest) (string, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return "", ErrEmptyCredentials
	}

	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return "", storageError(err, ErrBadCredentials, "login")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.log.Warnf("Failed login for %s", username)
		return "", ErrBadCredentials
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", err
	}
	s.log.Infof("User logged in: %s", user.Username)
	return token, nil
}

// Authenticate resolves a bearer token into the principal it was issued to
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Principal, error) {
	username, err := s.tokens.Verify(token)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	}

	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, storageError(err, ErrPrincipalNotFound, "authenticate")
	}
	return user, nil
}

// CreateUser lets an administrator create a card owner
func (s *Service) CreateUser(ctx context.Context, actor *models.Principal, req models.RegistrationRequest) (*models.Principal, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	user, err := s.createPrincipal(ctx, req, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	s.log.Infof("User %s created by admin %s", user.Username, actor.Username)
	return user, nil
}

// MakeAdmin promotes a user to ADMIN. Promoting an admin is a no-op.
func (s *Service) MakeAdmin(ctx context.Context, actor *models.Principal, userID int64) error {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return err
	}
	var promoted *models.Principal
	err := s.store.WithinTx(ctx, func(tx repository.CardTx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		switch user.Role {
		case models.RoleAdmin:
			return nil
		case models.RoleOwner:
			owned, err := tx.CountCards(ctx, user.ID)
			if err != nil {
				return err
			}
			if owned > 0 {
				return ErrAdminCannotOwnCard
			}
		default:
			return fmt.Errorf("user %d has unknown role %q", user.ID, user.Role)
		}
		if err := tx.UpdateUserRole(ctx, user.ID, models.RoleAdmin); err != nil {
			return err
		}
		promoted = user
		return nil
	})
	if err != nil {
		return storageError(err, ErrUserNotFound, "make admin")
	}
	if promoted != nil {
		s.log.Infof("User %s promoted to admin by %s", promoted.Username, actor.Username)
	}
	return nil
}

// EnsureAdmin creates the bootstrap administrator if it does not exist yet
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	exists, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return storageError(err, nil, "bootstrap admin")
	}
	if exists {
		return nil
	}
	_, err = s.createPrincipal(ctx, models.RegistrationRequest{
		Username:  username,
		Password:  password,
		FirstName: "System",
		LastName:  "Administrator",
	}, models.RoleAdmin)
	if err != nil {
		return err
	}
	s.log.Infof("Bootstrap admin %s created", username)
	return nil
}

func (s *Service) createPrincipal(ctx context.Context, req models.RegistrationRequest, role models.Role) (*models.Principal, error) {
	username := strings.TrimSpace(req.Username)
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)

	exists, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, storageError(err, nil, "register")
	}
	if exists {
		return nil, ErrUserExists
	}
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return nil, ErrEmptyCredentials
	}
	if firstName == "" || lastName == "" {
		return nil, ErrInvalidUserData
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.Principal{
		Username:     username,
		PasswordHash: string(hashedPassword),
		Role:         role,
		FirstName:    firstName,
		LastName:     lastName,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, storageError(err, nil, "register")
	}
	return user, nil
}
