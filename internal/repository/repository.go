package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/utils"
)

//go:embed schema.sql
var schema string

const userColumns = `id, username, password_hash, role, first_name, last_name, created_at`

// Repository provides database operations
type Repository struct {
	db          *sql.DB
	cipher      *utils.CardCipher
	lockTimeout time.Duration
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB, cipher *utils.CardCipher, lockTimeout time.Duration) *Repository {
	return &Repository{db: db, cipher: cipher, lockTimeout: lockTimeout}
}

// Migrate creates the schema if it does not exist yet
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.Principal) error {
	query := `
		INSERT INTO bank.users (username, password_hash, role, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, user.Username, user.PasswordHash, string(user.Role), user.FirstName, user.LastName).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", classify(err))
	}
	return nil
}

// FindUserByUsername retrieves a user by username
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*models.Principal, error) {
	query := `SELECT ` + userColumns + ` FROM bank.users WHERE username = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("failed to find user %q: %w", username, classify(err))
	}
	return user, nil
}

// ExistsByUsername reports whether a username is taken
func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bank.users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", classify(err))
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.Principal, error) {
	user := &models.Principal{}
	var role string
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &user.FirstName, &user.LastName, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	if !user.Role.Valid() {
		return nil, fmt.Errorf("user %d has unknown role %q", user.ID, role)
	}
	return user, nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
