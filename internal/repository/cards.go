package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
)

// CardTx is a unit of work over the card ledger. Cards are only mutated
// through a CardTx after being locked by it. Issuing a card and changing
// a role both happen under the lock of the user row, which keeps admins
// from ever owning cards.
type CardTx interface {
	// LockCards locks the given cards in ascending id order and returns the
	// ones that exist, keyed by id.
	LockCards(ctx context.Context, ids ...int64) (map[int64]*models.Card, error)
	// SaveCard persists the balance and status of a locked card.
	SaveCard(ctx context.Context, card *models.Card) error
	// LockUser locks a user row until the end of the transaction.
	LockUser(ctx context.Context, id int64) (*models.Principal, error)
	// UpdateUserRole changes the role of a locked user.
	UpdateUserRole(ctx context.Context, id int64, role models.Role) error
	// CountCards counts the cards of one owner.
	CountCards(ctx context.Context, ownerID int64) (int64, error)
	// CreateCard inserts a new card; the number is stored encrypted.
	CreateCard(ctx context.Context, card *models.Card) error
}

const cardColumns = `id, card_number, owner_id, owner_name, balance, status, expiration_date, created_at, updated_at`

const dateLayout = "2006-01-02"

// FindCardByID retrieves a card by id
func (r *Repository) FindCardByID(ctx context.Context, id int64) (*models.Card, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1`, id)
	card, err := r.scanCard(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find card %d: %w", id, classify(err))
	}
	return card, nil
}

// ExistsByCardNumber reports whether a card with this number exists
func (r *Repository) ExistsByCardNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bank.cards WHERE card_number_hmac = $1)`, r.cipher.Digest(number)).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check card number: %w", classify(err))
	}
	return exists, nil
}

// DeleteCard removes a card
func (r *Repository) DeleteCard(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bank.cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, classify(err))
	}
	return expectOneRow(res, "card")
}

// ListCards returns one page of cards ordered by id, optionally for a single owner.
// The count and the page are read from one snapshot.
func (r *Repository) ListCards(ctx context.Context, ownerID *int64, page models.PageRequest) (cards []*models.Card, total int64, err error) {
	owner := sql.NullInt64{}
	if ownerID != nil {
		owner = sql.NullInt64{Int64: *ownerID, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("tx begin failed: %w", classify(err))
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.cards WHERE ($1::bigint IS NULL OR owner_id = $1)`, owner).
		Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count cards: %w", classify(err))
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM bank.cards
		WHERE ($1::bigint IS NULL OR owner_id = $1)
		ORDER BY id
		LIMIT $2 OFFSET $3`, owner, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cards: %w", classify(err))
	}
	if cards, err = r.scanCards(rows); err != nil {
		return nil, 0, err
	}
	if err = tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("tx commit failed: %w", classify(err))
	}
	return cards, total, nil
}

// FindCardsByStatusBefore returns cards in status that expire strictly before date
func (r *Repository) FindCardsByStatusBefore(ctx context.Context, status models.CardStatus, date time.Time) ([]*models.Card, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM bank.cards
		WHERE status = $1 AND expiration_date < $2::date
		ORDER BY id`, string(status), date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to find cards by status: %w", classify(err))
	}
	return r.scanCards(rows)
}

// WithinTx runs fn inside a read-committed transaction with a bounded lock wait
func (r *Repository) WithinTx(ctx context.Context, fn func(tx CardTx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", classify(err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	if r.lockTimeout > 0 {
		// SET does not accept bind parameters
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", classify(err))
		}
	}

	if err = fn(&pgCardTx{tx: tx, repo: r}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("tx commit failed: %w", classify(err))
	}
	return nil
}

type pgCardTx struct {
	tx   *sql.Tx
	repo *Repository
}

func (t *pgCardTx) LockCards(ctx context.Context, ids ...int64) (map[int64]*models.Card, error) {
	ordered := append([]int64(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	locked := make(map[int64]*models.Card, len(ordered))
	for _, id := range ordered {
		if _, seen := locked[id]; seen {
			continue
		}
		row := t.tx.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1 FOR UPDATE`, id)
		card, err := t.repo.scanCard(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock acquisition failed for card %d: %w", id, classify(err))
		}
		locked[id] = card
	}
	return locked, nil
}

func (t *pgCardTx) LockUser(ctx context.Context, id int64) (*models.Principal, error) {
	user, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM bank.users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed for user %d: %w", id, classify(err))
	}
	return user, nil
}

func (t *pgCardTx) UpdateUserRole(ctx context.Context, id int64, role models.Role) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bank.users SET role = $1 WHERE id = $2`, string(role), id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", classify(err))
	}
	return expectOneRow(res, "user")
}

func (t *pgCardTx) CountCards(ctx context.Context, ownerID int64) (int64, error) {
	var n int64
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.cards WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards of user %d: %w", ownerID, classify(err))
	}
	return n, nil
}

func (t *pgCardTx) CreateCard(ctx context.Context, card *models.Card) error {
	sealed, err := t.repo.cipher.Seal(card.CardNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt card number: %w", err)
	}
	query := `
		INSERT INTO bank.cards (card_number, card_number_hmac, owner_id, owner_name, balance, status, expiration_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err = t.tx.QueryRowContext(ctx, query,
		sealed, t.repo.cipher.Digest(card.CardNumber), card.OwnerID, card.OwnerName,
		card.Balance, string(card.Status), card.ExpirationDate.Format(dateLayout),
	).Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", classify(err))
	}
	card.ExpirationDate = models.DateOnly(card.ExpirationDate)
	return nil
}

func (t *pgCardTx) SaveCard(ctx context.Context, card *models.Card) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bank.cards
		SET balance = $1, status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`, card.Balance, string(card.Status), card.ID)
	if err != nil {
		return fmt.Errorf("failed to save card %d: %w", card.ID, classify(err))
	}
	return expectOneRow(res, "card")
}

func (r *Repository) scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{}
	var sealed, status string
	err := row.Scan(&card.ID, &sealed, &card.OwnerID, &card.OwnerName, &card.Balance, &status, &card.ExpirationDate, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r.finishCard(card, sealed, status)
}

func (r *Repository) scanCards(rows *sql.Rows) ([]*models.Card, error) {
	defer rows.Close()
	var cards []*models.Card
	for rows.Next() {
		card, err := r.scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", classify(err))
	}
	return cards, nil
}

func (r *Repository) finishCard(card *models.Card, sealed, status string) (*models.Card, error) {
	number, err := r.cipher.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt card number: %w", err)
	}
	card.CardNumber = number
	card.Status = models.CardStatus(status)
	card.ExpirationDate = models.DateOnly(card.ExpirationDate)
	return card, nil
}
