package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
)

// MemoryRepository is an in-process store with the same contract as
// Repository. Transactions are serialized and their writes are applied
// only on commit.
type MemoryRepository struct {
	txMu sync.Mutex // held for the whole of a transaction

	mu         sync.RWMutex
	users      map[int64]*models.Principal
	usernames  map[string]int64
	cards      map[int64]*models.Card
	numbers    map[string]int64
	nextUserID int64
	nextCardID int64
	saves      map[int64]int
	now        func() time.Time
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[int64]*models.Principal),
		usernames: make(map[string]int64),
		cards:     make(map[int64]*models.Card),
		numbers:   make(map[string]int64),
		saves:     make(map[int64]int),
		now:       time.Now,
	}
}

// SaveCount returns how many committed SaveCard calls touched a card.
func (m *MemoryRepository) SaveCount(id int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves[id]
}

func (m *MemoryRepository) CreateUser(_ context.Context, user *models.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usernames[user.Username]; ok {
		return fmt.Errorf("username %q exists: %w", user.Username, ErrConflict)
	}
	m.nextUserID++
	user.ID = m.nextUserID
	user.CreatedAt = m.now()
	cp := *user
	m.users[user.ID] = &cp
	m.usernames[user.Username] = user.ID
	return nil
}

func (m *MemoryRepository) FindUserByUsername(_ context.Context, username string) (*models.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.usernames[username]
	return ok, nil
}

func (m *MemoryRepository) FindCardByID(_ context.Context, id int64) (*models.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	card, ok := m.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	return card.Clone(), nil
}

func (m *MemoryRepository) ExistsByCardNumber(_ context.Context, number string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.numbers[number]
	return ok, nil
}

// DeleteCard waits for running transactions, like a row lock would.
func (m *MemoryRepository) DeleteCard(_ context.Context, id int64) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[id]
	if !ok {
		return fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	delete(m.numbers, card.CardNumber)
	delete(m.cards, id)
	return nil
}

func (m *MemoryRepository) ListCards(_ context.Context, ownerID *int64, page models.PageRequest) ([]*models.Card, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*models.Card
	for _, c := range m.cards {
		if ownerID == nil || c.OwnerID == *ownerID {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	start := page.Offset()
	if start < 0 || start > len(matched) {
		start = len(matched)
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*models.Card, 0, end-start)
	for _, c := range matched[start:end] {
		out = append(out, c.Clone())
	}
	return out, total, nil
}

func (m *MemoryRepository) FindCardsByStatusBefore(_ context.Context, status models.CardStatus, date time.Time) ([]*models.Card, error) {
	day := models.DateOnly(date)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Card
	for _, c := range m.cards {
		if c.Status == status && c.ExpirationDate.Before(day) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) WithinTx(ctx context.Context, fn func(tx CardTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	tx := &memCardTx{
		repo:   m,
		locked: make(map[int64]bool),
		staged: make(map[int64]*models.Card),
		calls:  make(map[int64]int),
		users:  make(map[int64]*models.Principal),
		roles:  make(map[int64]models.Role),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

type memCardTx struct {
	repo   *MemoryRepository
	locked map[int64]bool
	staged map[int64]*models.Card
	calls  map[int64]int
	order  []int64

	users   map[int64]*models.Principal // locked users as seen by the tx
	roles   map[int64]models.Role
	created []*models.Card
}

func (t *memCardTx) LockCards(_ context.Context, ids ...int64) (map[int64]*models.Card, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	out := make(map[int64]*models.Card, len(ids))
	for _, id := range ids {
		if staged, ok := t.staged[id]; ok {
			out[id] = staged.Clone()
			continue
		}
		card, ok := t.repo.cards[id]
		if !ok {
			continue
		}
		t.locked[id] = true
		out[id] = card.Clone()
	}
	return out, nil
}

func (t *memCardTx) SaveCard(_ context.Context, card *models.Card) error {
	if !t.locked[card.ID] {
		return fmt.Errorf("card %d saved without being locked", card.ID)
	}
	if _, ok := t.staged[card.ID]; !ok {
		t.order = append(t.order, card.ID)
	}
	t.staged[card.ID] = card.Clone()
	t.calls[card.ID]++
	return nil
}

func (t *memCardTx) LockUser(_ context.Context, id int64) (*models.Principal, error) {
	if user, ok := t.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	user, ok := t.repo.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	locked := *user
	t.users[id] = &locked
	cp := locked
	return &cp, nil
}

func (t *memCardTx) UpdateUserRole(_ context.Context, id int64, role models.Role) error {
	user, ok := t.users[id]
	if !ok {
		return fmt.Errorf("user %d updated without being locked", id)
	}
	user.Role = role
	t.roles[id] = role
	return nil
}

func (t *memCardTx) CountCards(_ context.Context, ownerID int64) (int64, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	var n int64
	for _, c := range t.repo.cards {
		if c.OwnerID == ownerID {
			n++
		}
	}
	for _, c := range t.created {
		if c.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// CreateCard assigns the id on commit.
func (t *memCardTx) CreateCard(_ context.Context, card *models.Card) error {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	if _, ok := t.repo.numbers[card.CardNumber]; ok {
		return fmt.Errorf("card number exists: %w", ErrConflict)
	}
	for _, c := range t.created {
		if c.CardNumber == card.CardNumber {
			return fmt.Errorf("card number exists: %w", ErrConflict)
		}
	}
	if _, ok := t.repo.users[card.OwnerID]; !ok {
		return fmt.Errorf("owner %d: %w", card.OwnerID, ErrNotFound)
	}
	if card.Balance.IsNegative() {
		return fmt.Errorf("negative balance for new card")
	}
	t.created = append(t.created, card)
	return nil
}

func (t *memCardTx) commit() error {
	m := t.repo
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range t.order {
		staged := t.staged[id]
		if _, ok := m.cards[id]; !ok {
			return fmt.Errorf("card %d: %w", id, ErrNotFound)
		}
		if staged.Balance.IsNegative() {
			return fmt.Errorf("card %d: balance would become negative", id)
		}
	}
	now := m.now()
	for _, id := range t.order {
		current := m.cards[id]
		current.Balance = t.staged[id].Balance
		current.Status = t.staged[id].Status
		current.UpdatedAt = now
		m.saves[id] += t.calls[id]
	}
	for _, card := range t.created {
		m.nextCardID++
		card.ID = m.nextCardID
		card.CreatedAt, card.UpdatedAt = now, now
		card.ExpirationDate = models.DateOnly(card.ExpirationDate)
		m.cards[card.ID] = card.Clone()
		m.numbers[card.CardNumber] = card.ID
	}
	for id, role := range t.roles {
		m.users[id].Role = role
	}
	return nil
}
