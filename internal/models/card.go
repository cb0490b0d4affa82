package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card.
type CardStatus string

const (
	CardActive  CardStatus = "ACTIVE"
	CardBlocked CardStatus = "BLOCKED"
	CardExpired CardStatus = "EXPIRED"
)

// Card represents a bank card record as held by the ledger.
// CardNumber is plaintext in memory; the repository encrypts it at rest.
type Card struct {
	ID             int64
	CardNumber     string
	OwnerID        int64
	OwnerName      string
	Balance        decimal.Decimal
	Status         CardStatus
	ExpirationDate time.Time // date only, UTC midnight
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a copy that shares no mutable state with c.
func (c *Card) Clone() *Card {
	cp := *c
	return &cp
}

// DateOnly truncates t to midnight UTC of its calendar date in t's location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
