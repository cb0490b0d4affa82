package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMaskCardNumber(t *testing.T) {
	assert.Equal(t, "**** **** **** 9012", MaskCardNumber("4000-1234-5678-9012"))
	assert.Equal(t, "**** **** **** 9012", MaskCardNumber("4000123456789012"))
	assert.Equal(t, "1234", MaskCardNumber("1234"))
	assert.Equal(t, "", MaskCardNumber(""))
}

func TestNewCardView(t *testing.T) {
	card := &Card{
		ID:             3,
		CardNumber:     "4000-1234-5678-9012",
		OwnerName:      "Ivan Petrov",
		Balance:        decimal.RequireFromString("12.30"),
		Status:         CardBlocked,
		ExpirationDate: time.Date(2030, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	view := NewCardView(card)
	assert.Equal(t, int64(3), view.ID)
	assert.Equal(t, "**** **** **** 9012", view.CardNumber)
	assert.Equal(t, "2030-01-31", view.ExpirationDate)
	assert.Equal(t, CardBlocked, view.Status)
	assert.True(t, card.Balance.Equal(view.Balance))
}

func TestNewPrincipalView_DropsHash(t *testing.T) {
	view := NewPrincipalView(&Principal{ID: 1, Username: "ivan", PasswordHash: "$2a$...", Role: RoleOwner})
	assert.Equal(t, "ivan", view.Username)
	assert.Equal(t, RoleOwner, view.Role)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleOwner.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("USER").Valid())
}

func TestDateOnly(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	got := DateOnly(time.Date(2026, 5, 1, 1, 30, 0, 0, msk))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), got)
}
