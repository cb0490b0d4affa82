package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

const expirationLayout = "2006-01-02"

// CardView is the externally visible representation of a card
type CardView struct {
	ID             int64           `json:"id"`
	CardNumber     string          `json:"card_number"` // Masked
	OwnerName      string          `json:"owner_name"`
	ExpirationDate string          `json:"expiration_date"` // Format: YYYY-MM-DD
	Status         CardStatus      `json:"status"`
	Balance        decimal.Decimal `json:"balance"`
}

// NewCardView maps a card record to its view.
func NewCardView(c *Card) CardView {
	return CardView{
		ID:             c.ID,
		CardNumber:     MaskCardNumber(c.CardNumber),
		OwnerName:      c.OwnerName,
		ExpirationDate: c.ExpirationDate.Format(expirationLayout),
		Status:         c.Status,
		Balance:        c.Balance,
	}
}

// MaskCardNumber keeps only the last four digits of a card number.
// Numbers with fewer than 16 digits are returned as is.
func MaskCardNumber(number string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if len(digits) < 16 {
		return number
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

// PrincipalView is the externally visible representation of a principal
type PrincipalView struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// NewPrincipalView maps a principal to its view, dropping the password hash.
func NewPrincipalView(p *Principal) PrincipalView {
	return PrincipalView{
		ID:        p.ID,
		Username:  p.Username,
		Role:      p.Role,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}
