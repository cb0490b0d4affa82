package models

import "github.com/shopspring/decimal"

// RegistrationRequest is the payload for self-registration and admin user creation
type RegistrationRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AuthRequest is the login payload
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse carries an issued bearer token
type AuthResponse struct {
	Token string `json:"token"`
}

// CardCreationRequest is the admin payload for issuing a card.
// A missing balance means zero.
type CardCreationRequest struct {
	CardNumber string           `json:"card_number"`
	UserID     *int64           `json:"user_id"`
	Balance    *decimal.Decimal `json:"balance"`
}

// TransferRequest moves Amount from SourceCardID to TargetCardID
type TransferRequest struct {
	SourceCardID int64           `json:"source_card_id"`
	TargetCardID int64           `json:"target_card_id"`
	Amount       decimal.Decimal `json:"amount"`
}
