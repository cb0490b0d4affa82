package service

import "github.com/Dan9191/bank-cards/internal/models"

// Card lifecycle:
//
//	ACTIVE  --block-->   BLOCKED   (owner or admin)
//	BLOCKED --unblock--> ACTIVE    (admin)
//	ACTIVE|BLOCKED --expire--> EXPIRED (sweeper only; terminal)

// Block moves an active card to BLOCKED.
func Block(card *models.Card) error {
	switch card.Status {
	case models.CardBlocked:
		return ErrAlreadyBlocked
	case models.CardExpired:
		return ErrCardExpired
	}
	card.Status = models.CardBlocked
	return nil
}

// Unblock moves a blocked card back to ACTIVE. EXPIRED is terminal.
func Unblock(card *models.Card) error {
	switch card.Status {
	case models.CardActive:
		return ErrAlreadyActive
	case models.CardExpired:
		return ErrCardExpired
	}
	card.Status = models.CardActive
	return nil
}

// Expire moves an active or blocked card to EXPIRED.
func Expire(card *models.Card) error {
	if card.Status == models.CardExpired {
		return ErrCardExpired
	}
	card.Status = models.CardExpired
	return nil
}

// ValidateUsable fails unless the card may take part in a balance change.
func ValidateUsable(card *models.Card) error {
	if card.Status == models.CardBlocked || card.Status == models.CardExpired {
		return ErrCardUnusable
	}
	return nil
}

// ValidateOwnership fails unless the card belongs to principalID.
func ValidateOwnership(card *models.Card, principalID int64) error {
	if card.OwnerID != principalID {
		return ErrNotOwner
	}
	return nil
}

// authorizeCardAccess decides whether actor may see or block card.
func authorizeCardAccess(actor *models.Principal, card *models.Card) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleOwner:
		return ValidateOwnership(card, actor.ID)
	}
	return ErrForbidden
}

// requireRole fails unless actor holds one of roles.
func requireRole(actor *models.Principal, roles ...models.Role) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
