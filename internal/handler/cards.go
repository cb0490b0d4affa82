package handler

import (
	"net/http"

	"github.com/Dan9191/bank-cards/internal/models"
)

// CreateCard issues a card to a user
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req models.CardCreationRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	card, err := h.svc.CreateCard(r.Context(), principal(r), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, models.NewCardView(card))
}

// ListAllCards pages over every card
func (h *Handler) ListAllCards(w http.ResponseWriter, r *http.Request) {
	h.listCards(w, r)
}

// ListOwnCards pages over the caller's cards
func (h *Handler) ListOwnCards(w http.ResponseWriter, r *http.Request) {
	h.listCards(w, r)
}

func (h *Handler) listCards(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := h.svc.ListCards(r.Context(), principal(r), page)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.MapPage(cards, models.NewCardView))
}

// GetCard returns one card; owners only see their own
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid card id")
		return
	}
	card, err := h.svc.GetCard(r.Context(), principal(r), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewCardView(card))
}

// BlockCard blocks a card, either by an admin or as an owner's block request
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid card id")
		return
	}
	card, err := h.svc.BlockCard(r.Context(), principal(r), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewCardView(card))
}

// UnblockCard reactivates a blocked card
func (h *Handler) UnblockCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid card id")
		return
	}
	card, err := h.svc.UnblockCard(r.Context(), principal(r), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewCardView(card))
}

// DeleteCard removes a card
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid card id")
		return
	}
	if err := h.svc.DeleteCard(r.Context(), principal(r), id); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferResponse struct {
	Source models.CardView `json:"source"`
	Target models.CardView `json:"target"`
}

// Transfer moves money between two of the caller's cards
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	res, err := h.svc.Transfer(r.Context(), principal(r), req.SourceCardID, req.TargetCardID, req.Amount)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, transferResponse{
		Source: models.NewCardView(res.Source),
		Target: models.NewCardView(res.Target),
	})
}
