package handler

import (
	"net/http"

	"github.com/Dan9191/bank-cards/internal/models"
)

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	token, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, models.AuthResponse{Token: token})
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	token, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.AuthResponse{Token: token})
}

// CreateUser lets an admin add a card owner
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	user, err := h.svc.CreateUser(r.Context(), principal(r), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, models.NewPrincipalView(user))
}

// MakeAdmin promotes a user to ADMIN
func (h *Handler) MakeAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if err := h.svc.MakeAdmin(r.Context(), principal(r), id); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
