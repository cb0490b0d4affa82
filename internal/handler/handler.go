package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers the API on r. Role checks run before the handlers;
// the service repeats them against the principal it is given.
func (h *Handler) Routes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	public := api.PathPrefix("/auth").Subrouter()
	public.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	public.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/cards", h.CreateCard).Methods(http.MethodPost)
	admin.HandleFunc("/cards", h.ListAllCards).Methods(http.MethodGet)
	admin.HandleFunc("/cards/{id:[0-9]+}", h.GetCard).Methods(http.MethodGet)
	admin.HandleFunc("/cards/{id:[0-9]+}", h.DeleteCard).Methods(http.MethodDelete)
	admin.HandleFunc("/cards/{id:[0-9]+}/block", h.BlockCard).Methods(http.MethodPatch)
	admin.HandleFunc("/cards/{id:[0-9]+}/unblock", h.UnblockCard).Methods(http.MethodPatch)
	admin.HandleFunc("/make-admin/{id:[0-9]+}", h.MakeAdmin).Methods(http.MethodPatch)
	admin.HandleFunc("/user", h.CreateUser).Methods(http.MethodPost)

	owner := api.NewRoute().Subrouter()
	owner.Use(middleware.RequireRole(models.RoleOwner))
	owner.HandleFunc("/cards", h.ListOwnCards).Methods(http.MethodGet)
	owner.HandleFunc("/card/balance/{id:[0-9]+}", h.GetCard).Methods(http.MethodGet)
	owner.HandleFunc("/card/{id:[0-9]+}/request-block", h.BlockCard).Methods(http.MethodPatch)
	owner.HandleFunc("/card/transfer", h.Transfer).Methods(http.MethodPost)
}

// principal is only called behind RequireRole.
func principal(r *http.Request) *models.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func pageRequest(r *http.Request) (models.PageRequest, error) {
	var page models.PageRequest
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, errors.New("page must be a non-negative integer")
		}
		page.Page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return page, errors.New("size must be a positive integer")
		}
		page.Size = n
	}
	normalized := page.Normalize()
	if normalized.Page != page.Page {
		return page, errors.New("page is out of range")
	}
	return normalized, nil
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondWithServiceError maps a service error onto a status code.
// Errors outside the service taxonomy are logged and hidden.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		h.log.WithError(err).Errorf("%s %s failed", r.Method, r.URL.Path)
		msg = "internal server error"
	case http.StatusServiceUnavailable:
		h.log.WithError(err).Warnf("%s %s: storage unavailable", r.Method, r.URL.Path)
		w.Header().Set("Retry-After", "1")
		msg = service.ErrTransient.Error()
	}
	respondWithError(w, code, msg)
}

func statusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindValidation:
		if errors.Is(err, service.ErrInvalidCardNumber) || errors.Is(err, service.ErrInvalidAmount) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case service.KindTransient:
		return http.StatusServiceUnavailable
	case service.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
