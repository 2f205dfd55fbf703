package customers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Keda87/simple-banking-api/internal/platform/httpx"
	"github.com/Keda87/simple-banking-api/internal/shared"
)

// Handler serves customer sign-up.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers customer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.register)
}

type registrationResponse struct {
	GUID           string `json:"guid"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Address        string `json:"address"`
	Sex            string `json:"sex"`
	IdentityNumber string `json:"identity_number"`
	AccountGUID    string `json:"account_guid"`
	AccountNumber  string `json:"account_number"`
	IsActive       bool   `json:"is_active"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		if fields := httpx.ValidationFields(err); fields != nil {
			httpx.FieldErrors(w, fields)
			return
		}
		httpx.RespondError(w, err)
		return
	}

	reg, err := h.service.Register(r.Context(), in)
	if err != nil {
		var verr *shared.ValidationError
		if !errors.As(err, &verr) {
			h.logger.Error("register customer", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("customer registered", slog.Int64("customer_id", reg.Customer.ID))
	c := reg.Customer
	httpx.JSON(w, http.StatusCreated, registrationResponse{
		GUID:           c.GUID.String(),
		Email:          c.Email,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Address:        c.Address,
		Sex:            string(c.Sex),
		IdentityNumber: c.IdentityNumber,
		AccountGUID:    reg.Account.GUID.String(),
		AccountNumber:  reg.Account.Number,
		IsActive:       reg.Account.IsActive,
	})
}
