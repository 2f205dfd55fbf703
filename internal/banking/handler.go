package banking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Keda87/simple-banking-api/internal/platform/httpx"
	"github.com/Keda87/simple-banking-api/internal/shared"
)

// IdempotencyHeader lets clients retry money movements safely.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyPort claims request keys once per module.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// Handler exposes account endpoints. Every route expects the customer
// resolved by the auth middleware in the request context.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
}

// NewHandler constructs a Handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idempotency,
	}
}

// MountRoutes registers account routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.summary)
	r.Post("/deposit", h.deposit)
	r.Post("/withdraw", h.withdraw)
	r.Post("/transfer", h.transfer)
	r.Put("/{guid}/activate", h.activate)
	r.Put("/{guid}/deactivate", h.deactivate)
	r.Get("/{guid}/mutations", h.mutations)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), actor)
	if err != nil {
		h.fail(w, "account summary", err)
		return
	}
	resp := toAccountResponse(summary.Account)
	resp.Balance = summary.Balance.StringFixed(2)
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.execute(w, r, DepositOp{Amount: req.Amount})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.execute(w, r, WithdrawOp{Amount: req.Amount})
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.execute(w, r, TransferOp{DestinationAccountNumber: req.DestinationAccountNumber, Amount: req.Amount})
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, op Operation) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	module := fmt.Sprintf("banking.%s.%d", op.Kind(), actor.CustomerID)
	key := r.Header.Get(IdempotencyHeader)
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(ctx, key, module); err != nil {
			h.fail(w, "claim idempotency key", err)
			return
		}
	}
	res, err := h.service.Execute(ctx, actor, op)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if relErr := h.idempotency.Release(ctx, key, module); relErr != nil {
				h.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", relErr))
			}
		}
		h.fail(w, string(op.Kind()), err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toStatementResponse(res.Primary()))
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	guid, ok := parseGUID(w, r)
	if !ok {
		return
	}
	var (
		account Account
		err     error
	)
	if active {
		account, err = h.service.Activate(r.Context(), actor, guid)
	} else {
		account, err = h.service.Deactivate(r.Context(), actor, guid)
	}
	if err != nil {
		h.fail(w, "set account state", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) mutations(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	guid, ok := parseGUID(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	statements, paging, err := h.service.ListStatements(r.Context(), actor, guid, page, perPage)
	if err != nil {
		h.fail(w, "list mutations", err)
		return
	}
	results := make([]mutationResponse, 0, len(statements))
	for _, st := range statements {
		results = append(results, toMutationResponse(st))
	}
	httpx.JSON(w, http.StatusOK, mutationPage{Pagination: paging, Results: results})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var verr *shared.ValidationError
	if !errors.As(err, &verr) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrIdempotencyConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseGUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	guid, err := uuid.Parse(chi.URLParam(r, "guid"))
	if err != nil {
		httpx.RespondError(w, ErrAccountNotFound)
		return uuid.Nil, false
	}
	return guid, true
}
