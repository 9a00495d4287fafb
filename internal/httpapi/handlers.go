package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/health"
	"github.com/meridianpay/tokenvault/internal/metrics"
	"github.com/meridianpay/tokenvault/internal/model"
	"github.com/meridianpay/tokenvault/internal/offline"
	"github.com/meridianpay/tokenvault/internal/requestid"
	"github.com/meridianpay/tokenvault/internal/store"
	"github.com/meridianpay/tokenvault/internal/token"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	manager     *token.Manager
	coordinator *offline.Coordinator
	store       *store.Store
	checker     *health.Checker
	metrics     *metrics.Metrics
	maxSync     int
	logger      zerolog.Logger
}

// NewHandlers creates a new Handlers instance. maxSyncBatch caps items per
// sync call.
func NewHandlers(
	manager *token.Manager,
	coordinator *offline.Coordinator,
	st *store.Store,
	checker *health.Checker,
	m *metrics.Metrics,
	maxSyncBatch int,
	logger zerolog.Logger,
) *Handlers {
	if maxSyncBatch <= 0 {
		maxSyncBatch = 500
	}
	return &Handlers{
		manager:     manager,
		coordinator: coordinator,
		store:       st,
		checker:     checker,
		metrics:     m,
		maxSync:     maxSyncBatch,
		logger:      logger.With().Str("component", "handlers").Logger(),
	}
}

// IssueTokens handles POST /api/v1/tokens.
func (h *Handlers) IssueTokens(c *fiber.Ctx) error {
	requester, err := h.requireRequester(c)
	if err != nil {
		return err
	}

	var req IssueRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		return h.errorResponse(c, "token", err)
	}

	tokens, err := h.manager.Issue(c.Context(), requester, amount)
	if err != nil {
		return h.errorResponse(c, "token", err)
	}

	h.metrics.TokensIssuedTotal.Add(float64(len(tokens)))
	return c.Status(fiber.StatusCreated).JSON(TokensResponse{Tokens: tokens})
}

// PurchaseTokens handles POST /api/v1/tokens/purchase.
func (h *Handlers) PurchaseTokens(c *fiber.Ctx) error {
	requester, err := h.requireRequester(c)
	if err != nil {
		return err
	}

	var req IssueRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		return h.errorResponse(c, "token", err)
	}

	tokens, tx, err := h.manager.Purchase(c.Context(), requester, amount)
	if err != nil {
		return h.errorResponse(c, "token", err)
	}

	h.metrics.TokensIssuedTotal.Add(float64(len(tokens)))
	return c.Status(fiber.StatusCreated).JSON(PurchaseResponse{Tokens: tokens, Transaction: tx})
}

// ValidateToken handles GET /api/v1/tokens/:id/validate.
func (h *Handlers) ValidateToken(c *fiber.Ctx) error {
	requester, err := h.requireRequester(c)
	if err != nil {
		return err
	}

	result, err := h.manager.Validate(c.Context(), c.Params("id"), requester)
	if err != nil {
		return h.errorResponse(c, "token", err)
	}
	return c.JSON(result)
}

// DivideToken handles POST /api/v1/tokens/:id/divide.
func (h *Handlers) DivideToken(c *fiber.Ctx) error {
	requester, err := h.requireRequester(c)
	if err != nil {
		return err
	}

	var req DivideRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	amount, err := model.ParseAmount(req.PaymentAmount)
	if err != nil {
		return h.errorResponse(c, "token", err)
	}

	result, err := h.manager.Divide(c.Context(), c.Params("id"), amount, requester)
	if err != nil {
		return h.errorResponse(c, "token", err)
	}

	h.metrics.TokensDividedTotal.Inc()
	return c.JSON(result)
}

// RedeemTokens handles POST /api/v1/tokens/redeem.
func (h *Handlers) RedeemTokens(c *fiber.Ctx) error {
	requester, err := h.requireRequester(c)
	if err != nil {
		return err
	}

	var req RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	result, err := h.manager.Redeem(c.Context(), requester, req.PayoutAddress, req.Tokens)
	if err != nil {
		return h.errorResponse(c, "token", err)
	}

	h.metrics.TokensRedeemedTotal.Add(float64(len(req.Tokens)))
	return c.JSON(result)
}

// SyncOffline handles POST /api/v1/sync/offline. The batch call itself
// never fails on an item: every outcome is reported per item.
func (h *Handlers) SyncOffline(c *fiber.Ctx) error {
	requester, err := h.requireRequester(c)
	if err != nil {
		return err
	}

	var req SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if len(req.Transactions) > h.maxSync {
		return problemResponse(c, fiber.StatusBadRequest,
			"batch_too_large", "Bad Request",
			"Sync batch exceeds the configured limit")
	}

	// Wallets may only sync their own transactions; the ownership
	// checks downstream assume sender_id is the authenticated wallet.
	for _, item := range req.Transactions {
		if item.SenderID != requester {
			return problemResponse(c, fiber.StatusForbidden,
				"sync_forbidden", "Forbidden",
				"Sync items must name the authenticated wallet as sender")
		}
	}

	result := h.coordinator.Sync(c.Context(), req.Transactions)

	for _, item := range result.ProcessedTransactions {
		h.metrics.RecordSyncItem(string(item.Status))
	}
	if n := len(result.Conflicts); n > 0 {
		h.metrics.ConflictsTotal.Add(float64(n))
	}
	return c.JSON(result)
}

// ListWalletTokens handles GET /api/v1/wallets/:owner/tokens.
func (h *Handlers) ListWalletTokens(c *fiber.Ctx) error {
	requester, err := h.requireRequester(c)
	if err != nil {
		return err
	}
	owner := c.Params("owner")
	if owner != requester {
		return problemResponse(c, fiber.StatusForbidden,
			"wallet_forbidden", "Forbidden",
			"Cannot list another wallet's tokens")
	}

	tokens, err := h.store.ListTokensByOwner(c.Context(), owner)
	if err != nil {
		return h.errorResponse(c, "store", err)
	}
	if tokens == nil {
		tokens = []model.Token{}
	}
	return c.JSON(TokensResponse{Tokens: tokens})
}

// GetTransaction handles GET /api/v1/transactions/:id.
func (h *Handlers) GetTransaction(c *fiber.Ctx) error {
	if _, err := h.requireRequester(c); err != nil {
		return err
	}

	tx, err := h.store.GetTransaction(c.Context(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, "store", err)
	}
	return c.JSON(TransactionResponse{Transaction: tx})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())

	ready := true
	for _, s := range results {
		if s == health.StatusDown {
			ready = false
			break
		}
	}

	status := fiber.StatusOK
	state := "ready"
	if !ready {
		status = fiber.StatusServiceUnavailable
		state = "not_ready"
	}
	return c.Status(status).JSON(fiber.Map{"status": state, "checks": results})
}

func (h *Handlers) requireRequester(c *fiber.Ctx) (string, error) {
	requester := requesterID(c)
	if requester == "" {
		return "", problemResponse(c, fiber.StatusUnauthorized,
			"missing_identity", "Unauthorized",
			"Requester identity is required")
	}
	return requester, nil
}

// errorResponse maps a typed domain error to an HTTP problem response.
func (h *Handlers) errorResponse(c *fiber.Ctx, module string, err error) error {
	kind := errors.KindOf(err)
	h.metrics.RecordError(module, string(kind))

	status := fiber.StatusInternalServerError
	errType := "internal_error"
	title := "Internal Server Error"

	switch kind {
	case errors.KindValidation:
		status, errType, title = fiber.StatusBadRequest, "validation_error", "Bad Request"
	case errors.KindNotFound:
		status, errType, title = fiber.StatusNotFound, "not_found", "Not Found"
	case errors.KindBusinessRule:
		status, errType, title = fiber.StatusUnprocessableEntity, "business_rule_violation", "Unprocessable Entity"
	case errors.KindConflict:
		status, errType, title = fiber.StatusConflict, "conflict", "Conflict"
	case errors.KindExternal:
		status, errType, title = fiber.StatusBadGateway, "external_service_error", "Bad Gateway"
	}

	if status == fiber.StatusInternalServerError {
		reqID, _ := requestid.From(c.UserContext())
		h.logger.Error().
			Err(err).
			Str("path", c.Path()).
			Str("request_id", reqID).
			Msg("internal error")
	}
	return problemResponse(c, status, errType, title, errors.Message(err))
}
