package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/pochi-wallet/pochi/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
	queries *QueryService
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, queries *QueryService) *Handler {
	return &Handler{service: service, queries: queries}
}

// TopUp credits the wallet identified in the path.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	userID := c.Params("userId")
	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.Get("Idempotency-Key")
	}

	tx, replayed, err := h.service.TopUp(c.UserContext(), TopUpInput{
		UserID:         userID,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrContentionExceeded), errors.Is(err, ledger.ErrStoreUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	// a replayed duplicate is the previously created record, not a new one
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(toTransactionResponse(tx))
}

// Balance returns the wallet balance; a wallet never topped up reads as zero.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID := c.Params("userId")
	balance, err := h.queries.GetBalance(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	return c.Status(http.StatusOK).JSON(BalanceResponse{
		UserID:  balance.UserID,
		Balance: balance.Amount,
		AsOf:    balance.AsOf,
	})
}

// Transactions lists the wallet's history newest first with cursor pagination.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	userID := c.Params("userId")
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	items, next, err := h.queries.GetRecentTransactions(c.UserContext(), userID, limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, ledger.ErrStoreUnavailable) {
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	resp := TransactionListResponse{Items: make([]TransactionResponse, 0, len(items)), NextCursor: next}
	for _, tx := range items {
		resp.Items = append(resp.Items, toTransactionResponse(tx))
	}
	return c.Status(http.StatusOK).JSON(resp)
}
