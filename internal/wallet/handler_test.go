package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/pochi-wallet/pochi/internal/ledger"
	"github.com/pochi-wallet/pochi/internal/logging"
)

func setupHandlerApp() *fiber.App {
	balances := ledger.NewInMemoryBalances()
	transactions := ledger.NewInMemoryTransactions()
	svc := NewService(balances, transactions, nil, logging.Discard())
	h := NewHandler(svc, NewQueryService(balances, transactions))

	app := fiber.New()
	app.Post("/wallets/:userId/topup", h.TopUp)
	app.Get("/wallets/:userId/balance", h.Balance)
	app.Get("/wallets/:userId/transactions", h.Transactions)
	return app
}

func postTopUp(t *testing.T, app *fiber.App, userID, body string) (int, TransactionResponse) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/wallets/"+userID+"/topup", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("top-up request: %v", err)
	}
	defer resp.Body.Close()

	var tx TransactionResponse
	if resp.StatusCode == fiber.StatusCreated || resp.StatusCode == fiber.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
			t.Fatalf("decode top-up response: %v", err)
		}
	}
	return resp.StatusCode, tx
}

func TestHandlerTopUpAndReads(t *testing.T) {
	app := setupHandlerApp()

	status, tx := postTopUp(t, app, "u1", `{"amount":500,"idempotency_key":"k1"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if tx.Amount != 500 || tx.UserID != "u1" || tx.Kind != ledger.KindTopUp {
		t.Fatalf("unexpected transaction response: %+v", tx)
	}

	// retry with the same key resolves to the existing record, not a new one
	status, replay := postTopUp(t, app, "u1", `{"amount":500,"idempotency_key":"k1"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", status)
	}
	if replay.TransactionID != tx.TransactionID {
		t.Fatalf("replay produced a new transaction: %s vs %s", replay.TransactionID, tx.TransactionID)
	}

	if status, _ := postTopUp(t, app, "u1", `{"amount":200,"idempotency_key":"k2"}`); status != fiber.StatusCreated {
		t.Fatalf("expected 201 for second top-up, got %d", status)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/wallets/u1/balance", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("balance request: %v", err)
	}
	var balance BalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	resp.Body.Close()
	if balance.Balance != 700 {
		t.Fatalf("expected balance 700, got %d", balance.Balance)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/wallets/u1/transactions?limit=10", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("transactions request: %v", err)
	}
	var page TransactionListResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	resp.Body.Close()
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(page.Items))
	}
	if page.Items[0].Amount != 200 || page.Items[1].Amount != 500 {
		t.Fatalf("expected newest first [200 500], got %+v", page.Items)
	}
}

func TestHandlerTopUpRejectsInvalidAmount(t *testing.T) {
	app := setupHandlerApp()

	for _, body := range []string{`{"amount":0,"idempotency_key":"k"}`, `{"amount":-5,"idempotency_key":"k"}`} {
		status, _ := postTopUp(t, app, "u1", body)
		if status != fiber.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, status)
		}
	}
}

func TestHandlerBalanceForUnknownWalletIsZero(t *testing.T) {
	app := setupHandlerApp()

	req := httptest.NewRequest(fiber.MethodGet, "/wallets/ghost/balance", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("balance request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var balance BalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance.Balance)
	}
}

// brokenBalances fails reads with an error outside the ledger taxonomy.
type brokenBalances struct {
	ledger.BalanceStore
}

func (brokenBalances) Get(ctx context.Context, userID string) (int64, int64, error) {
	return 0, 0, errors.New("replica lagging")
}

func TestHandlerTopUpMapsUnknownErrorsToInternal(t *testing.T) {
	balances := brokenBalances{BalanceStore: ledger.NewInMemoryBalances()}
	transactions := ledger.NewInMemoryTransactions()
	svc := NewService(balances, transactions, nil, logging.Discard())
	h := NewHandler(svc, NewQueryService(balances, transactions))

	app := fiber.New()
	app.Post("/wallets/:userId/topup", h.TopUp)

	status, _ := postTopUp(t, app, "u1", `{"amount":100,"idempotency_key":"k1"}`)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 for an unclassified store error, got %d", status)
	}
}

func TestHandlerTransactionsPagination(t *testing.T) {
	app := setupHandlerApp()

	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"amount":%d,"idempotency_key":"k-%d"}`, (i+1)*100, i)
		if status, _ := postTopUp(t, app, "u1", body); status != fiber.StatusCreated {
			t.Fatalf("top-up %d failed with %d", i, status)
		}
	}

	seen := 0
	cursor := ""
	for {
		url := "/wallets/u1/transactions?limit=2"
		if cursor != "" {
			url += "&cursor=" + cursor
		}
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, url, nil))
		if err != nil {
			t.Fatalf("page request: %v", err)
		}
		var page TransactionListResponse
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			t.Fatalf("decode page: %v", err)
		}
		resp.Body.Close()
		seen += len(page.Items)
		if page.NextCursor == "" || len(page.Items) == 0 {
			break
		}
		cursor = page.NextCursor
	}

	if seen != 5 {
		t.Fatalf("expected 5 transactions across pages, got %d", seen)
	}
}
