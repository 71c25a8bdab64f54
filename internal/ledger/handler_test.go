package ledger

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/custodia-wallet/custodia/internal/address"
	"github.com/custodia-wallet/custodia/internal/asset"
	"github.com/custodia-wallet/custodia/internal/logging"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()
	assets := asset.Default()
	store := NewStore(address.NewGenerator(), assets)
	engine := NewEngine(store, assets, NopJournal{}, logging.Discard(), "")
	h := NewHandler(engine, nil)

	app := fiber.New()
	app.Post("/register", h.Register)
	app.Get("/wallet/:idOrAddress", h.GetWallet)
	app.Post("/send", h.Send)
	app.Post("/admin/credit", h.Credit)
	app.Post("/set-pin", h.SetPIN)
	app.Post("/verify-pin", h.VerifyPIN)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (int, map[string]json.RawMessage) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s: %v", path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response from %s: %v", path, err)
	}
	return resp.StatusCode, decoded
}

type walletPayload struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	Addresses map[string]string          `json:"addresses"`
	Balances  map[string]decimal.Decimal `json:"balances"`
	Transactions []struct {
		Kind         string          `json:"type"`
		Asset        string          `json:"asset"`
		Amount       decimal.Decimal `json:"amount"`
		Counterparty string          `json:"counterparty"`
	} `json:"transactions"`
}

func registerWallet(t *testing.T, app *fiber.App, name string) walletPayload {
	t.Helper()
	status, body := postJSON(t, app, "/register", fiber.Map{"name": name})
	if status != fiber.StatusCreated {
		t.Fatalf("register returned %d", status)
	}
	var w walletPayload
	if err := json.Unmarshal(body["wallet"], &w); err != nil {
		t.Fatalf("decode wallet: %v", err)
	}
	return w
}

func TestRegisterCreditSendFlow(t *testing.T) {
	app := setupTestApp(t)

	alice := registerWallet(t, app, "Alice")
	bob := registerWallet(t, app, "Bob")

	if alice.Name != "Alice" || len(alice.Addresses) != asset.Default().Len() {
		t.Fatalf("unexpected register payload: %+v", alice)
	}

	status, _ := postJSON(t, app, "/admin/credit", fiber.Map{
		"address": alice.Addresses["BTC"], "asset": "BTC", "amount": "10.0",
	})
	if status != fiber.StatusOK {
		t.Fatalf("credit returned %d", status)
	}

	status, body := postJSON(t, app, "/send", fiber.Map{
		"from": alice.ID, "to": bob.ID, "asset": "BTC", "amount": "4.0",
	})
	if status != fiber.StatusOK {
		t.Fatalf("send returned %d", status)
	}
	var fromSnap BalanceSnapshot
	if err := json.Unmarshal(body["from_wallet"], &fromSnap); err != nil {
		t.Fatalf("decode from_wallet: %v", err)
	}
	if !fromSnap.Balances["BTC"].Equal(decimal.RequireFromString("6")) {
		t.Fatalf("expected sender BTC 6, got %s", fromSnap.Balances["BTC"])
	}

	// Lookup by deposit address returns the same wallet.
	req := httptest.NewRequest(fiber.MethodGet, "/wallet/"+bob.Addresses["ETH"], nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get wallet returned %d", resp.StatusCode)
	}
	var getBody struct {
		Wallet walletPayload `json:"wallet"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&getBody); err != nil {
		t.Fatalf("decode get wallet: %v", err)
	}
	if getBody.Wallet.ID != bob.ID {
		t.Fatalf("address lookup returned wallet %s, expected %s", getBody.Wallet.ID, bob.ID)
	}
	if len(getBody.Wallet.Transactions) != 1 || getBody.Wallet.Transactions[0].Kind != "RECEIVE" {
		t.Fatalf("unexpected bob history: %+v", getBody.Wallet.Transactions)
	}
}

func TestErrorKindsAndStatuses(t *testing.T) {
	app := setupTestApp(t)
	alice := registerWallet(t, app, "Alice")
	bob := registerWallet(t, app, "Bob")

	cases := []struct {
		name    string
		path    string
		payload fiber.Map
		status  int
		kind    string
	}{
		{"unknown asset", "/admin/credit", fiber.Map{"address": alice.ID, "asset": "XYZ", "amount": "1"}, fiber.StatusBadRequest, "invalid_asset"},
		{"negative amount", "/send", fiber.Map{"from": alice.ID, "to": bob.ID, "asset": "BTC", "amount": "-5"}, fiber.StatusBadRequest, "invalid_amount"},
		{"missing wallet", "/admin/credit", fiber.Map{"address": "0xmissing", "asset": "BTC", "amount": "1"}, fiber.StatusNotFound, "not_found"},
		{"same wallet", "/send", fiber.Map{"from": alice.ID, "to": alice.Addresses["BTC"], "asset": "BTC", "amount": "1"}, fiber.StatusBadRequest, "same_wallet"},
		{"insufficient funds", "/send", fiber.Map{"from": bob.ID, "to": alice.ID, "asset": "BTC", "amount": "1"}, fiber.StatusBadRequest, "insufficient_funds"},
	}

	for _, tc := range cases {
		status, body := postJSON(t, app, tc.path, tc.payload)
		if status != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, status)
		}
		var kind string
		if err := json.Unmarshal(body["kind"], &kind); err != nil {
			t.Fatalf("%s: missing error kind: %v", tc.name, err)
		}
		if kind != tc.kind {
			t.Fatalf("%s: expected kind %s, got %s", tc.name, tc.kind, kind)
		}
	}
}

func TestPINEndpoints(t *testing.T) {
	app := setupTestApp(t)
	alice := registerWallet(t, app, "Alice")

	status, _ := postJSON(t, app, "/set-pin", fiber.Map{"wallet_id": alice.ID, "pin": "1234"})
	if status != fiber.StatusOK {
		t.Fatalf("set-pin returned %d", status)
	}

	status, body := postJSON(t, app, "/verify-pin", fiber.Map{"wallet_id": alice.ID, "pin": "1234"})
	if status != fiber.StatusOK {
		t.Fatalf("verify-pin returned %d", status)
	}
	var ok bool
	if err := json.Unmarshal(body["success"], &ok); err != nil || !ok {
		t.Fatalf("expected success=true, got %s (err %v)", body["success"], err)
	}

	_, body = postJSON(t, app, "/verify-pin", fiber.Map{"wallet_id": alice.ID, "pin": "0000"})
	if err := json.Unmarshal(body["success"], &ok); err != nil || ok {
		t.Fatalf("expected success=false for wrong PIN, got %s (err %v)", body["success"], err)
	}
}
