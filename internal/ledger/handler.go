package ledger

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/custodia-wallet/custodia/internal/notification"
)

// Handler exposes the ledger engine over HTTP.
type Handler struct {
	engine   *Engine
	notifier notification.Notifier
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(engine *Engine, notifier notification.Notifier) *Handler {
	return &Handler{engine: engine, notifier: notifier}
}

type registerRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

// Register creates a wallet with per-asset deposit addresses.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	view, err := h.engine.Register(c.UserContext(), req.Name, req.PIN)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"wallet":  view,
	})
}

// GetWallet returns a wallet by id or any of its deposit addresses.
func (h *Handler) GetWallet(c *fiber.Ctx) error {
	view, err := h.engine.GetWallet(c.UserContext(), c.Params("idOrAddress"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"wallet":  view,
	})
}

type creditRequest struct {
	Address string          `json:"address"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
}

// Credit applies an administrative credit to the target wallet.
func (h *Handler) Credit(c *fiber.Ctx) error {
	var req creditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	snap, err := h.engine.Credit(c.UserContext(), req.Address, req.Asset, req.Amount, authFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	if h.notifier != nil {
		_ = h.notifier.Send(c.UserContext(), notification.Message{
			Kind:     notification.KindCreditReceived,
			WalletID: snap.ID,
			Body:     fmt.Sprintf("You received %s %s", req.Amount, req.Asset),
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"wallet":  snap,
	})
}

type sendRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	PIN    string          `json:"pin"`
}

// Send moves funds between two wallets.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	auth := authFrom(c)
	auth.PIN = req.PIN
	fromSnap, toSnap, err := h.engine.Transfer(c.UserContext(), req.From, req.To, req.Asset, req.Amount, auth)
	if err != nil {
		return respondError(c, err)
	}
	if h.notifier != nil {
		_ = h.notifier.Send(c.UserContext(), notification.Message{
			Kind:     notification.KindTransferReceived,
			WalletID: toSnap.ID,
			Body:     fmt.Sprintf("You received %s %s from wallet %s", req.Amount, req.Asset, fromSnap.ID),
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success":     true,
		"from_wallet": fromSnap,
		"to_wallet":   toSnap,
	})
}

type renameRequest struct {
	WalletID string `json:"wallet_id"`
	NewName  string `json:"new_name"`
	PIN      string `json:"pin"`
}

// Rename updates the wallet display label.
func (h *Handler) Rename(c *fiber.Ctx) error {
	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	view, err := h.engine.Rename(c.UserContext(), req.WalletID, req.NewName, AuthContext{PIN: req.PIN})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"wallet":  view,
	})
}

type setPINRequest struct {
	WalletID string `json:"wallet_id"`
	PIN      string `json:"pin"`
}

// SetPIN installs a wallet credential.
func (h *Handler) SetPIN(c *fiber.Ctx) error {
	var req setPINRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.engine.SetPIN(c.UserContext(), req.WalletID, req.PIN); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "message": "PIN set"})
}

// VerifyPIN checks a presented PIN against the wallet credential.
func (h *Handler) VerifyPIN(c *fiber.Ctx) error {
	var req setPINRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	ok, err := h.engine.VerifyPIN(c.UserContext(), req.WalletID, req.PIN)
	if err != nil {
		return respondError(c, err)
	}
	msg := "PIN valid"
	if !ok {
		msg = "Invalid PIN"
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": ok, "message": msg})
}

type resetPINRequest struct {
	WalletID string `json:"wallet_id"`
	OldPIN   string `json:"old_pin"`
	NewPIN   string `json:"new_pin"`
}

// ResetPIN replaces the wallet credential after proving the old one.
func (h *Handler) ResetPIN(c *fiber.Ctx) error {
	var req resetPINRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.engine.ResetPIN(c.UserContext(), req.WalletID, req.OldPIN, req.NewPIN); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "message": "PIN changed"})
}

// ListWallets returns abbreviated snapshots of every wallet.
func (h *Handler) ListWallets(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"wallets": h.engine.ListWallets(c.UserContext()),
	})
}

// authFrom lifts the admin token header into an AuthContext.
func authFrom(c *fiber.Ctx) AuthContext {
	return AuthContext{AdminToken: c.Get("X-Admin-Token")}
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"kind":    "bad_request",
		"error":   err.Error(),
	})
}

// respondError writes the stable machine kind and HTTP status for an engine
// error. Internal details of storage failures are not echoed to clients.
func respondError(c *fiber.Ctx, err error) error {
	kind := ErrorKind(err)
	status := http.StatusInternalServerError
	message := err.Error()
	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "invalid_asset", "invalid_amount", "insufficient_funds", "same_wallet", "invalid_pin", "invalid_name":
		status = http.StatusBadRequest
	case "unauthorized":
		status = http.StatusForbidden
	case "storage_unavailable":
		status = http.StatusInternalServerError
		message = ErrStorageUnavailable.Error()
	default:
		message = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"kind":    kind,
		"error":   message,
	})
}
