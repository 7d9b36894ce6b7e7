package bankapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vaultlink/vaultlink/internal/account"
	"github.com/vaultlink/vaultlink/internal/auth"
	"github.com/vaultlink/vaultlink/internal/bank"
	"github.com/vaultlink/vaultlink/internal/denom"
	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/item"
	"github.com/vaultlink/vaultlink/internal/money"
)

type handler struct {
	ledger     bank.Ledger
	loans      bank.Loans
	denoms     *denom.Memory
	denomStore *denom.PostgresStore
	accounts   *account.Service
	tokens     *auth.Service
	logger     *slog.Logger
}

type transactionRequest struct {
	Amount     string `json:"amount"`
	Reason     string `json:"reason"`
	ClientTxID string `json:"client_tx_id"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

func errorJSON(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg, "code": code})
}

func (h *handler) registerServer(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acc, apiKey, err := h.accounts.Register(c.UserContext(), req.Name)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"server_id": acc.ID,
		"name":      acc.Name,
		"api_key":   apiKey,
	})
}

func (h *handler) token(c *fiber.Ctx) error {
	var req struct {
		ServerID string `json:"server_id"`
		APIKey   string `json:"api_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, err := h.tokens.Token(c.UserContext(), req.ServerID, req.APIKey)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"token": token})
}

func (h *handler) balance(c *fiber.Ctx) error {
	player := game.PlayerID(c.Params("player"))
	balance, err := h.ledger.Balance(c.UserContext(), player)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{Balance: balance.String()})
}

func (h *handler) deposit(c *fiber.Ctx) error {
	return h.post(c, h.ledger.Deposit)
}

func (h *handler) withdraw(c *fiber.Ctx) error {
	return h.post(c, h.ledger.Withdraw)
}

func (h *handler) post(c *fiber.Ctx, op func(ctx context.Context, tx bank.Transaction) (money.Amount, error)) error {
	var req transactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.Parse(req.Amount)
	if err != nil || !money.Positive(amount) {
		return errorJSON(c, http.StatusBadRequest, "invalid_amount", "amount must be a positive decimal")
	}

	balance, err := op(c.UserContext(), bank.Transaction{
		Account:    game.PlayerID(c.Params("player")),
		Amount:     amount,
		Reason:     req.Reason,
		ClientTxID: req.ClientTxID,
	})
	switch {
	case errors.Is(err, bank.ErrDuplicateTransaction):
		// Idempotent replay: report the stored outcome.
	case errors.Is(err, bank.ErrInsufficientFunds):
		return errorJSON(c, http.StatusUnprocessableEntity, "insufficient_funds", "account balance below requested amount")
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{Balance: balance.String()})
}

func (h *handler) createLoan(c *fiber.Ctx) error {
	var req struct {
		Lender      string    `json:"lender"`
		Borrower    string    `json:"borrower"`
		RepayAmount string    `json:"repay_amount"`
		DueDate     time.Time `json:"due_date"`
		Collateral  string    `json:"collateral"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	repay, err := money.Parse(req.RepayAmount)
	if err != nil || !money.Positive(repay) {
		return errorJSON(c, http.StatusBadRequest, "invalid_amount", "repay_amount must be a positive decimal")
	}
	if req.Lender == "" || req.Borrower == "" {
		return errorJSON(c, http.StatusBadRequest, "invalid_party", "lender and borrower are required")
	}
	record, err := h.loans.CreateLoan(c.UserContext(), bank.Contract{
		Lender:      game.PlayerID(req.Lender),
		Borrower:    game.PlayerID(req.Borrower),
		RepayAmount: repay,
		DueDate:     req.DueDate,
		Collateral:  req.Collateral,
	})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"id":         record.ID,
		"created_at": record.CreatedAt,
	})
}

func (h *handler) listDenominations(c *fiber.Ctx) error {
	type entry struct {
		Value    string `json:"value"`
		ItemType string `json:"item_type"`
		ItemMeta string `json:"item_meta,omitempty"`
	}
	var out []entry
	for _, d := range h.denoms.Descending() {
		out = append(out, entry{Value: d.Value.String(), ItemType: d.Item.Type, ItemMeta: d.Item.Meta})
	}
	return c.Status(http.StatusOK).JSON(out)
}

func (h *handler) saveDenomination(c *fiber.Ctx) error {
	var req struct {
		Value    string `json:"value"`
		ItemType string `json:"item_type"`
		ItemMeta string `json:"item_meta"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	value, err := money.Parse(req.Value)
	if err != nil || !money.Positive(value) {
		return errorJSON(c, http.StatusBadRequest, "invalid_amount", "value must be a positive decimal")
	}
	d := denom.Denomination{Value: value, Item: item.Stack{Type: req.ItemType, Meta: req.ItemMeta, Count: 1}}
	h.denoms.Register(d)
	if h.denomStore != nil {
		if err := h.denomStore.Save(c.UserContext(), d); err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	h.logger.Info("denomination registered",
		slog.String("value", d.Value.String()),
		slog.String("item", d.Item.Key()))
	return c.SendStatus(http.StatusNoContent)
}
