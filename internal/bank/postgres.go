package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/money"
)

// CashAccount is the counter-account for value entering or leaving the bank
// through the wallet bridge; every posting stays double-entry balanced.
const CashAccount game.PlayerID = "vault:cash"

// Postgres is the bank-side ledger over PostgreSQL, double-entry with
// idempotent postings keyed by (client_tx_id, reason).
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed ledger.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Balance(ctx context.Context, account game.PlayerID) (money.Amount, error) {
	const query = `
        SELECT COALESCE(SUM(e.amount), 0)::text
        FROM entries e
        INNER JOIN accounts a ON a.id = e.account_id
        WHERE a.player = $1`
	var raw string
	if err := p.db.QueryRow(ctx, query, string(account)).Scan(&raw); err != nil {
		return money.Zero(), err
	}
	return money.Parse(raw)
}

func (p *Postgres) Deposit(ctx context.Context, tx Transaction) (money.Amount, error) {
	return p.post(ctx, tx, false)
}

func (p *Postgres) Withdraw(ctx context.Context, tx Transaction) (money.Amount, error) {
	return p.post(ctx, tx, true)
}

// post records a balanced posting between the player account and the cash
// counter-account. debit=true moves value out of the player account.
func (p *Postgres) post(ctx context.Context, tx Transaction, debit bool) (money.Amount, error) {
	if !money.Positive(tx.Amount) {
		return money.Zero(), fmt.Errorf("amount must be positive")
	}

	dbtx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return money.Zero(), err
	}
	defer dbtx.Rollback(ctx) // nolint:errcheck

	accountID, err := ensureAccount(ctx, dbtx, tx.Account)
	if err != nil {
		return money.Zero(), err
	}
	cashID, err := ensureAccount(ctx, dbtx, CashAccount)
	if err != nil {
		return money.Zero(), err
	}

	// Serialize concurrent postings against the same account.
	if _, err := dbtx.Exec(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID); err != nil {
		return money.Zero(), err
	}

	if tx.ClientTxID != "" {
		var existing uuid.UUID
		err := dbtx.QueryRow(ctx, `SELECT id FROM transactions WHERE client_tx_id = $1 AND reason = $2`,
			tx.ClientTxID, tx.Reason).Scan(&existing)
		switch {
		case err == nil:
			balance, berr := balanceForAccount(ctx, dbtx, accountID)
			if berr != nil {
				return money.Zero(), berr
			}
			return balance, ErrDuplicateTransaction
		case !errors.Is(err, pgx.ErrNoRows):
			return money.Zero(), err
		}
	}

	balance, err := balanceForAccount(ctx, dbtx, accountID)
	if err != nil {
		return money.Zero(), err
	}

	amount := tx.Amount
	if debit {
		if balance.LessThan(amount) {
			return money.Zero(), ErrInsufficientFunds
		}
		amount = amount.Neg()
	}

	txID := uuid.New()
	if _, err := dbtx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, reason, created_at)
        VALUES ($1, $2, $3, $4)`, txID, tx.ClientTxID, tx.Reason, time.Now().UTC()); err != nil {
		return money.Zero(), err
	}
	if _, err := dbtx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount)
        VALUES ($1, $2, $3, $4)`, uuid.New(), txID, accountID, amount.String()); err != nil {
		return money.Zero(), err
	}
	if _, err := dbtx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount)
        VALUES ($1, $2, $3, $4)`, uuid.New(), txID, cashID, amount.Neg().String()); err != nil {
		return money.Zero(), err
	}

	if err := dbtx.Commit(ctx); err != nil {
		return money.Zero(), err
	}

	return balance.Add(amount), nil
}

func (p *Postgres) CreateLoan(ctx context.Context, c Contract) (Record, error) {
	id := uuid.New()
	createdAt := time.Now().UTC()
	_, err := p.db.Exec(ctx, `INSERT INTO loans (id, lender, borrower, repay_amount, due_date, collateral, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(c.Lender), string(c.Borrower), c.RepayAmount.String(), c.DueDate.UTC(), c.Collateral, createdAt)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id.String(), CreatedAt: createdAt}, nil
}

func ensureAccount(ctx context.Context, tx pgx.Tx, player game.PlayerID) (uuid.UUID, error) {
	if _, err := tx.Exec(ctx, `INSERT INTO accounts (id, player) VALUES ($1, $2)
        ON CONFLICT (player) DO NOTHING`, uuid.New(), string(player)); err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE player = $1`, string(player)).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (money.Amount, error) {
	var raw string
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM entries WHERE account_id = $1`,
		accountID).Scan(&raw); err != nil {
		return money.Zero(), err
	}
	return money.Parse(raw)
}
