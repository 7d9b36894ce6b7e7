package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists registered game servers.
type Repository interface {
	Create(ctx context.Context, acc ServerAccount) error
	FindByID(ctx context.Context, id string) (ServerAccount, error)
	TouchLastSeen(ctx context.Context, id string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a server account.
func (r *PostgresRepository) Create(ctx context.Context, acc ServerAccount) error {
	id, err := uuid.Parse(acc.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO server_accounts (id, name, api_key_hash, created_at, last_seen)
        VALUES ($1, $2, $3, $4, $5)`, id, acc.Name, acc.APIKeyHash, acc.CreatedAt.UTC(), acc.LastSeen.UTC())
	return err
}

// FindByID fetches a server account.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (ServerAccount, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ServerAccount{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT id, name, api_key_hash, created_at, last_seen
        FROM server_accounts WHERE id = $1`, accountID)
	var (
		acc       ServerAccount
		idVal     uuid.UUID
		createdAt time.Time
		lastSeen  time.Time
	)
	if err := row.Scan(&idVal, &acc.Name, &acc.APIKeyHash, &createdAt, &lastSeen); err != nil {
		return ServerAccount{}, err
	}
	acc.ID = idVal.String()
	acc.CreatedAt = createdAt.UTC()
	acc.LastSeen = lastSeen.UTC()
	return acc, nil
}

// TouchLastSeen records a successful authentication.
func (r *PostgresRepository) TouchLastSeen(ctx context.Context, id string) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `UPDATE server_accounts SET last_seen = $1 WHERE id = $2`, time.Now().UTC(), accountID)
	return err
}
