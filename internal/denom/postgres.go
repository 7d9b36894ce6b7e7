package denom

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultlink/vaultlink/internal/item"
	"github.com/vaultlink/vaultlink/internal/money"
)

// PostgresStore persists the denomination table on the bank side. The runtime
// registry stays in memory; this store backs the administrative registration
// action and the load at startup.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed denomination store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save creates or overwrites the denomination keyed by its face value.
func (s *PostgresStore) Save(ctx context.Context, d Denomination) error {
	_, err := s.db.Exec(ctx, `INSERT INTO denominations (value, item_type, item_meta)
        VALUES ($1, $2, $3)
        ON CONFLICT (value) DO UPDATE SET item_type = EXCLUDED.item_type, item_meta = EXCLUDED.item_meta`,
		d.Value.String(), d.Item.Type, d.Item.Meta)
	return err
}

// LoadAll reads every registered denomination.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]Denomination, error) {
	rows, err := s.db.Query(ctx, `SELECT value::text, item_type, item_meta FROM denominations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Denomination
	for rows.Next() {
		var raw, itemType, itemMeta string
		if err := rows.Scan(&raw, &itemType, &itemMeta); err != nil {
			return nil, err
		}
		value, err := money.Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Denomination{
			Value: value,
			Item:  item.Stack{Type: itemType, Meta: itemMeta, Count: 1},
		})
	}
	return out, rows.Err()
}

// LoadMemory fills a Memory registry from the store.
func (s *PostgresStore) LoadMemory(ctx context.Context) (*Memory, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	m := NewMemory()
	for _, d := range all {
		m.Register(d)
	}
	return m, nil
}
