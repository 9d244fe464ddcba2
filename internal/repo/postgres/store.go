package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/types"
)

// Store implements the repository interfaces using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ interfaces.Repository = (*Store)(nil)

func NewStore(c *Client) *Store {
	return &Store{pool: c.Pool()}
}

const positionCols = `id, account, symbol, qty, avg_price, entry_rsi, entry_rsi_set,
	initial_price, opened_at, closed_at, reentry_count, reentry_prices, last_reentry`

func scanPosition(row pgx.Row) (*types.Position, error) {
	var p types.Position
	err := row.Scan(
		&p.ID, &p.Account, &p.Symbol, &p.Qty, &p.AvgPrice, &p.EntryRSI, &p.EntryRSISet,
		&p.InitialPrice, &p.OpenedAt, &p.ClosedAt, &p.ReentryCount, &p.ReentryPrices, &p.LastReentry,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePosition upserts the position record.
func (s *Store) SavePosition(ctx context.Context, p *types.Position) error {
	const query = `
		INSERT INTO positions (
			id, account, symbol, qty, avg_price, entry_rsi, entry_rsi_set,
			initial_price, opened_at, closed_at, reentry_count, reentry_prices,
			last_reentry, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			qty = EXCLUDED.qty,
			avg_price = EXCLUDED.avg_price,
			entry_rsi = EXCLUDED.entry_rsi,
			entry_rsi_set = EXCLUDED.entry_rsi_set,
			closed_at = EXCLUDED.closed_at,
			reentry_count = EXCLUDED.reentry_count,
			reentry_prices = EXCLUDED.reentry_prices,
			last_reentry = EXCLUDED.last_reentry,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Account, p.Symbol, p.Qty, p.AvgPrice, p.EntryRSI, p.EntryRSISet,
		p.InitialPrice, p.OpenedAt, p.ClosedAt, p.ReentryCount, p.ReentryPrices, p.LastReentry,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) FindOpenByInstrument(ctx context.Context, account, symbol string) (*types.Position, error) {
	query := `SELECT ` + positionCols + `
		FROM positions
		WHERE account = $1 AND symbol = $2 AND qty > 0 AND closed_at IS NULL`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, account, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find open position %s/%s: %w", account, symbol, err)
	}
	return p, nil
}

func (s *Store) FindBySymbol(ctx context.Context, account, symbol string) (*types.Position, error) {
	query := `SELECT ` + positionCols + `
		FROM positions
		WHERE account = $1 AND symbol = $2
		ORDER BY (closed_at IS NULL) DESC, opened_at DESC
		LIMIT 1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, account, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find position %s/%s: %w", account, symbol, err)
	}
	return p, nil
}

func (s *Store) ListOpen(ctx context.Context, account string) ([]*types.Position, error) {
	query := `SELECT ` + positionCols + `
		FROM positions
		WHERE account = $1 AND qty > 0 AND closed_at IS NULL
		ORDER BY opened_at`

	rows, err := s.pool.Query(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions %s: %w", account, err)
	}
	defer rows.Close()

	var out []*types.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const orderCols = `broker_id, account, symbol, side, kind, validity, status,
	qty, price, entry_type, meta, placed_at, updated_at`

func scanOrder(row pgx.Row) (*types.Order, error) {
	var o types.Order
	var metaRaw []byte
	err := row.Scan(
		&o.BrokerID, &o.Account, &o.Symbol, &o.Side, &o.Kind, &o.Validity, &o.Status,
		&o.Qty, &o.Price, &o.Entry, &metaRaw, &o.PlacedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &o.Meta); err != nil {
			return nil, fmt.Errorf("decode order meta: %w", err)
		}
	}
	return &o, nil
}

// SaveOrder upserts the order record. Meta is written only on insert: the
// indicator snapshot is write-once.
func (s *Store) SaveOrder(ctx context.Context, o *types.Order) error {
	meta, err := json.Marshal(o.Meta)
	if err != nil {
		return fmt.Errorf("postgres: encode order meta: %w", err)
	}

	const query = `
		INSERT INTO orders (
			broker_id, account, symbol, side, kind, validity, status,
			qty, price, entry_type, meta, placed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW()
		)
		ON CONFLICT (broker_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		o.BrokerID, o.Account, o.Symbol, o.Side, o.Kind, o.Validity, o.Status,
		o.Qty, o.Price, o.Entry, meta, o.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save order %s: %w", o.BrokerID, err)
	}
	return nil
}

func (s *Store) FindOrder(ctx context.Context, brokerOrderID string) (*types.Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders WHERE broker_id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, brokerOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find order %s: %w", brokerOrderID, err)
	}
	return o, nil
}

func (s *Store) FindPendingByAccount(ctx context.Context, account string) ([]*types.Order, error) {
	query := `SELECT ` + orderCols + `
		FROM orders
		WHERE account = $1 AND status IN ('PENDING', 'OPEN')
		ORDER BY placed_at`

	rows, err := s.pool.Query(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("postgres: find pending orders %s: %w", account, err)
	}
	defer rows.Close()

	var out []*types.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) FindOpenSellByInstrument(ctx context.Context, account, symbol string) (*types.Order, error) {
	query := `SELECT ` + orderCols + `
		FROM orders
		WHERE account = $1 AND symbol = $2 AND side = 'SELL'
			AND status IN ('PENDING', 'OPEN')
		ORDER BY placed_at DESC
		LIMIT 1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, account, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find open sell %s/%s: %w", account, symbol, err)
	}
	return o, nil
}
