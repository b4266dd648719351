package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/oakmarket/exchange/internal/common"
	"github.com/oakmarket/exchange/internal/xerrors"
)

// pqUniqueViolation is the Postgres error code raised on a UNIQUE
// constraint conflict (account.username here).
const pqUniqueViolation = "23505"

// Store is the durable-store surface the engine and the account/upgrade
// packages depend on. sqlStore is the Postgres implementation; tests use
// an in-memory fake.
type Store interface {
	Migrate(ctx context.Context) error

	LoadExchangeStats(ctx context.Context) (uint64, error)
	LoadMarkets(ctx context.Context) ([]common.MarketInfo, error)
	LoadPendingOrders(ctx context.Context) ([]common.Order, error)

	ApplyBatch(ctx context.Context, events []Event) error

	CreateMarket(ctx context.Context, symbol, name string) error

	CreateAccount(ctx context.Context, username, password string) (common.Account, error)
	GetAccount(ctx context.Context, username string) (common.Account, bool, error)

	ListOrdersByUser(ctx context.Context, userID uint64) ([]common.Order, error)
	ListTrades(ctx context.Context, symbol string) ([]common.ExecutedTrade, error)
}

// sqlStore is the github.com/lib/pq-backed Store.
type sqlStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already-opened *sql.DB (driver "postgres", from
// github.com/lib/pq) as a Store.
func NewSQLStore(db *sql.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}

func (s *sqlStore) LoadExchangeStats(ctx context.Context) (uint64, error) {
	var total uint64
	err := s.db.QueryRowContext(ctx, `SELECT total_orders FROM exchange_stats WHERE key = 1`).Scan(&total)
	return total, err
}

func (s *sqlStore) LoadMarkets(ctx context.Context) ([]common.MarketInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, total_buys, total_sells, filled_buys, filled_sells, latest_price
		FROM markets ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.MarketInfo
	for rows.Next() {
		var mi common.MarketInfo
		var latest sql.NullFloat64
		if err := rows.Scan(&mi.Symbol, &mi.Name, &mi.Stats.TotalBuys, &mi.Stats.TotalSells,
			&mi.Stats.FilledBuys, &mi.Stats.FilledSells, &latest); err != nil {
			return nil, err
		}
		if latest.Valid {
			p := latest.Float64
			mi.LatestPrice = &p
		}
		out = append(out, mi)
	}
	return out, rows.Err()
}

func (s *sqlStore) LoadPendingOrders(ctx context.Context) ([]common.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.order_id, o.symbol, o.action, o.quantity, o.filled, o.price, o.user_id,
		       o.status, o.time_placed, o.time_updated
		FROM orders o
		JOIN pending_orders p ON p.order_id = o.order_id
		ORDER BY o.order_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Order
	for rows.Next() {
		var o common.Order
		var side, status int
		if err := rows.Scan(&o.OrderID, &o.Symbol, &side, &o.Quantity, &o.Filled, &o.Price,
			&o.UserID, &status, &o.TimePlaced, &o.TimeUpdated); err != nil {
			return nil, err
		}
		o.Side = common.Side(side)
		o.Status = common.OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sqlStore) CreateMarket(ctx context.Context, symbol, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (symbol, name) VALUES ($1, $2)
		ON CONFLICT (symbol) DO NOTHING`, symbol, name)
	return err
}

func (s *sqlStore) CreateAccount(ctx context.Context, username, password string) (common.Account, error) {
	var acc common.Account
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO account (username, password) VALUES ($1, $2)
		RETURNING id, username, password, register_time`, username, password,
	).Scan(&acc.ID, &acc.Username, &acc.Password, &acc.RegisteredAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return common.Account{}, xerrors.ErrUsernameTaken
		}
		return common.Account{}, err
	}
	return acc, nil
}

func (s *sqlStore) GetAccount(ctx context.Context, username string) (common.Account, bool, error) {
	var acc common.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, register_time FROM account WHERE username = $1`, username,
	).Scan(&acc.ID, &acc.Username, &acc.Password, &acc.RegisteredAt)
	if err == sql.ErrNoRows {
		return common.Account{}, false, nil
	}
	if err != nil {
		return common.Account{}, false, err
	}
	return acc, true, nil
}

func (s *sqlStore) ListOrdersByUser(ctx context.Context, userID uint64) ([]common.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, symbol, action, quantity, filled, price, user_id, status, time_placed, time_updated
		FROM orders WHERE user_id = $1 ORDER BY order_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Order
	for rows.Next() {
		var o common.Order
		var side, status int
		if err := rows.Scan(&o.OrderID, &o.Symbol, &side, &o.Quantity, &o.Filled, &o.Price,
			&o.UserID, &status, &o.TimePlaced, &o.TimeUpdated); err != nil {
			return nil, err
		}
		o.Side = common.Side(side)
		o.Status = common.OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sqlStore) ListTrades(ctx context.Context, symbol string) ([]common.ExecutedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, action, price, filled_oid, filled_uid, filler_oid, filler_uid, exchanged, execution_time
		FROM executed_trades WHERE symbol = $1 ORDER BY execution_time ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.ExecutedTrade
	for rows.Next() {
		var t common.ExecutedTrade
		var side int
		if err := rows.Scan(&t.Symbol, &side, &t.Price, &t.FilledOID, &t.FilledUID,
			&t.FillerOID, &t.FillerUID, &t.Quantity, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Side = common.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}
