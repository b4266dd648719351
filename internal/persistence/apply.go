package persistence

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// ApplyBatch commits one flushed batch inside a single transaction,
// applying events in FK-respecting bucket order: OrderInserted, then
// OrderFilled/Completed/Cancelled, then TradeExecuted, then
// MarketStatsDelta, then OrderIdMinted. Bulk buckets (inserted orders,
// executed trades) are loaded with pq.CopyIn.
func (s *sqlStore) ApplyBatch(ctx context.Context, events []Event) error {
	buckets := make([][]Event, 5)
	for _, ev := range events {
		b := ev.Kind.bucket()
		buckets[b] = append(buckets[b], ev)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := applyOrderInserted(ctx, tx, buckets[0]); err != nil {
		return err
	}
	if err := applyOrderTransitions(ctx, tx, buckets[1]); err != nil {
		return err
	}
	if err := applyTradesExecuted(ctx, tx, buckets[2]); err != nil {
		return err
	}
	if err := applyMarketStatsDeltas(ctx, tx, buckets[3]); err != nil {
		return err
	}
	if err := applyOrderIDMinted(ctx, tx, buckets[4]); err != nil {
		return err
	}

	return tx.Commit()
}

func applyOrderInserted(ctx context.Context, tx *sql.Tx, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("orders",
		"order_id", "symbol", "action", "quantity", "filled", "price", "user_id",
		"status", "time_placed", "time_updated"))
	if err != nil {
		return err
	}
	for _, ev := range events {
		o := ev.Order
		if _, err := stmt.ExecContext(ctx, o.OrderID, o.Symbol, int(o.Side), o.Quantity, o.Filled,
			o.Price, o.UserID, int(o.Status), o.TimePlaced, o.TimeUpdated); err != nil {
			stmt.Close() //nolint:errcheck
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close() //nolint:errcheck
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	pending, err := tx.PrepareContext(ctx, `INSERT INTO pending_orders (order_id) VALUES ($1)`)
	if err != nil {
		return err
	}
	defer pending.Close()
	for _, ev := range events {
		// OrderInserted is always submitted as PENDING.
		if _, err := pending.ExecContext(ctx, ev.Order.OrderID); err != nil {
			return err
		}
	}
	return nil
}

func applyOrderTransitions(ctx context.Context, tx *sql.Tx, events []Event) error {
	for _, ev := range events {
		switch ev.Kind {
		case OrderFilled:
			if _, err := tx.ExecContext(ctx,
				`UPDATE orders SET filled = $1, time_updated = $2 WHERE order_id = $3`,
				ev.NewFilled, ev.At, ev.OrderID); err != nil {
				return err
			}
		case OrderCompleted:
			if _, err := tx.ExecContext(ctx,
				`UPDATE orders SET status = 1, time_updated = $1 WHERE order_id = $2`,
				ev.At, ev.OrderID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM pending_orders WHERE order_id = $1`, ev.OrderID); err != nil {
				return err
			}
		case OrderCancelled:
			if _, err := tx.ExecContext(ctx,
				`UPDATE orders SET status = 2, time_updated = $1 WHERE order_id = $2`,
				ev.At, ev.OrderID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM pending_orders WHERE order_id = $1`, ev.OrderID); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyTradesExecuted(ctx context.Context, tx *sql.Tx, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("executed_trades",
		"symbol", "action", "price", "filled_oid", "filled_uid", "filler_oid", "filler_uid",
		"exchanged", "execution_time"))
	if err != nil {
		return err
	}
	for _, ev := range events {
		t := ev.Trade
		if _, err := stmt.ExecContext(ctx, t.Symbol, int(t.Side), t.Price, t.FilledOID, t.FilledUID,
			t.FillerOID, t.FillerUID, t.Quantity, t.ExecutedAt); err != nil {
			stmt.Close() //nolint:errcheck
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close() //nolint:errcheck
		return err
	}
	return stmt.Close()
}

func applyMarketStatsDeltas(ctx context.Context, tx *sql.Tx, events []Event) error {
	merged := make(map[string]*MarketStatsDelta)
	order := make([]string, 0, len(events))
	for _, ev := range events {
		d := ev.StatsDelta
		cur, ok := merged[d.Symbol]
		if !ok {
			cp := *d
			merged[d.Symbol] = &cp
			order = append(order, d.Symbol)
			continue
		}
		cur.DeltaTotalBuys += d.DeltaTotalBuys
		cur.DeltaTotalSells += d.DeltaTotalSells
		cur.DeltaFilledBuys += d.DeltaFilledBuys
		cur.DeltaFilledSells += d.DeltaFilledSells
		if d.LatestPrice != nil {
			cur.LatestPrice = d.LatestPrice
		}
	}
	for _, symbol := range order {
		d := merged[symbol]
		if _, err := tx.ExecContext(ctx, `
			UPDATE markets
			SET total_buys = total_buys + $1,
			    total_sells = total_sells + $2,
			    filled_buys = filled_buys + $3,
			    filled_sells = filled_sells + $4,
			    latest_price = COALESCE($5, latest_price)
			WHERE symbol = $6`,
			d.DeltaTotalBuys, d.DeltaTotalSells, d.DeltaFilledBuys, d.DeltaFilledSells,
			d.LatestPrice, symbol); err != nil {
			return err
		}
	}
	return nil
}

func applyOrderIDMinted(ctx context.Context, tx *sql.Tx, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	var max uint64
	for _, ev := range events {
		if ev.MintedID > max {
			max = ev.MintedID
		}
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE exchange_stats SET total_orders = GREATEST(total_orders, $1) WHERE key = 1`, max)
	return err
}
