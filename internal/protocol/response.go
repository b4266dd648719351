package protocol

import (
	"fmt"
	"strings"

	"github.com/oakmarket/exchange/internal/book"
	"github.com/oakmarket/exchange/internal/common"
)

// RenderOrderAck is the response to a successful buy/sell: the resulting
// order record, using common.Order's multi-line String(), followed by the
// trades it produced.
func RenderOrderAck(o common.Order, trades []common.ExecutedTrade) string {
	var sb strings.Builder
	sb.WriteString(o.String())
	sb.WriteByte('\n')
	if len(trades) == 0 {
		sb.WriteString("trades: none\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "trades: %d\n", len(trades))
	for _, t := range trades {
		fmt.Fprintf(&sb, "  %d@%.2f vs order %d (user %d)\n", t.Quantity, t.Price, t.FilledOID, t.FilledUID)
	}
	return sb.String()
}

// RenderCancelAck is the response to a successful cancel.
func RenderCancelAck(symbol string, orderID uint64) string {
	return fmt.Sprintf("cancelled %s order %d\n", symbol, orderID)
}

// RenderPrice renders the `price SYM` response: the latest trade price,
// or NONE if the market has never traded.
func RenderPrice(latest *float64) string {
	if latest == nil {
		return "NONE\n"
	}
	return fmt.Sprintf("%.2f\n", *latest)
}

// RenderShow renders the `show SYM` response: top-of-book bid and ask.
func RenderShow(bestBid, bestAsk *book.Entry) string {
	var sb strings.Builder
	sb.WriteString("BUY  ")
	sb.WriteString(renderEntry(bestBid))
	sb.WriteByte('\n')
	sb.WriteString("SELL ")
	sb.WriteString(renderEntry(bestAsk))
	sb.WriteByte('\n')
	return sb.String()
}

func renderEntry(e *book.Entry) string {
	if e == nil {
		return "NONE"
	}
	return fmt.Sprintf("%d @ %.2f (order %d, user %d)", e.Remaining, e.Price, e.OrderID, e.UserID)
}

// RenderHistory renders the `history SYM` response: one line per executed
// trade, oldest first.
func RenderHistory(trades []common.ExecutedTrade) string {
	if len(trades) == 0 {
		return "no trades\n"
	}
	var sb strings.Builder
	for _, t := range trades {
		fmt.Fprintf(&sb, "%s %s %d@%.2f filled=%d(user %d) filler=%d(user %d) at %s\n",
			t.Symbol, t.Side, t.Quantity, t.Price, t.FilledOID, t.FilledUID, t.FillerOID, t.FillerUID,
			t.ExecutedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return sb.String()
}

// RenderAccountOrders renders the `account show` response: every order the
// account has ever placed, in the order given (the SQL store lists them by
// order id ascending).
func RenderAccountOrders(orders []common.Order) string {
	if len(orders) == 0 {
		return "no orders\n"
	}
	var sb strings.Builder
	for i, o := range orders {
		if i > 0 {
			sb.WriteString("---\n")
		}
		sb.WriteString(o.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// RenderError renders any rejected request as a single error line.
func RenderError(err error) string {
	return fmt.Sprintf("ERROR: %v\n", err)
}

// RenderOK is a generic single-line acknowledgement, used by account
// create, upgrade_db and simulate.
func RenderOK(msg string) string {
	return msg + "\n"
}
