// Package dispatch turns one parsed protocol.Request into an engine call
// and a rendered text response, and runs a pool of workers that do this
// concurrently, supervised with gopkg.in/tomb.v2.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oakmarket/exchange/internal/account"
	"github.com/oakmarket/exchange/internal/engine"
	"github.com/oakmarket/exchange/internal/protocol"
	"github.com/oakmarket/exchange/internal/simulate"
	"github.com/oakmarket/exchange/internal/upgrade"
	"github.com/oakmarket/exchange/internal/xerrors"
)

// ErrExit is returned by Handler.Handle when the request line was `exit`;
// the caller (cmd/exchange) uses it as the shutdown signal.
var ErrExit = errors.New("exit requested")

// Handler wires together every component a request line can touch: the
// matching engine, the account service, and the two thin load/ingestion
// helpers.
type Handler struct {
	Engine    *engine.Engine
	Accounts  *account.Service
	AdminUser string
}

// NewHandler builds a Handler. adminUser is the single account allowed to
// run `upgrade_db DB ADMIN PASS`.
func NewHandler(eng *engine.Engine, accounts *account.Service, adminUser string) *Handler {
	return &Handler{Engine: eng, Accounts: accounts, AdminUser: adminUser}
}

// Handle parses and executes a single request line, returning the text to
// print back to the user. A request-level failure (a cancelled context
// included) is rendered as an ERROR line rather than returned as a Go
// error — only protocol-level shutdown (`exit`) propagates as an error.
func (h *Handler) Handle(ctx context.Context, line string) (string, error) {
	reqID := uuid.New()
	req, err := protocol.Parse(line)
	if err != nil {
		log.Debug().Str("reqID", reqID.String()).Err(err).Msg("rejected malformed request")
		return protocol.RenderError(err), nil
	}

	logger := log.With().Str("reqID", reqID.String()).Int("command", int(req.Command)).Logger()

	switch req.Command {
	case protocol.CmdExit:
		return "", ErrExit

	case protocol.CmdPlaceOrder:
		acc, err := h.Accounts.Authenticate(ctx, req.User, req.Pass)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		order, trades, err := h.Engine.PlaceOrder(ctx, req.Symbol, req.Side, req.Qty, req.Price, acc.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("order rejected")
			return protocol.RenderError(err), nil
		}
		return protocol.RenderOrderAck(order, trades), nil

	case protocol.CmdCancel:
		acc, err := h.Accounts.Authenticate(ctx, req.User, req.Pass)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		if err := h.Engine.Cancel(ctx, req.Symbol, acc.ID, req.OrderID); err != nil {
			return protocol.RenderError(err), nil
		}
		return protocol.RenderCancelAck(req.Symbol, req.OrderID), nil

	case protocol.CmdPrice:
		market, ok := h.Engine.Registry().Get(req.Symbol)
		if !ok {
			return protocol.RenderError(xerrors.ErrUnknownMarket), nil
		}
		return protocol.RenderPrice(market.Info().LatestPrice), nil

	case protocol.CmdShow:
		market, ok := h.Engine.Registry().Get(req.Symbol)
		if !ok {
			return protocol.RenderError(xerrors.ErrUnknownMarket), nil
		}
		bid, ask := market.TopOfBook()
		return protocol.RenderShow(bid, ask), nil

	case protocol.CmdHistory:
		if _, ok := h.Engine.Registry().Get(req.Symbol); !ok {
			return protocol.RenderError(xerrors.ErrUnknownMarket), nil
		}
		trades, err := h.Engine.Store().ListTrades(ctx, req.Symbol)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		return protocol.RenderHistory(trades), nil

	case protocol.CmdAccountCreate:
		acc, err := h.Accounts.Create(ctx, req.User, req.Pass)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		return protocol.RenderOK(acc.String()), nil

	case protocol.CmdAccountShow:
		acc, err := h.Accounts.Authenticate(ctx, req.User, req.Pass)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		orders, err := h.Accounts.Orders(ctx, acc.ID)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		return protocol.RenderAccountOrders(orders), nil

	case protocol.CmdSimulate:
		sum, err := simulate.Run(ctx, h.Engine, h.Accounts, req.NUsers, req.NMarkets, req.NOrders)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		return protocol.RenderOK(renderSimulateSummary(sum)), nil

	case protocol.CmdUpgradeDB:
		acc, err := h.Accounts.Authenticate(ctx, req.User, req.Pass)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		if acc.Username != h.AdminUser {
			return protocol.RenderError(xerrors.ErrAuth), nil
		}
		n, err := upgrade.Run(ctx, h.Engine, req.DBPath)
		if err != nil {
			return protocol.RenderError(err), nil
		}
		return protocol.RenderOK(renderUpgradeSummary(n)), nil

	default:
		return protocol.RenderError(protocol.ErrUnknownCommand), nil
	}
}

func renderSimulateSummary(s simulate.Summary) string {
	return fmt.Sprintf("simulate: users=%d markets=%d orders=%d trades=%d",
		s.UsersCreated, s.MarketsCreated, s.OrdersPlaced, s.TradesExecuted)
}

func renderUpgradeSummary(n int) string {
	return fmt.Sprintf("upgrade_db: %d markets loaded", n)
}
