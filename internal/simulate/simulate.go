// Package simulate implements `simulate NUSERS NMKTS NORDERS`: a
// randomized-load generator that exercises the same engine and account
// entry points a real request would, for load testing. It never reaches
// into internal/book or internal/engine internals, only the public
// Engine/Service API.
//
// Grounded on quantcup's GenerateRandomOrder (random side/price/size/
// trader picking), adapted to call internal/engine.Engine.PlaceOrder
// directly instead of writing SQL rows, and internal/account.Service.Create
// for the synthetic users.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/oakmarket/exchange/internal/account"
	"github.com/oakmarket/exchange/internal/common"
	"github.com/oakmarket/exchange/internal/engine"
)

// Summary reports how much synthetic activity a Run produced.
type Summary struct {
	UsersCreated   int
	MarketsCreated int
	OrdersPlaced   int
	TradesExecuted int
}

// Run creates nUsers synthetic accounts, nMarkets synthetic markets (skipped
// if the symbol already exists), then submits nOrders random limit orders
// spread across them.
func Run(ctx context.Context, eng *engine.Engine, accounts *account.Service, nUsers, nMarkets, nOrders int) (Summary, error) {
	var sum Summary

	userIDs := make([]uint64, 0, nUsers)
	for i := 0; i < nUsers; i++ {
		username := fmt.Sprintf("sim-user-%d-%d", rand.Uint64(), i)
		acc, err := accounts.Create(ctx, username, "simulated")
		if err != nil {
			return sum, fmt.Errorf("simulate: creating user %d: %w", i, err)
		}
		userIDs = append(userIDs, acc.ID)
		sum.UsersCreated++
	}

	symbols := make([]string, 0, nMarkets)
	for i := 0; i < nMarkets; i++ {
		symbol := randomSymbol(i)
		_, existed := eng.Registry().Get(symbol)
		if _, err := eng.CreateMarket(ctx, symbol, fmt.Sprintf("Simulated Market %s", symbol)); err != nil {
			return sum, fmt.Errorf("simulate: creating market %s: %w", symbol, err)
		}
		symbols = append(symbols, symbol)
		if !existed {
			sum.MarketsCreated++
		}
	}

	if len(userIDs) == 0 || len(symbols) == 0 {
		return sum, nil
	}

	for i := 0; i < nOrders; i++ {
		symbol := symbols[rand.IntN(len(symbols))]
		userID := userIDs[rand.IntN(len(userIDs))]
		side := common.Buy
		if rand.IntN(2) == 1 {
			side = common.Sell
		}
		qty := uint64(1 + rand.IntN(1000))
		price := float64(1+rand.IntN(50000)) / 100.0

		_, trades, err := eng.PlaceOrder(ctx, symbol, side, qty, price, userID)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("simulate: order rejected")
			continue
		}
		sum.OrdersPlaced++
		sum.TradesExecuted += len(trades)
	}

	return sum, nil
}

// randomSymbol deterministically derives a ticker from i so a given
// nMarkets count always requests distinct symbols (SIM0, SIM1, ...),
// staying within the 10-char ticker length limit.
func randomSymbol(i int) string {
	return fmt.Sprintf("SIM%d", i)
}
