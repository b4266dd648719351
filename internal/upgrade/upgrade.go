// Package upgrade implements `upgrade_db`: bulk-loading a CSV list of
// tickers into the Market Registry, kept thin and calling straight into
// internal/engine.Engine.CreateMarket for each row, the same "read rows,
// load them into the store" shape as quantcup's ResetSchema+
// FillTestData, here driven by an external CSV instead of a random
// generator.
package upgrade

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/oakmarket/exchange/internal/engine"
)

// Run reads a two-column CSV (symbol,name) from path and registers every
// row as a market. Rows for a symbol already known to the registry are
// skipped (Engine.CreateMarket is idempotent). Returns the number of
// markets newly created.
func Run(ctx context.Context, eng *engine.Engine, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("upgrade_db: opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	created := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return created, fmt.Errorf("upgrade_db: parsing %s: %w", path, err)
		}
		symbol := strings.ToUpper(strings.TrimSpace(record[0]))
		name := strings.TrimSpace(record[1])
		if symbol == "" || name == "" {
			continue
		}
		if _, ok := eng.Registry().Get(symbol); ok {
			continue
		}
		if _, err = eng.CreateMarket(ctx, symbol, name); err != nil {
			return created, fmt.Errorf("upgrade_db: creating market %s: %w", symbol, err)
		}
		log.Info().Str("symbol", symbol).Str("name", name).Msg("market upgraded")
		created++
	}
	return created, nil
}
