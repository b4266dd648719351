// Command exchange is the terminal entrypoint: it wires up the durable
// store, recovers in-memory state, and runs a stdin/stdout REPL over the
// request grammar. ctx/signal wiring follows signal.NotifyContext; flags
// follow the same flag-based CLI parameter style used throughout this
// module's commands.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/oakmarket/exchange/internal/account"
	"github.com/oakmarket/exchange/internal/dispatch"
	"github.com/oakmarket/exchange/internal/engine"
	"github.com/oakmarket/exchange/internal/persistence"
)

const (
	exitOK                     = 0
	exitInvalidArgs            = 1
	exitPersistenceInitFailure = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	dsn := flag.String("db", os.Getenv("DATABASE_URL"), "Postgres connection string")
	admin := flag.String("admin", os.Getenv("EXCHANGE_ADMIN"), "username authorized to run upgrade_db")
	workers := flag.Int("workers", 10, "number of dispatch workers")
	queueCapacity := flag.Int("queue-capacity", persistence.DefaultQueueCapacity, "persistence queue capacity")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *dsn == "" {
		log.Error().Msg("missing -db / DATABASE_URL")
		return exitInvalidArgs
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Error().Err(err).Msg("failed to open database connection")
		return exitPersistenceInitFailure
	}
	defer db.Close()

	store := persistence.NewSQLStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("failed to apply schema")
		return exitPersistenceInitFailure
	}

	buffer := persistence.NewBuffer(*queueCapacity)
	eng := engine.NewEngine(store, buffer)
	if err := eng.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("failed to recover engine state")
		return exitPersistenceInitFailure
	}

	t, ctx := tomb.WithContext(ctx)

	writer := persistence.NewWriter(buffer, store)
	t.Go(func() error {
		return writer.Run(t)
	})

	accounts := account.New(store)
	handler := dispatch.NewHandler(eng, accounts, *admin)
	pool := dispatch.NewPool(handler, *workers)
	t.Go(func() error {
		return pool.Run(t)
	})

	exitCode := repl(ctx, pool)

	t.Kill(nil)
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("shutdown with error")
	}
	return exitCode
}

// repl reads request lines from stdin until EOF, `exit`, or ctx is
// cancelled, printing each response to stdout before reading the next
// line (flush-before-exit is handled by the tomb shutdown in run, which
// drains the persistence writer before returning).
func repl(ctx context.Context, pool *dispatch.Pool) int {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		text, err := pool.Submit(ctx, line)
		if err != nil {
			if errors.Is(err, dispatch.ErrExit) {
				return exitOK
			}
			if ctx.Err() != nil {
				return exitOK
			}
			fmt.Fprintln(os.Stdout, "ERROR:", err)
			continue
		}
		fmt.Fprint(os.Stdout, text)
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("error reading stdin")
	}
	return exitOK
}
