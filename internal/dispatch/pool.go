package dispatch

import (
	"context"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const defaultNWorkers = 10

// job couples a request line with the channel its caller is waiting on —
// the reply path travels with the request rather than through a separate
// lookup table.
type job struct {
	ctx    context.Context
	line   string
	result chan<- result
}

type result struct {
	text string
	err  error
}

// Pool runs a fixed number of workers pulling jobs off a shared channel
// and running them through a Handler, supervised by a tomb.Tomb so a
// shutdown signal tears down the whole pool cleanly.
type Pool struct {
	handler *Handler
	jobs    chan job
	n       int
}

// NewPool creates a Pool of n workers (defaultNWorkers if n <= 0) around
// handler.
func NewPool(handler *Handler, n int) *Pool {
	if n <= 0 {
		n = defaultNWorkers
	}
	return &Pool{handler: handler, jobs: make(chan job, n*4), n: n}
}

// Run starts the worker goroutines under t and blocks until t is dying.
func (p *Pool) Run(t *tomb.Tomb) error {
	log.Info().Int("workers", p.n).Msg("dispatch pool starting")
	for i := 0; i < p.n; i++ {
		t.Go(func() error {
			return p.worker(t)
		})
	}
	<-t.Dying()
	return nil
}

func (p *Pool) worker(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case j := <-p.jobs:
			text, err := p.handler.Handle(j.ctx, j.line)
			j.result <- result{text: text, err: err}
		}
	}
}

// Submit enqueues line for processing and blocks until a worker has
// handled it, returning the rendered response (or ErrExit on `exit`).
func (p *Pool) Submit(ctx context.Context, line string) (string, error) {
	resultCh := make(chan result, 1)
	select {
	case p.jobs <- job{ctx: ctx, line: line, result: resultCh}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-resultCh:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
