// Package workers runs the three-stage pipeline: a Scout that executes
// search and discovery tasks, a Fetcher that retrieves documentation,
// and N Processors that score findings. The roles never talk to each
// other; the task queue is the only channel between stages.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/prospect/brain"
	"github.com/hazyhaar/prospect/hunt/internal/github"
	"github.com/hazyhaar/prospect/hunt/internal/store"
	"github.com/hazyhaar/prospect/ratemon"
	"github.com/hazyhaar/prospect/taskq"
	"github.com/hazyhaar/prospect/vectorize"
)

// Task fan-out priorities. Analysis outranks fresh search fan-out so
// already-discovered repositories finish before new ones start.
const (
	PriorityFetch   = 5
	PriorityAnalyze = 10
)

// Searcher is the slice of the GitHub client the workers need.
// *github.Client satisfies it; tests substitute fakes.
type Searcher interface {
	Search(ctx context.Context, q github.Query) (*github.SearchResult, http.Header, error)
	Readme(ctx context.Context, repo github.Repo) (string, error)
}

// Thresholds yields the per-mission acceptance threshold.
type Thresholds interface {
	Get(mission string) float64
}

// Options tunes the worker pool. Zero values get defaults.
type Options struct {
	// Processors is the analyze-stage concurrency. Default 2.
	Processors int

	// IdleSleep between claim attempts when the queue is empty. Default 500ms.
	IdleSleep time.Duration

	// ErrorBackoff after a task failure. Default 2s.
	ErrorBackoff time.Duration

	// ResultCap is the API's result-window cap driving bisection. Default 1000.
	ResultCap int

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Processors <= 0 {
		o.Processors = 2
	}
	if o.IdleSleep <= 0 {
		o.IdleSleep = 500 * time.Millisecond
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 2 * time.Second
	}
	if o.ResultCap <= 0 {
		o.ResultCap = 1000
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Manager owns the worker loops.
type Manager struct {
	queue      *taskq.Q
	store      *store.Store
	monitor    *ratemon.Monitor
	pacer      *ratemon.Pacer
	search     Searcher
	embedder   vectorize.Embedder
	analyst    brain.Analyst
	thresholds Thresholds
	opts       Options
	logger     *slog.Logger

	// Goal vectors are embedded once per mission and reused by every
	// processor; the cache lives for the process lifetime.
	goalMu    sync.Mutex
	goalVecs  map[string][]float32
	goalTexts map[string]string
}

// New wires a Manager. Every collaborator is injected; none are
// constructed here.
func New(queue *taskq.Q, st *store.Store, monitor *ratemon.Monitor, pacer *ratemon.Pacer,
	search Searcher, embedder vectorize.Embedder, analyst brain.Analyst,
	thresholds Thresholds, opts Options) *Manager {
	opts.defaults()
	return &Manager{
		queue:      queue,
		store:      st,
		monitor:    monitor,
		pacer:      pacer,
		search:     search,
		embedder:   embedder,
		analyst:    analyst,
		thresholds: thresholds,
		opts:       opts,
		logger:     opts.Logger,
		goalVecs:   make(map[string][]float32),
		goalTexts:  make(map[string]string),
	}
}

// Run starts the worker loops and blocks until ctx is cancelled. Each
// loop finishes its in-flight task before exiting.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.loop(ctx, "scout", []taskq.Type{taskq.TypeSearch, taskq.TypeDiscovery})
	})
	g.Go(func() error {
		return m.loop(ctx, "fetcher", []taskq.Type{taskq.TypeFetchReadme})
	})
	for i := 0; i < m.opts.Processors; i++ {
		name := "processor"
		g.Go(func() error {
			return m.loop(ctx, name, []taskq.Type{taskq.TypeAnalyze})
		})
	}
	return g.Wait()
}

// loop is the shared poll-claim-dispatch cycle. A task error fails the
// task and backs off briefly; the loop itself only stops on cancellation.
func (m *Manager) loop(ctx context.Context, role string, types []taskq.Type) error {
	log := m.logger.With("worker", role)
	log.Info("worker started")

	for {
		if ctx.Err() != nil {
			log.Info("worker stopped")
			return nil
		}

		task, err := m.queue.Claim(ctx, types...)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("claim failed", "error", err)
			m.sleep(ctx, m.opts.ErrorBackoff)
			continue
		}
		if task == nil {
			m.sleep(ctx, m.opts.IdleSleep)
			continue
		}

		if err := m.handle(ctx, task); err != nil {
			if errors.Is(err, ErrMalformedPayload) {
				log.Warn("malformed payload", "task", task.ID, "type", task.Type, "error", err)
				if ferr := m.queue.FailPermanent(ctx, task.ID, err.Error()); ferr != nil {
					log.Error("fail permanent", "task", task.ID, "error", ferr)
				}
				continue
			}
			log.Warn("task failed", "task", task.ID, "type", task.Type, "retries", task.Retries, "error", err)
			if ferr := m.queue.Fail(ctx, task.ID, err.Error()); ferr != nil {
				log.Error("fail", "task", task.ID, "error", ferr)
			}
			m.sleep(ctx, m.opts.ErrorBackoff)
			continue
		}

		if err := m.queue.Complete(ctx, task.ID); err != nil {
			log.Error("complete", "task", task.ID, "error", err)
		}
	}
}

// handle dispatches one claimed task to its stage handler.
func (m *Manager) handle(ctx context.Context, task *taskq.Task) error {
	payload, err := decodePayload(task)
	if err != nil {
		return err
	}
	switch p := payload.(type) {
	case SearchPayload:
		return m.handleSearch(ctx, p)
	case DiscoveryPayload:
		return m.handleDiscovery(ctx, task, p)
	case FetchPayload:
		return m.handleFetch(ctx, p)
	case AnalyzePayload:
		return m.handleAnalyze(ctx, p)
	default:
		return ErrMalformedPayload
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
