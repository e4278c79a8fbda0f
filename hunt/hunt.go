// Package hunt is the autonomous repository-discovery service: missions
// round-robin through research cycles, each cycle picks a tactic, fans
// work out through the task queue, and feeds its yield back into tactic
// weights, acceptance thresholds, and occasionally a whole new strategy.
package hunt

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/prospect/brain"
	"github.com/hazyhaar/prospect/dbopen"
	"github.com/hazyhaar/prospect/hunt/internal/github"
	"github.com/hazyhaar/prospect/hunt/internal/store"
	"github.com/hazyhaar/prospect/hunt/internal/tactics"
	"github.com/hazyhaar/prospect/hunt/internal/workers"
	"github.com/hazyhaar/prospect/idgen"
	"github.com/hazyhaar/prospect/ratemon"
	"github.com/hazyhaar/prospect/taskq"
	"github.com/hazyhaar/prospect/vectorize"
)

// Service is the discovery orchestrator. Construct with New, then Run.
type Service struct {
	db         *sql.DB
	store      *store.Store
	queue      *taskq.Q
	monitor    *ratemon.Monitor
	pacer      *ratemon.Pacer
	engine     *tactics.Engine
	thresholds *tactics.Thresholds
	searcher   workers.Searcher
	embedder   vectorize.Embedder
	brain      brain.Brain
	manager    *workers.Manager
	cfg        *Config
	logger     *slog.Logger
	newCycleID idgen.Generator
	newID      idgen.Generator

	// Reflection state, guarded by the control loop being single-flight:
	// only runCycle and its callees touch these.
	forced      map[string]*tactics.Tactic
	cyclesSince map[string]int
}

// Option configures a Service during creation. Used to inject fakes in
// tests and alternative collaborators in production.
type Option func(*Service)

// WithDB substitutes an already-opened database (the schemas are still
// applied).
func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

// WithSearcher substitutes the GitHub client.
func WithSearcher(sc workers.Searcher) Option {
	return func(s *Service) { s.searcher = sc }
}

// WithEmbedder substitutes the embedding collaborator.
func WithEmbedder(e vectorize.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithBrain substitutes the LLM collaborator.
func WithBrain(b brain.Brain) Option {
	return func(s *Service) { s.brain = b }
}

// WithIDs substitutes the ID generator.
func WithIDs(g idgen.Generator) Option {
	return func(s *Service) {
		s.newID = g
		s.newCycleID = g
	}
}

// New wires a Service: database, queue, monitor, tactic engine, worker
// manager, and the external collaborators. Collaborators not injected
// through options are built from cfg; absent credentials yield noop
// backends so the pipeline still runs end to end.
func New(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:         cfg,
		logger:      logger,
		monitor:     ratemon.New(ratemon.Options{SafetyBuffer: cfg.Pipeline.SafetyBuffer}),
		pacer:       ratemon.NewPacer(cfg.Pipeline.PacerRPS, cfg.Pipeline.PacerBurst),
		engine:      tactics.NewEngine(tactics.Options{}),
		thresholds:  tactics.NewThresholds(),
		newCycleID:  idgen.Prefixed("cyc_", idgen.Default),
		newID:       idgen.Default,
		forced:      make(map[string]*tactics.Tactic),
		cyclesSince: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.db == nil {
		db, err := dbopen.Open(cfg.DBPath(), dbopen.WithMkdirAll())
		if err != nil {
			return nil, fmt.Errorf("hunt: open database: %w", err)
		}
		s.db = db
	}
	if _, err := s.db.ExecContext(ctx, taskq.Schema); err != nil {
		return nil, fmt.Errorf("hunt: apply queue schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, store.Schema); err != nil {
		return nil, fmt.Errorf("hunt: apply schema: %w", err)
	}

	s.store = store.New(s.db)
	s.queue = taskq.New(s.db, taskq.Options{})

	if s.searcher == nil {
		s.searcher = github.NewClient(cfg.GitHub)
	}
	if s.embedder == nil {
		emb, err := vectorize.New(ctx, cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("hunt: embedder: %w", err)
		}
		s.embedder = emb
	}
	if s.brain == nil {
		b, err := brain.New(ctx, cfg.Brain)
		if err != nil {
			return nil, fmt.Errorf("hunt: brain: %w", err)
		}
		s.brain = b
	}

	s.manager = workers.New(s.queue, s.store, s.monitor, s.pacer,
		s.searcher, s.embedder, s.brain, s.thresholds,
		workers.Options{
			Processors: cfg.Pipeline.Processors,
			IdleSleep:  cfg.Pipeline.IdleSleep,
			ResultCap:  cfg.Pipeline.ResultCap,
			Logger:     logger,
		})
	return s, nil
}

// Close releases the database.
func (s *Service) Close() error {
	return s.db.Close()
}

// Run starts the workers, the control loop, and the missions-file
// watcher, and blocks until ctx is cancelled. Tasks stranded in
// processing by a previous crash are requeued first.
func (s *Service) Run(ctx context.Context) error {
	requeued, err := s.queue.RequeueStale(ctx)
	if err != nil {
		return err
	}
	if requeued > 0 {
		s.logger.Info("hunt: requeued stale tasks", "count", requeued)
	}

	if err := s.seedMissions(ctx); err != nil {
		s.logger.Warn("hunt: missions file not loaded", "error", err)
	}
	if err := s.restoreWeights(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.manager.Run(ctx) })
	g.Go(func() error { return s.controlLoop(ctx) })
	g.Go(func() error { return s.watchMissions(ctx) })
	return g.Wait()
}

// --- Control loop ---

// controlLoop round-robins the enabled missions, one research cycle at
// a time. The workers provide the concurrency; the loop provides the
// cadence and the reflection.
func (s *Service) controlLoop(ctx context.Context) error {
	s.logger.Info("hunt: control loop started")
	for {
		if ctx.Err() != nil {
			return nil
		}

		missions, err := s.store.ListMissions(ctx, false)
		if err != nil {
			s.logger.Error("hunt: list missions", "error", err)
			s.sleep(ctx, s.cfg.Pipeline.CycleIdle)
			continue
		}
		if len(missions) == 0 {
			s.sleep(ctx, s.cfg.Pipeline.CycleIdle)
			continue
		}

		for _, mission := range missions {
			if ctx.Err() != nil {
				return nil
			}
			if err := s.runCycle(ctx, mission); err != nil && ctx.Err() == nil {
				s.logger.Error("hunt: cycle failed", "mission", mission.Name, "error", err)
			}
			s.sleep(ctx, s.cfg.Pipeline.CycleIdle)
		}
	}
}

// runCycle executes one research cycle for a mission: pick a tactic,
// enqueue the root task, wait for the fan-out to drain, then reflect.
func (s *Service) runCycle(ctx context.Context, mission *Mission) error {
	perf, err := s.store.SuccessRates(ctx, mission.Name)
	if err != nil {
		return err
	}

	var tactic tactics.Tactic
	if t := s.forced[mission.Name]; t != nil {
		tactic = *t
		delete(s.forced, mission.Name)
		s.logger.Info("hunt: using rotated tactic", "mission", mission.Name, "tactic", tactic.Name)
	} else {
		tactic = s.engine.Select(mission.Name, perf)
	}

	// The mission's stars floor wins over a looser tactic preset.
	if mission.MinStars > tactic.StarsMin {
		tactic.StarsMin = mission.MinStars
	}

	goal := s.effectiveGoal(mission)
	cycleID := s.newCycleID()

	if tactic.DateField != "" && tactic.DateDays > 0 {
		// Discovery path: the window qualifier is appended per-window by
		// the scout, so the base query is built without a date filter.
		bare := tactic
		bare.DateField = ""
		query := s.engine.BuildQuery(bare, goal, mission.Languages)
		if err := s.store.OpenCycle(ctx, cycleID, mission.Name, tactic.Name, query); err != nil {
			return err
		}

		end := time.Now().UTC()
		start := end.AddDate(0, 0, -tactic.DateDays)
		p := workers.DiscoveryPayload{
			Mission:   mission.Name,
			Tactic:    tactic.Name,
			Query:     query,
			DateField: tactic.DateField,
			Start:     start.Format("2006-01-02"),
			End:       end.Format("2006-01-02"),
			PerPage:   tactic.PerPage,
			CycleID:   cycleID,
		}
		if _, err := s.queue.Enqueue(ctx, taskq.TypeDiscovery, p, 1); err != nil {
			return err
		}
	} else {
		query := s.engine.BuildQuery(tactic, goal, mission.Languages)
		if err := s.store.OpenCycle(ctx, cycleID, mission.Name, tactic.Name, query); err != nil {
			return err
		}

		page, perPage := s.engine.SearchParams(tactic)
		p := workers.SearchPayload{
			Mission: mission.Name,
			Tactic:  tactic.Name,
			Query:   query,
			Page:    page,
			PerPage: perPage,
			Sort:    tactic.Sort,
			Order:   "desc",
			CycleID: cycleID,
		}
		if _, err := s.queue.Enqueue(ctx, taskq.TypeSearch, p, 1); err != nil {
			return err
		}
	}

	s.logger.Info("hunt: cycle started",
		"mission", mission.Name, "tactic", tactic.Name, "cycle", cycleID)

	if err := s.waitForDrain(ctx, cycleID); err != nil {
		return err
	}

	rec, err := s.store.FinalizeCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	if w, ok := s.engine.UpdateWeight(tactic.Name, rec.SuccessRate); ok {
		s.logger.Info("hunt: cycle finished",
			"mission", mission.Name, "tactic", tactic.Name,
			"found", rec.Found, "accepted", rec.Accepted, "rejected", rec.Rejected,
			"success", rec.SuccessRate, "weight", w)
	}

	s.reflect(ctx, mission)
	return nil
}

// waitForDrain polls until the cycle's tasks are all terminal, the
// cycle timeout expires, or ctx is cancelled. Timeout is not an error:
// the cycle finalizes with whatever landed.
func (s *Service) waitForDrain(ctx context.Context, cycleID string) error {
	deadline := time.Now().Add(s.cfg.Pipeline.CycleTimeout)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.queue.InFlight(ctx, cycleID)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			s.logger.Warn("hunt: cycle timed out with tasks in flight",
				"cycle", cycleID, "in_flight", n)
			return nil
		}
		s.sleep(ctx, time.Second)
	}
}

// reflect runs the post-cycle adjustments: threshold nudging or forced
// rotation from the 3-cycle rolling rate, and strategy evolution on its
// schedule or on collapse. Collaborator failures skip the step, never
// abort the loop.
func (s *Service) reflect(ctx context.Context, mission *Mission) {
	rates, err := s.store.RecentRates(ctx, mission.Name, 3)
	if err != nil {
		s.logger.Error("hunt: reflect: recent rates", "error", err)
		return
	}

	switch adj := s.thresholds.Adjust(mission.Name, rates); adj {
	case tactics.AdjustRotate:
		t := s.engine.Rotate(mission.Name)
		s.forced[mission.Name] = &t
		s.logger.Info("hunt: success collapsed, rotating tactic",
			"mission", mission.Name, "next", t.Name)
	case tactics.AdjustLowered, tactics.AdjustRaised:
		s.logger.Info("hunt: threshold adjusted",
			"mission", mission.Name, "direction", adj.String(),
			"threshold", s.thresholds.Get(mission.Name))
	}

	s.cyclesSince[mission.Name]++
	due := s.cyclesSince[mission.Name] >= s.cfg.Pipeline.StrategyInterval

	if !due {
		recent, err := s.store.RecentRates(ctx, mission.Name, 5)
		if err == nil && len(recent) >= 5 && mean(recent) < 0.05 {
			due = true
		}
	}
	if !due {
		return
	}

	if err := s.Evolve(ctx, mission.Name); err != nil {
		s.logger.Warn("hunt: strategy evolution skipped", "mission", mission.Name, "error", err)
		return
	}
	s.cyclesSince[mission.Name] = 0
}

// effectiveGoal returns the mission's query-construction text: the
// learned strategy's keywords when one is active, the raw goal
// otherwise.
func (s *Service) effectiveGoal(mission *Mission) string {
	if mission.StrategyJSON == "" || mission.StrategyJSON == "{}" {
		return mission.Goal
	}
	var p brain.StrategyProposal
	if err := json.Unmarshal([]byte(mission.StrategyJSON), &p); err != nil || len(p.Keywords) == 0 {
		return mission.Goal
	}
	goal := ""
	for i, kw := range p.Keywords {
		if i > 0 {
			goal += " "
		}
		goal += kw
	}
	return goal
}

func (s *Service) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// --- Read surface ---

// Status is the ops snapshot served by the API, MCP and CLI.
type Status struct {
	Queue     map[taskq.Status]int `json:"queue"`
	RateLimit ratemon.State        `json:"rate_limit"`
	Missions  int                  `json:"missions"`
	Findings  int                  `json:"findings"`
	Weights   map[string]float64   `json:"tactic_weights"`
}

// Status reports queue depth, rate budget, and corpus size.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	counts, err := s.queue.Counts(ctx)
	if err != nil {
		return nil, err
	}
	var findings int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings`).Scan(&findings); err != nil {
		return nil, err
	}
	var missions int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM missions WHERE enabled = 1`).Scan(&missions); err != nil {
		return nil, err
	}
	return &Status{
		Queue:     counts,
		RateLimit: s.monitor.Snapshot(),
		Missions:  missions,
		Findings:  findings,
		Weights:   s.engine.Weights(),
	}, nil
}

// Missions lists all missions, disabled included.
func (s *Service) Missions(ctx context.Context) ([]*Mission, error) {
	return s.store.ListMissions(ctx, true)
}

// AddMission validates and upserts a mission.
func (s *Service) AddMission(ctx context.Context, m *Mission) error {
	if m.Name == "" || m.Goal == "" {
		return fmt.Errorf("%w: mission needs a name and a goal", ErrInvalidInput)
	}
	if m.ID == "" {
		m.ID = idgen.Prefixed("msn_", s.newID)()
	}
	return s.store.UpsertMission(ctx, m)
}

// Findings lists findings per the filter.
func (s *Service) Findings(ctx context.Context, filter FindingFilter) ([]*Finding, error) {
	return s.store.ListFindings(ctx, filter)
}

// SearchFindings runs a full-text search over stored findings.
func (s *Service) SearchFindings(ctx context.Context, query string, limit int) ([]*Finding, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrInvalidInput)
	}
	return s.store.SearchFindings(ctx, query, limit)
}

// Feedback applies external feedback to a finding. The pipeline itself
// never calls this.
func (s *Service) Feedback(ctx context.Context, id string, status FindingStatus) error {
	if !status.Valid() || status == FindingPending {
		return fmt.Errorf("%w: bad feedback status %q", ErrInvalidInput, status)
	}
	return s.store.SetFindingStatus(ctx, id, status)
}

// Thresholds returns the per-mission acceptance threshold.
func (s *Service) Threshold(mission string) float64 {
	return s.thresholds.Get(mission)
}

// TacticState pairs a tactic's weight with its recent selections.
type TacticState struct {
	Weights map[string]float64  `json:"weights"`
	History map[string][]string `json:"history"`
}

// Tactics snapshots the engine state for the ops surfaces.
func (s *Service) Tactics(ctx context.Context) (*TacticState, error) {
	missions, err := s.store.ListMissions(ctx, true)
	if err != nil {
		return nil, err
	}
	hist := make(map[string][]string, len(missions))
	for _, m := range missions {
		if h := s.engine.History(m.Name); len(h) > 0 {
			hist[m.Name] = h
		}
	}
	return &TacticState{Weights: s.engine.Weights(), History: hist}, nil
}
