package hunt

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/prospect/brain"
	"github.com/hazyhaar/prospect/dbopen"
	"github.com/hazyhaar/prospect/idgen"
)

func TestEvolveAppliesProposal(t *testing.T) {
	// WHAT: a valid proposal becomes the mission's active strategy and
	// its tactic weight overrides take effect.
	fb := &fakeBrain{proposal: &brain.StrategyProposal{
		Keywords:      []string{"hnsw", "vector index"},
		TacticWeights: map[string]float64{"trending": 1.5},
	}}
	s := newTestService(t, fb)
	ctx := context.Background()
	addMission(t, s, "alpha")

	if err := s.Evolve(ctx, "alpha"); err != nil {
		t.Fatalf("Evolve: %v", err)
	}

	m, err := s.store.GetMission(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if m.StrategyJSON == "" || m.StrategyJSON == "{}" {
		t.Fatal("mission snapshot not updated")
	}
	if got := s.engine.Weights()["trending"]; got != 1.5 {
		t.Fatalf("trending weight = %v, want 1.5", got)
	}
	if got := s.effectiveGoal(m); got != "hnsw vector index" {
		t.Fatalf("effective goal = %q", got)
	}
}

func TestEvolveRejectsBadProposal(t *testing.T) {
	// WHAT: proposals with no keywords, unknown tactics, or out-of-range
	// weights are rejected and nothing is stored.
	ctx := context.Background()

	cases := []struct {
		name string
		p    *brain.StrategyProposal
	}{
		{"no keywords", &brain.StrategyProposal{}},
		{"blank keyword", &brain.StrategyProposal{Keywords: []string{"  "}}},
		{"unknown tactic", &brain.StrategyProposal{
			Keywords:      []string{"x"},
			TacticWeights: map[string]float64{"nonsense": 1.0},
		}},
		{"weight too high", &brain.StrategyProposal{
			Keywords:      []string{"x"},
			TacticWeights: map[string]float64{"trending": 3.0},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestService(t, &fakeBrain{proposal: tc.p})
			addMission(t, s, "alpha")

			err := s.Evolve(ctx, "alpha")
			if !errors.Is(err, ErrStrategyRejected) {
				t.Fatalf("err = %v, want ErrStrategyRejected", err)
			}
			m, gerr := s.store.GetMission(ctx, "alpha")
			if gerr != nil {
				t.Fatal(gerr)
			}
			if m.StrategyJSON != "{}" {
				t.Fatal("rejected proposal must not be stored")
			}
		})
	}
}

func TestEvolveSurfacesBrainFailure(t *testing.T) {
	// WHAT: a failing Strategist leaves the prior strategy untouched.
	s := newTestService(t, &fakeBrain{proposeErr: brain.ErrUnavailable})
	ctx := context.Background()
	addMission(t, s, "alpha")

	if err := s.Evolve(ctx, "alpha"); !errors.Is(err, brain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestRollbackRestoresPriorStrategy(t *testing.T) {
	// WHAT: rollback reactivates the previous strategy row and restores
	// its keywords and weights.
	fb := &fakeBrain{proposal: &brain.StrategyProposal{
		Keywords:      []string{"first"},
		TacticWeights: map[string]float64{"trending": 1.2},
	}}
	s := newTestService(t, fb)
	ctx := context.Background()
	addMission(t, s, "alpha")

	if err := s.Evolve(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	fb.proposal = &brain.StrategyProposal{
		Keywords:      []string{"second"},
		TacticWeights: map[string]float64{"trending": 0.5},
	}
	if err := s.Evolve(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	if got := s.engine.Weights()["trending"]; got != 0.5 {
		t.Fatalf("after second evolve weight = %v", got)
	}

	prior, err := s.RollbackStrategy(ctx, "alpha")
	if err != nil {
		t.Fatalf("RollbackStrategy: %v", err)
	}
	if prior == nil {
		t.Fatal("expected a restored strategy")
	}
	if got := s.engine.Weights()["trending"]; got != 1.2 {
		t.Fatalf("after rollback weight = %v, want 1.2", got)
	}
	m, err := s.store.GetMission(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.effectiveGoal(m); got != "first" {
		t.Fatalf("after rollback goal = %q, want %q", got, "first")
	}
}

func TestWeightsSurviveRestart(t *testing.T) {
	// WHAT: learned tactic weights come back after a restart: a fresh
	// service over the same database re-applies the stored overrides
	// before its first cycle.
	// WHY: the engine starts from catalog defaults every process; the
	// mission record is the durable copy.
	fb := &fakeBrain{proposal: &brain.StrategyProposal{
		Keywords:      []string{"hnsw"},
		TacticWeights: map[string]float64{"trending": 1.7},
	}}
	db := dbopen.OpenMemory(t)
	ctx := context.Background()

	s1, err := New(ctx, &Config{}, nil,
		WithDB(db), WithSearcher(&fakeSearcher{}), WithEmbedder(fakeEmbedder{}),
		WithBrain(fb), WithIDs(idgen.Sequential("a")))
	if err != nil {
		t.Fatal(err)
	}
	addMission(t, s1, "alpha")
	if err := s1.Evolve(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}

	s2, err := New(ctx, &Config{}, nil,
		WithDB(db), WithSearcher(&fakeSearcher{}), WithEmbedder(fakeEmbedder{}),
		WithBrain(fb), WithIDs(idgen.Sequential("b")))
	if err != nil {
		t.Fatal(err)
	}
	if err := s2.restoreWeights(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s2.engine.Weights()["trending"]; got != 1.7 {
		t.Fatalf("restored trending weight = %v, want 1.7", got)
	}
}

func TestRollbackWithoutHistory(t *testing.T) {
	// WHAT: with no deactivated strategy row, rollback is a nil no-op.
	s := newTestService(t, nil)
	addMission(t, s, "alpha")

	prior, err := s.RollbackStrategy(context.Background(), "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if prior != nil {
		t.Fatalf("expected nil, got %+v", prior)
	}
}

func TestInitMissionSeedsStrategy(t *testing.T) {
	// WHAT: InitMission feeds seed READMEs to the Strategist and applies
	// the resulting proposal with source "seed".
	fb := &fakeBrain{proposal: &brain.StrategyProposal{Keywords: []string{"seeded"}}}
	s := newTestService(t, fb)
	ctx := context.Background()

	m := &Mission{Name: "alpha", Goal: "vector search", SeedRepos: []string{"demo/repo"}, Enabled: true}
	if err := s.AddMission(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := s.InitMission(ctx, "alpha"); err != nil {
		t.Fatalf("InitMission: %v", err)
	}

	if len(fb.requests) != 1 {
		t.Fatalf("strategist called %d times, want 1", len(fb.requests))
	}
	active, err := s.store.ActiveStrategy(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.Source != "seed" {
		t.Fatalf("active strategy = %+v, want source seed", active)
	}
}

func TestInitMissionRequiresSeeds(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	addMission(t, s, "alpha")

	if err := s.InitMission(ctx, "alpha"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
