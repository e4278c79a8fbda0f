package workers

import (
	"context"
	"net/http"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/prospect/brain"
	"github.com/hazyhaar/prospect/dbopen"
	"github.com/hazyhaar/prospect/hunt/internal/github"
	"github.com/hazyhaar/prospect/hunt/internal/store"
	"github.com/hazyhaar/prospect/hunt/internal/tactics"
	"github.com/hazyhaar/prospect/ratemon"
	"github.com/hazyhaar/prospect/taskq"
)

type fakeSearcher struct {
	searchFn func(ctx context.Context, q github.Query) (*github.SearchResult, http.Header, error)
	readmeFn func(ctx context.Context, repo github.Repo) (string, error)
	queries  []github.Query
}

func (f *fakeSearcher) Search(ctx context.Context, q github.Query) (*github.SearchResult, http.Header, error) {
	f.queries = append(f.queries, q)
	return f.searchFn(ctx, q)
}

func (f *fakeSearcher) Readme(ctx context.Context, repo github.Repo) (string, error) {
	if f.readmeFn == nil {
		return "", nil
	}
	return f.readmeFn(ctx, repo)
}

type fakeEmbedder struct {
	fn func(text string) []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return f.fn(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.fn(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }
func (f *fakeEmbedder) Model() string  { return "fake" }

type fakeAnalyst struct {
	analysis *brain.Analysis
	err      error
	calls    int
}

func (f *fakeAnalyst) Summarize(context.Context, string, brain.Candidate) (*brain.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

type testRig struct {
	m      *Manager
	queue  *taskq.Q
	store  *store.Store
	search *fakeSearcher
}

func newRig(t *testing.T, search *fakeSearcher, embed *fakeEmbedder, analyst brain.Analyst) *testRig {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(taskq.Schema), dbopen.WithSchema(store.Schema))
	q := taskq.New(db, taskq.Options{})
	st := store.New(db)

	if embed == nil {
		embed = &fakeEmbedder{fn: func(string) []float32 { return []float32{1, 0} }}
	}
	if analyst == nil {
		analyst = &fakeAnalyst{err: brain.ErrUnavailable}
	}

	m := New(q, st, ratemon.New(ratemon.Options{}), ratemon.NewPacer(1000, 1000),
		search, embed, analyst, tactics.NewThresholds(), Options{})
	return &testRig{m: m, queue: q, store: st, search: search}
}

func claimAll(t *testing.T, q *taskq.Q, typ taskq.Type) []*taskq.Task {
	t.Helper()
	var out []*taskq.Task
	for {
		task, err := q.Claim(context.Background(), typ)
		if err != nil {
			t.Fatal(err)
		}
		if task == nil {
			return out
		}
		out = append(out, task)
	}
}

func TestDiscoveryBisectsOverCapWindow(t *testing.T) {
	// WHAT: A 2024-01-01..2024-01-03 window whose probe reports 1500
	// results against a 1000 cap yields exactly two child discovery
	// tasks, 01-01..01-02 and 01-02..01-03, one priority above.
	// WHY: The partition property — every window is fully accounted for
	// by bisection or enumeration — is what defeats the result cap.
	search := &fakeSearcher{
		searchFn: func(_ context.Context, q github.Query) (*github.SearchResult, http.Header, error) {
			return &github.SearchResult{TotalCount: 1500}, nil, nil
		},
	}
	rig := newRig(t, search, nil, nil)
	ctx := context.Background()

	parent := &taskq.Task{Priority: 3}
	p := DiscoveryPayload{
		Mission: "m", Tactic: "trending", Query: "x",
		Start: "2024-01-01", End: "2024-01-03", PerPage: 10, CycleID: "cyc_1",
	}
	if err := rig.m.handleDiscovery(ctx, parent, p); err != nil {
		t.Fatal(err)
	}

	children := claimAll(t, rig.queue, taskq.TypeDiscovery)
	if len(children) != 2 {
		t.Fatalf("got %d discovery tasks, want 2", len(children))
	}
	wantWindows := map[string]bool{"2024-01-01..2024-01-02": false, "2024-01-02..2024-01-03": false}
	for _, child := range children {
		got, err := decodePayload(child)
		if err != nil {
			t.Fatal(err)
		}
		cp := got.(DiscoveryPayload)
		key := cp.Start + ".." + cp.End
		if _, ok := wantWindows[key]; !ok {
			t.Fatalf("unexpected child window %s", key)
		}
		wantWindows[key] = true
		if child.Priority != parent.Priority+1 {
			t.Fatalf("child priority %d, want %d", child.Priority, parent.Priority+1)
		}
	}
	for w, seen := range wantWindows {
		if !seen {
			t.Fatalf("missing child window %s", w)
		}
	}
	if searches := claimAll(t, rig.queue, taskq.TypeSearch); len(searches) != 0 {
		t.Fatalf("bisected window must not enqueue search tasks, got %d", len(searches))
	}
}

func TestDiscoveryEnumeratesSafeWindow(t *testing.T) {
	// WHAT: A window under the cap fans out one search task per page,
	// each carrying the dated query.
	// WHY: Safe windows must be fully paged through or results are lost.
	search := &fakeSearcher{
		searchFn: func(_ context.Context, q github.Query) (*github.SearchResult, http.Header, error) {
			return &github.SearchResult{TotalCount: 25}, nil, nil
		},
	}
	rig := newRig(t, search, nil, nil)

	parent := &taskq.Task{Priority: 2}
	p := DiscoveryPayload{
		Mission: "m", Tactic: "trending", Query: "x",
		Start: "2024-01-01", End: "2024-01-03", PerPage: 10, CycleID: "cyc_1",
	}
	if err := rig.m.handleDiscovery(context.Background(), parent, p); err != nil {
		t.Fatal(err)
	}

	searches := claimAll(t, rig.queue, taskq.TypeSearch)
	if len(searches) != 3 {
		t.Fatalf("got %d search tasks, want 3 pages", len(searches))
	}
	got, err := decodePayload(searches[0])
	if err != nil {
		t.Fatal(err)
	}
	sp := got.(SearchPayload)
	if sp.Query != "x created:2024-01-01..2024-01-03" {
		t.Fatalf("got query %q, want dated query", sp.Query)
	}
	if searches[0].Priority != parent.Priority {
		t.Fatalf("search priority %d, want parent's %d", searches[0].Priority, parent.Priority)
	}
}

func TestDiscoveryUsesTacticDateField(t *testing.T) {
	// WHAT: A payload carrying date_field "pushed" slices on pushed:, and
	// bisected children inherit the field.
	// WHY: Tactics like trending window on push activity; slicing them by
	// creation date would enumerate the wrong population.
	calls := 0
	search := &fakeSearcher{
		searchFn: func(_ context.Context, q github.Query) (*github.SearchResult, http.Header, error) {
			calls++
			if calls == 1 {
				return &github.SearchResult{TotalCount: 1500}, nil, nil
			}
			return &github.SearchResult{TotalCount: 5}, nil, nil
		},
	}
	rig := newRig(t, search, nil, nil)
	ctx := context.Background()

	p := DiscoveryPayload{
		Mission: "m", Tactic: "trending", Query: "x", DateField: "pushed",
		Start: "2024-01-01", End: "2024-01-03", PerPage: 10, CycleID: "cyc_1",
	}
	if err := rig.m.handleDiscovery(ctx, &taskq.Task{Priority: 1}, p); err != nil {
		t.Fatal(err)
	}
	if got := rig.search.queries[0].Text; got != "x pushed:2024-01-01..2024-01-03" {
		t.Fatalf("probe query %q, want pushed window", got)
	}

	children := claimAll(t, rig.queue, taskq.TypeDiscovery)
	if len(children) != 2 {
		t.Fatalf("got %d children, want 2", len(children))
	}
	for _, child := range children {
		got, err := decodePayload(child)
		if err != nil {
			t.Fatal(err)
		}
		cp := got.(DiscoveryPayload)
		if cp.DateField != "pushed" {
			t.Fatalf("child date field %q, want pushed", cp.DateField)
		}
		if err := rig.m.handleDiscovery(ctx, child, cp); err != nil {
			t.Fatal(err)
		}
	}

	searches := claimAll(t, rig.queue, taskq.TypeSearch)
	if len(searches) == 0 {
		t.Fatal("expected search fan-out from enumerable children")
	}
	got, err := decodePayload(searches[0])
	if err != nil {
		t.Fatal(err)
	}
	sp := got.(SearchPayload)
	if sp.Query != "x pushed:2024-01-01..2024-01-02" && sp.Query != "x pushed:2024-01-02..2024-01-03" {
		t.Fatalf("search query %q, want a pushed window", sp.Query)
	}
}

func TestSearchFansOutFetchTasks(t *testing.T) {
	// WHAT: One search call enqueues one fetch task per item and adds
	// the item count to the cycle's found counter.
	// WHY: Scout is the only stage that sees search results; dropping an
	// item here would silently lose work.
	search := &fakeSearcher{
		searchFn: func(_ context.Context, q github.Query) (*github.SearchResult, http.Header, error) {
			return &github.SearchResult{
				TotalCount: 2,
				Items: []github.Repo{
					{FullName: "a/one", Owner: "a", Name: "one", HTMLURL: "https://github.com/a/one"},
					{FullName: "a/two", Owner: "a", Name: "two", HTMLURL: "https://github.com/a/two"},
				},
			}, nil, nil
		},
	}
	rig := newRig(t, search, nil, nil)
	ctx := context.Background()

	if err := rig.store.OpenCycle(ctx, "cyc_1", "m", "trending", "q"); err != nil {
		t.Fatal(err)
	}
	p := SearchPayload{Mission: "m", Tactic: "trending", Query: "q", Page: 1, PerPage: 10, CycleID: "cyc_1"}
	if err := rig.m.handleSearch(ctx, p); err != nil {
		t.Fatal(err)
	}

	fetches := claimAll(t, rig.queue, taskq.TypeFetchReadme)
	if len(fetches) != 2 {
		t.Fatalf("got %d fetch tasks, want 2", len(fetches))
	}
	if fetches[0].Priority != PriorityFetch {
		t.Fatalf("fetch priority %d, want %d", fetches[0].Priority, PriorityFetch)
	}

	rec, err := rig.store.FinalizeCycle(ctx, "cyc_1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Found != 2 {
		t.Fatalf("cycle found=%d, want 2", rec.Found)
	}
}

func TestFetchWithoutContentCompletesQuietly(t *testing.T) {
	// WHAT: A repository with no README enqueues nothing.
	// WHY: Empty documentation is a normal outcome, not an error; an
	// analyze task with nothing to analyze would only waste a worker.
	search := &fakeSearcher{
		readmeFn: func(context.Context, github.Repo) (string, error) { return "", nil },
	}
	rig := newRig(t, search, nil, nil)

	p := FetchPayload{Mission: "m", Repo: github.Repo{FullName: "a/b"}, CycleID: "cyc_1"}
	if err := rig.m.handleFetch(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if analyzes := claimAll(t, rig.queue, taskq.TypeAnalyze); len(analyzes) != 0 {
		t.Fatalf("got %d analyze tasks, want 0", len(analyzes))
	}
}

func TestFetchWithContentEnqueuesAnalyze(t *testing.T) {
	// WHAT: Retrieved documentation becomes an analyze task at priority
	// 10, above the search fan-out priority.
	// WHY: Already-discovered items must finish before new discovery is
	// processed, bounding backlog growth.
	search := &fakeSearcher{
		readmeFn: func(context.Context, github.Repo) (string, error) { return "# readme", nil },
	}
	rig := newRig(t, search, nil, nil)

	p := FetchPayload{Mission: "m", Repo: github.Repo{FullName: "a/b"}, CycleID: "cyc_1"}
	if err := rig.m.handleFetch(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	analyzes := claimAll(t, rig.queue, taskq.TypeAnalyze)
	if len(analyzes) != 1 {
		t.Fatalf("got %d analyze tasks, want 1", len(analyzes))
	}
	if analyzes[0].Priority != PriorityAnalyze {
		t.Fatalf("analyze priority %d, want %d", analyzes[0].Priority, PriorityAnalyze)
	}
	got, err := decodePayload(analyzes[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.(AnalyzePayload).Doc != "# readme" {
		t.Fatal("analyze payload should carry the documentation")
	}
}

func seedMission(t *testing.T, st *store.Store, name, goal string) {
	t.Helper()
	err := st.UpsertMission(context.Background(), &store.Mission{
		ID: "msn_" + name, Name: name, Goal: goal, Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeAcceptsAboveThreshold(t *testing.T) {
	// WHAT: A candidate aligned with the goal vector is persisted,
	// scored with the analyst's refinement, and counted accepted.
	// WHY: This is the pipeline's entire reason to exist.
	embed := &fakeEmbedder{fn: func(string) []float32 { return []float32{1, 0} }}
	analyst := &fakeAnalyst{analysis: &brain.Analysis{Summary: "relevant", Score: 0.8}}
	rig := newRig(t, &fakeSearcher{}, embed, analyst)
	ctx := context.Background()

	seedMission(t, rig.store, "m", "find cli tools")
	if err := rig.store.OpenCycle(ctx, "cyc_1", "m", "trending", "q"); err != nil {
		t.Fatal(err)
	}

	p := AnalyzePayload{
		Mission: "m", Tactic: "trending",
		Repo: github.Repo{FullName: "a/b", HTMLURL: "https://github.com/a/b", Stars: 42},
		Doc:  "# readme", CycleID: "cyc_1",
	}
	if err := rig.m.handleAnalyze(ctx, p); err != nil {
		t.Fatal(err)
	}

	findings, err := rig.store.ListFindings(ctx, store.FindingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	f := findings[0]
	// Identical vectors: local = 1.0, final = (1.0 + 0.8) / 2.
	if f.Score == nil || *f.Score != 0.9 {
		t.Fatalf("got score %v, want 0.9", f.Score)
	}
	if f.Summary == nil || *f.Summary != "relevant" {
		t.Fatalf("got summary %v, want analyst summary", f.Summary)
	}

	rec, _ := rig.store.FinalizeCycle(ctx, "cyc_1")
	if rec.Accepted != 1 || rec.Rejected != 0 {
		t.Fatalf("got accepted=%d rejected=%d, want 1/0", rec.Accepted, rec.Rejected)
	}
}

func TestAnalyzeRejectsBelowThreshold(t *testing.T) {
	// WHAT: A candidate opposed to the goal vector is still persisted,
	// scored locally with no summary, and counted rejected.
	// WHY: Below-threshold findings stay inspectable; only the counters
	// distinguish them.
	embed := &fakeEmbedder{fn: func(text string) []float32 {
		if text == "find cli tools" {
			return []float32{1, 0}
		}
		return []float32{-1, 0}
	}}
	analyst := &fakeAnalyst{analysis: &brain.Analysis{Summary: "x", Score: 1}}
	rig := newRig(t, &fakeSearcher{}, embed, analyst)
	ctx := context.Background()

	seedMission(t, rig.store, "m", "find cli tools")
	if err := rig.store.OpenCycle(ctx, "cyc_1", "m", "trending", "q"); err != nil {
		t.Fatal(err)
	}

	p := AnalyzePayload{
		Mission: "m", Tactic: "trending",
		Repo: github.Repo{FullName: "a/b", HTMLURL: "https://github.com/a/b"},
		Doc:  "# readme", CycleID: "cyc_1",
	}
	if err := rig.m.handleAnalyze(ctx, p); err != nil {
		t.Fatal(err)
	}

	if analyst.calls != 0 {
		t.Fatal("analyst must not be called for rejected candidates")
	}
	rec, _ := rig.store.FinalizeCycle(ctx, "cyc_1")
	if rec.Rejected != 1 || rec.Accepted != 0 {
		t.Fatalf("got accepted=%d rejected=%d, want 0/1", rec.Accepted, rec.Rejected)
	}
}

func TestAnalyzeRejectsWithoutEmbeddingSignal(t *testing.T) {
	// WHAT: Zero embedding vectors score 0 and the candidate is rejected
	// without consulting the analyst.
	// WHY: A cosine of 0 maps to 0.5, above the default threshold; an
	// unconfigured embedding backend must not silently accept everything.
	embed := &fakeEmbedder{fn: func(string) []float32 { return []float32{0, 0} }}
	analyst := &fakeAnalyst{analysis: &brain.Analysis{Summary: "x", Score: 1}}
	rig := newRig(t, &fakeSearcher{}, embed, analyst)
	ctx := context.Background()

	seedMission(t, rig.store, "m", "find cli tools")
	if err := rig.store.OpenCycle(ctx, "cyc_1", "m", "trending", "q"); err != nil {
		t.Fatal(err)
	}

	p := AnalyzePayload{
		Mission: "m", Tactic: "trending",
		Repo: github.Repo{FullName: "a/b", HTMLURL: "https://github.com/a/b"},
		Doc:  "# readme", CycleID: "cyc_1",
	}
	if err := rig.m.handleAnalyze(ctx, p); err != nil {
		t.Fatal(err)
	}

	if analyst.calls != 0 {
		t.Fatal("analyst must not be called without an embedding signal")
	}
	findings, err := rig.store.ListFindings(ctx, store.FindingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if findings[0].Score == nil || *findings[0].Score != 0 {
		t.Fatalf("got score %v, want 0", findings[0].Score)
	}
	rec, _ := rig.store.FinalizeCycle(ctx, "cyc_1")
	if rec.Rejected != 1 || rec.Accepted != 0 {
		t.Fatalf("got accepted=%d rejected=%d, want 0/1", rec.Accepted, rec.Rejected)
	}
}

func TestAnalyzeDuplicateURLCompletes(t *testing.T) {
	// WHAT: Re-analyzing an already-stored URL returns nil and leaves
	// the cycle counters alone.
	// WHY: A duplicate is a no-op outcome, distinct from both success
	// and failure; retrying it would loop forever.
	rig := newRig(t, &fakeSearcher{}, nil, nil)
	ctx := context.Background()

	seedMission(t, rig.store, "m", "find cli tools")
	if err := rig.store.OpenCycle(ctx, "cyc_1", "m", "trending", "q"); err != nil {
		t.Fatal(err)
	}
	if err := rig.store.SaveFinding(ctx, &store.Finding{
		ID: "fnd_existing", Title: "a/b", URL: "https://github.com/a/b",
	}); err != nil {
		t.Fatal(err)
	}

	p := AnalyzePayload{
		Mission: "m", Tactic: "trending",
		Repo: github.Repo{FullName: "a/b", HTMLURL: "https://github.com/a/b"},
		Doc:  "# readme", CycleID: "cyc_1",
	}
	if err := rig.m.handleAnalyze(ctx, p); err != nil {
		t.Fatal(err)
	}

	rec, _ := rig.store.FinalizeCycle(ctx, "cyc_1")
	if rec.Accepted != 0 || rec.Rejected != 0 {
		t.Fatalf("duplicate touched counters: accepted=%d rejected=%d", rec.Accepted, rec.Rejected)
	}
}

func TestAnalyzeDegradesWhenAnalystFails(t *testing.T) {
	// WHAT: An analyst error keeps the local score, stores no summary,
	// and still counts the finding accepted.
	// WHY: The local screen already passed; an LLM outage must degrade
	// the cycle, not abort it.
	embed := &fakeEmbedder{fn: func(string) []float32 { return []float32{1, 0} }}
	analyst := &fakeAnalyst{err: brain.ErrUnavailable}
	rig := newRig(t, &fakeSearcher{}, embed, analyst)
	ctx := context.Background()

	seedMission(t, rig.store, "m", "find cli tools")
	if err := rig.store.OpenCycle(ctx, "cyc_1", "m", "trending", "q"); err != nil {
		t.Fatal(err)
	}

	p := AnalyzePayload{
		Mission: "m", Tactic: "trending",
		Repo: github.Repo{FullName: "a/b", HTMLURL: "https://github.com/a/b"},
		Doc:  "# readme", CycleID: "cyc_1",
	}
	if err := rig.m.handleAnalyze(ctx, p); err != nil {
		t.Fatal(err)
	}

	findings, _ := rig.store.ListFindings(ctx, store.FindingFilter{})
	f := findings[0]
	if f.Score == nil || *f.Score != 1.0 {
		t.Fatalf("got score %v, want local 1.0", f.Score)
	}
	if f.Summary != nil {
		t.Fatalf("got summary %v, want none", f.Summary)
	}
	rec, _ := rig.store.FinalizeCycle(ctx, "cyc_1")
	if rec.Accepted != 1 {
		t.Fatalf("got accepted=%d, want 1", rec.Accepted)
	}
}

func TestMalformedPayloadFailsPermanently(t *testing.T) {
	// WHAT: An undecodable payload surfaces ErrMalformedPayload.
	// WHY: Retrying a deterministic decode error burns the retry budget
	// for nothing; the loop parks such tasks immediately.
	task := &taskq.Task{ID: "task_1", Type: "bogus", Payload: []byte(`{}`)}
	if _, err := decodePayload(task); err == nil {
		t.Fatal("expected error for unknown task type")
	}
	task = &taskq.Task{ID: "task_2", Type: taskq.TypeSearch, Payload: []byte(`not json`)}
	if _, err := decodePayload(task); err == nil {
		t.Fatal("expected error for undecodable payload")
	}
}
