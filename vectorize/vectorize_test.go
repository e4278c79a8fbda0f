package vectorize

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNoopEmbedder(t *testing.T) {
	emb, err := New(context.Background(), Config{Dimension: 384})
	if err != nil {
		t.Fatal(err)
	}

	vec, err := emb.Embed(context.Background(), "terminal dashboards")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 384 {
		t.Fatalf("got %d dims, want 384", len(vec))
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("noop vector should be all zeros")
		}
	}
}

func TestOpenAIClient(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{
				"embedding": []float32{float32(i + 1), 0, 0},
				"index":     i,
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
	defer srv.Close()

	emb, err := New(context.Background(), Config{
		Endpoint:  srv.URL,
		Model:     "e5-base",
		APIKey:    "sekrit",
		BatchSize: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %d dims, want 3", len(vec))
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if emb.Dimension() != 3 {
		t.Fatalf("auto-detected dimension = %d, want 3", emb.Dimension())
	}

	// Three texts at batch size 2 means two round trips, reassembled in order.
	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if vecs[2][0] != 1 {
		// Index restarts per batch: "c" is index 0 of the second call.
		t.Fatalf("vecs[2][0] = %f, want 1 (first of second batch)", vecs[2][0])
	}
}

func TestOpenAIClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	emb, err := New(context.Background(), Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := emb.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error on HTTP 503")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	original := []float32{1.0, -2.5, 3.14, 0, -0.001}
	restored := DeserializeVector(SerializeVector(original))

	if len(restored) != len(original) {
		t.Fatalf("length %d, want %d", len(restored), len(original))
	}
	for i := range original {
		if restored[i] != original[i] {
			t.Fatalf("index %d: %f != %f", i, restored[i], original[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	if sim := CosineSimilarity(a, a); math.Abs(sim-1) > 1e-6 {
		t.Fatalf("identical vectors: %f, want 1", sim)
	}
	if sim := CosineSimilarity(a, b); math.Abs(sim) > 1e-6 {
		t.Fatalf("orthogonal vectors: %f, want 0", sim)
	}
}

// WHAT: zero vectors and length mismatches score 0, not NaN.
// WHY: the noop embedder feeds zero vectors straight into scoring; a NaN
// would poison threshold comparisons downstream.
func TestCosineSimilarityDegenerate(t *testing.T) {
	zero := []float32{0, 0, 0}
	unit := []float32{1, 0, 0}

	if sim := CosineSimilarity(zero, unit); sim != 0 {
		t.Fatalf("zero vector: %f, want 0", sim)
	}
	if sim := CosineSimilarity(unit, []float32{1, 0}); sim != 0 {
		t.Fatalf("length mismatch: %f, want 0", sim)
	}
}

func TestIsZeroVector(t *testing.T) {
	if !IsZeroVector([]float32{0, 0, 0}) {
		t.Fatal("all-zero vector not detected")
	}
	if !IsZeroVector(nil) {
		t.Fatal("nil vector should count as zero")
	}
	if IsZeroVector([]float32{0, 0.001, 0}) {
		t.Fatal("nonzero component missed")
	}
}

func TestMeanVector(t *testing.T) {
	mean := MeanVector([][]float32{{1, 2}, {3, 4}})
	if mean[0] != 2 || mean[1] != 3 {
		t.Fatalf("mean = %v, want [2 3]", mean)
	}

	if MeanVector(nil) != nil {
		t.Fatal("empty input should yield nil")
	}
}
