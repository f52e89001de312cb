package match

import (
	"math"
	"testing"

	"github.com/andresmejia3/attendant/internal/gallery"
)

func buildGallery(t *testing.T, entries ...gallery.Entry) *gallery.Gallery {
	t.Helper()
	g := gallery.New()
	for _, e := range entries {
		if err := g.Add(e.Identity, e.Embedding); err != nil {
			t.Fatalf("Add(%s): %v", e.Identity, err)
		}
	}
	return g
}

func TestMatch_EmptyGallery(t *testing.T) {
	for _, g := range []*gallery.Gallery{nil, gallery.New()} {
		res := Match([]float64{0.1, 0.2, 0.3}, g, 0.6)
		if res.Identity != Unknown || res.Known() {
			t.Errorf("expected Unknown, got %+v", res)
		}
		if !math.IsInf(res.Distance, 1) {
			t.Errorf("expected +Inf distance, got %f", res.Distance)
		}
	}
}

func TestMatch_MinimumAcrossEmbeddings(t *testing.T) {
	g := buildGallery(t,
		gallery.Entry{Identity: "Alice", Embedding: []float64{5, 5}},
		gallery.Entry{Identity: "Alice", Embedding: []float64{0, 0}},
		gallery.Entry{Identity: "Bob", Embedding: []float64{1, 1}},
	)

	// 0.3 from Alice's second sample, ~0.76 from Bob
	res := Match([]float64{0.3, 0}, g, 0.6)

	if res.Identity != "Alice" || !res.Known() {
		t.Fatalf("expected Alice, got %+v", res)
	}
	if math.Abs(res.Distance-0.3) > 1e-9 {
		t.Errorf("expected distance 0.3, got %f", res.Distance)
	}
}

func TestMatch_Threshold(t *testing.T) {
	g := buildGallery(t, gallery.Entry{Identity: "Alice", Embedding: []float64{0, 0}})

	tests := []struct {
		name      string
		query     []float64
		threshold float64
		want      string
	}{
		{"Well inside", []float64{0.1, 0}, 0.6, "Alice"},
		{"Exactly on threshold", []float64{0.5, 0}, 0.5, "Alice"},
		{"Just past threshold", []float64{0.5000001, 0}, 0.5, Unknown},
		{"Far away", []float64{3, 4}, 0.6, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Match(tt.query, g, tt.threshold)
			if res.Identity != tt.want {
				t.Errorf("got %s (distance %f), want %s", res.Identity, res.Distance, tt.want)
			}
		})
	}
}

func TestMatch_RejectedKeepsDistance(t *testing.T) {
	g := buildGallery(t, gallery.Entry{Identity: "Alice", Embedding: []float64{0, 0}})

	res := Match([]float64{3, 4}, g, 0.6)
	if res.Known() {
		t.Fatal("expected rejection")
	}
	if res.Distance != 5 {
		t.Errorf("expected best distance 5 to be reported, got %f", res.Distance)
	}
}

func TestMatch_TieGoesToFirstEntry(t *testing.T) {
	g := buildGallery(t,
		gallery.Entry{Identity: "Bob", Embedding: []float64{1, 0}},
		gallery.Entry{Identity: "Alice", Embedding: []float64{-1, 0}},
	)

	for i := 0; i < 10; i++ {
		res := Match([]float64{0, 0}, g, 2)
		if res.Identity != "Bob" {
			t.Fatalf("tie must resolve to the first entry, got %s", res.Identity)
		}
	}
}

func TestMatch_DimensionMismatch(t *testing.T) {
	g := buildGallery(t, gallery.Entry{Identity: "Alice", Embedding: []float64{0, 0}})

	res := Match([]float64{0, 0, 0}, g, 10)
	if res.Known() {
		t.Errorf("query with a different dimension must not match, got %+v", res)
	}
	if res := Match(nil, g, 10); res.Known() {
		t.Errorf("empty query must not match, got %+v", res)
	}
}
