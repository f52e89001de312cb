// Package match finds the closest gallery identity for a query embedding.
package match

import (
	"math"

	"github.com/andresmejia3/attendant/internal/gallery"
	"gonum.org/v1/gonum/floats"
)

// Unknown is the label for a face that matched nobody.
const Unknown = "Unknown"

// Result is the outcome of one match. Distance is the smallest distance
// seen, +Inf when nothing was comparable.
type Result struct {
	Identity string
	Distance float64
	Matched  bool
}

// Known reports whether the face was accepted as a gallery identity.
func (r Result) Known() bool { return r.Matched }

// Match compares query against every gallery entry with Euclidean distance.
// The global minimum wins and is accepted iff it is <= threshold. Ties keep
// the first entry in gallery order. Entries with a different dimension than
// the query are ignored, so an empty or incompatible gallery yields Unknown.
func Match(query []float64, g *gallery.Gallery, threshold float64) Result {
	best := Result{Identity: Unknown, Distance: math.Inf(1)}
	if len(query) == 0 {
		return best
	}

	bestIdentity := ""
	for _, e := range g.Entries() {
		if len(e.Embedding) != len(query) {
			continue
		}
		d := floats.Distance(query, e.Embedding, 2)
		if d < best.Distance {
			best.Distance = d
			bestIdentity = e.Identity
		}
	}

	if bestIdentity != "" && best.Distance <= threshold {
		best.Identity = bestIdentity
		best.Matched = true
	}
	return best
}
