package spatial

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// candidate is a record with valid coordinates that can donate them.
type candidate struct {
	row      int
	number   *float64
	lat, lon float64
}

// StreetIndex maps a normalised street to its donor records in input order.
type StreetIndex map[string][]candidate

// BuildIndex indexes every record that has valid coordinates by street.
// Records with an empty street are not indexed.
func BuildIndex(records []model.Record) StreetIndex {
	idx := make(StreetIndex)
	for _, r := range records {
		if r.Street == "" || !r.HasCoordinates() {
			continue
		}
		idx[r.Street] = append(idx[r.Street], candidate{
			row:    r.Row,
			number: r.StreetNumber,
			lat:    *r.Latitude,
			lon:    *r.Longitude,
		})
	}
	return idx
}

// Nearest returns the donor on street whose number is closest to number.
// Ties, and the case where no distance can be computed, go to the donor that
// appears first in the input.
func (idx StreetIndex) Nearest(street string, number *float64) (candidate, bool) {
	cands := idx[street]
	if len(cands) == 0 {
		return candidate{}, false
	}

	best, bestDist := cands[0], distance(number, cands[0].number)
	for _, c := range cands[1:] {
		if d := distance(number, c.number); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, true
}

func distance(a, b *float64) float64 {
	if a == nil || b == nil {
		return math.Inf(1)
	}
	return math.Abs(*a - *b)
}

// LocalResult is the outcome of ImputeLocal.
type LocalResult struct {
	Records     []model.Record
	Filled      int
	Diagnostics []model.Diagnostic
}

// ImputeLocal copies coordinates onto every record without a valid pair from
// the same-street donor with the closest street number. The index is built
// once from the input, so imputed records never donate and the result does
// not depend on the order rows are processed in. Rows are resolved by up to
// workers goroutines.
func ImputeLocal(records []model.Record, workers int) LocalResult {
	out := NormalizeCoordinates(records)
	idx := BuildIndex(out)

	if workers < 1 {
		workers = 1
	}
	notes := make([]*model.Diagnostic, len(out))
	filled := make([]bool, len(out))

	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (len(out) + workers - 1) / workers
	for start := 0; start < len(out); start += chunk {
		end := min(start+chunk, len(out))
		g.Go(func() error {
			for i := start; i < end; i++ {
				r := &out[i]
				if r.HasCoordinates() {
					continue
				}
				if r.Street == "" {
					notes[i] = &model.Diagnostic{Row: r.Row, Kind: model.DiagnosticLocation, Message: "no coordinates and no street to match on"}
					continue
				}
				c, ok := idx.Nearest(r.Street, r.StreetNumber)
				if !ok {
					notes[i] = &model.Diagnostic{
						Row:     r.Row,
						Kind:    model.DiagnosticLocation,
						Message: fmt.Sprintf("no coordinates and no same-street neighbour on %q", r.Street),
					}
					continue
				}
				r.Latitude, r.Longitude = model.Float(c.lat), model.Float(c.lon)
				filled[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	res := LocalResult{Records: out}
	for i := range out {
		if filled[i] {
			res.Filled++
		}
		if notes[i] != nil {
			res.Diagnostics = append(res.Diagnostics, *notes[i])
		}
	}
	return res
}
