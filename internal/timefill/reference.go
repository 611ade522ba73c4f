// Package timefill imputes missing occurrence times from the most common
// time observed for the same incident category and period tag.
package timefill

import (
	"sort"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// Key groups records for the reference table.
type Key struct {
	Category string
	Period   model.Period
}

// ReferenceTable maps (category, period) to the modal occurrence time.
// It is rebuilt for every run and never mutated after Build returns.
type ReferenceTable struct {
	entries map[Key]model.TimeOfDay
}

// Build computes the modal time per (category, period) over every record that
// has a time. Ties go to the earliest time of day, so the table depends only on
// the multiset of observations and not on row order.
func Build(records []model.Record) *ReferenceTable {
	counts := make(map[Key]map[model.TimeOfDay]int)
	for _, r := range records {
		if r.Time == nil {
			continue
		}
		k := Key{Category: r.Category, Period: r.PeriodTag}
		if counts[k] == nil {
			counts[k] = make(map[model.TimeOfDay]int)
		}
		counts[k][*r.Time]++
	}

	entries := make(map[Key]model.TimeOfDay, len(counts))
	for k, freq := range counts {
		entries[k] = mode(freq)
	}
	return &ReferenceTable{entries: entries}
}

func mode(freq map[model.TimeOfDay]int) model.TimeOfDay {
	times := make([]model.TimeOfDay, 0, len(freq))
	for t := range freq {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	best, bestN := times[0], freq[times[0]]
	for _, t := range times[1:] {
		if freq[t] > bestN {
			best, bestN = t, freq[t]
		}
	}
	return best
}

// Lookup returns the modal time for a category and period.
func (rt *ReferenceTable) Lookup(category string, p model.Period) (model.TimeOfDay, bool) {
	t, ok := rt.entries[Key{Category: category, Period: p}]
	return t, ok
}

// Len returns the number of (category, period) groups.
func (rt *ReferenceTable) Len() int {
	return len(rt.entries)
}

// Keys returns the table's keys sorted by category then period.
func (rt *ReferenceTable) Keys() []Key {
	keys := make([]Key, 0, len(rt.entries))
	for k := range rt.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Period < keys[j].Period
	})
	return keys
}
