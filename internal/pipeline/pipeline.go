// Package pipeline runs the ordered cleaning stages over an incident dataset.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap-cli/internal/address"
	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/period"
	"github.com/sells-group/crimemap-cli/internal/spatial"
	"github.com/sells-group/crimemap-cli/internal/timefill"
)

// Stage names, in execution order.
const (
	StageNormalizeTags  = "normalize_tags"
	StageResolvePeriods = "resolve_periods"
	StageImputeTimes    = "impute_times"
	StageReconcile      = "reconcile"
	StageDropRestricted = "drop_restricted"
	StageNormalizeAddr  = "normalize_streets"
	StageImputeLocal    = "impute_coords_local"
	StageImputeRemote   = "impute_coords_remote"
)

// Options configures a Pipeline. The zero value runs every local stage with
// the strict tag policy, the default placeholder and a single worker.
type Options struct {
	TagPolicy             period.TagPolicy
	RestrictedPlaceholder string
	SpatialWorkers        int

	// Remote is the optional geocoding fallback. A nil or disabled imputer
	// skips the stage.
	Remote *spatial.RemoteImputer
}

// Pipeline applies the cleaning stages in a fixed order. Each stage receives
// the previous stage's output and returns a new record set.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.TagPolicy == "" {
		opts.TagPolicy = period.TagPolicyStrict
	}
	if opts.RestrictedPlaceholder == "" {
		opts.RestrictedPlaceholder = address.RestrictedPlaceholder
	}
	if opts.SpatialWorkers < 1 {
		opts.SpatialWorkers = 1
	}
	return &Pipeline{opts: opts}
}

// Result is the output of a run.
type Result struct {
	Records   []model.Record
	Reference *timefill.ReferenceTable
	Report    model.Report
}

// Run executes every stage over records. The input slice is not modified.
// Per-row problems become diagnostics; Run only fails when ctx is cancelled
// or the output breaks a record invariant.
func (p *Pipeline) Run(ctx context.Context, records []model.Record) (*Result, error) {
	log := zap.L().With(zap.Int("rows", len(records)))
	log.Info("pipeline: starting")

	diags := NewDiagnostics(zap.L())
	res := &Result{Report: model.Report{InputRows: len(records)}}
	cur := records

	track := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: %s", name)
		}
		start := time.Now()
		err := fn()
		elapsed := time.Since(start)
		res.Report.Stages = append(res.Report.Stages, model.StageTiming{Name: name, Duration: elapsed})
		if err != nil {
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Error(err))
			return eris.Wrapf(err, "pipeline: %s", name)
		}
		log.Debug("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int("rows", len(cur)),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
		return nil
	}

	stages := []struct {
		name string
		fn   func() error
	}{
		{StageNormalizeTags, func() error {
			cur, res.Report.TagsNormalized = period.NormalizeTags(cur, p.opts.TagPolicy)
			return nil
		}},
		{StageResolvePeriods, func() error {
			cur, res.Report.TagsFromTime = period.ApplyTimes(cur)
			return nil
		}},
		{StageImputeTimes, func() error {
			cur, res.Reference, res.Report.TimesImputed = timefill.Impute(cur)
			res.Report.ReferenceEntries = res.Reference.Len()
			return nil
		}},
		{StageReconcile, func() error {
			var notes []model.Diagnostic
			cur, notes = timefill.Reconcile(cur)
			diags.Add(StageReconcile, notes...)
			return nil
		}},
		{StageDropRestricted, func() error {
			cur, res.Report.RestrictedDropped = address.DropRestricted(cur, p.opts.RestrictedPlaceholder)
			return nil
		}},
		{StageNormalizeAddr, func() error {
			cur = address.NormalizeStreets(cur)
			return nil
		}},
		{StageImputeLocal, func() error {
			lr := spatial.ImputeLocal(cur, p.opts.SpatialWorkers)
			cur, res.Report.CoordsImputedLocal = lr.Records, lr.Filled
			diags.Add(StageImputeLocal, lr.Diagnostics...)
			return nil
		}},
		{StageImputeRemote, func() error {
			if !p.opts.Remote.Enabled() {
				return nil
			}
			rr, err := p.opts.Remote.Impute(ctx, cur)
			if err != nil {
				return err
			}
			cur, res.Report.CoordsImputedRemote = rr.Records, rr.Filled
			diags.Add(StageImputeRemote, rr.Diagnostics...)
			return nil
		}},
	}

	for _, s := range stages {
		if err := track(s.name, s.fn); err != nil {
			return nil, err
		}
	}

	if err := Validate(cur); err != nil {
		return nil, eris.Wrap(err, "pipeline: output check")
	}

	res.Records = cur
	res.Report.OutputRows = len(cur)
	for _, r := range cur {
		if r.Time == nil {
			res.Report.Untimed++
		}
		if !r.HasCoordinates() {
			res.Report.CoordsUnresolved++
		}
	}
	res.Report.Diagnostics = diags.Notes()

	log.Info("pipeline: complete",
		zap.Int("output_rows", res.Report.OutputRows),
		zap.Int("times_imputed", res.Report.TimesImputed),
		zap.Int("coords_local", res.Report.CoordsImputedLocal),
		zap.Int("coords_remote", res.Report.CoordsImputedRemote),
		zap.Int("coords_unresolved", res.Report.CoordsUnresolved),
		zap.Int("diagnostics", len(res.Report.Diagnostics)),
	)
	return res, nil
}
