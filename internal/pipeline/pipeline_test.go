package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/crimemap-cli/internal/address"
	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/period"
	"github.com/sells-group/crimemap-cli/internal/resilience"
	"github.com/sells-group/crimemap-cli/internal/spatial"
	"github.com/sells-group/crimemap-cli/pkg/geocode"
)

func clock(t *testing.T, h, m, s int) *model.TimeOfDay {
	t.Helper()
	tod, err := model.NewTimeOfDay(h, m, s)
	require.NoError(t, err)
	return &tod
}

func sampleRecords(t *testing.T) []model.Record {
	return []model.Record{
		{Row: 1, Category: "Furto", PeriodTag: "a noite", Time: clock(t, 20, 0, 0), Street: "  rua a ", StreetNumber: model.Float(10), Latitude: model.Float(-23.1), Longitude: model.Float(-46.1)},
		{Row: 2, Category: "Furto", PeriodTag: "A NOITE", Street: "RUA A", StreetNumber: model.Float(12)},
		{Row: 3, Category: "Roubo", PeriodTag: "", Street: address.RestrictedPlaceholder},
		{Row: 4, Category: "Roubo", PeriodTag: "DE TARDE", Time: clock(t, 9, 30, 0), Street: "Rua B", Latitude: model.Float(0), Longitude: model.Float(-46)},
		{Row: 5, Category: "Roubo", PeriodTag: "xyz"},
	}
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	in := sampleRecords(t)
	res, err := New(Options{SpatialWorkers: 2}).Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Records, 4)
	byRow := make(map[int]model.Record)
	for _, r := range res.Records {
		byRow[r.Row] = r
	}
	assert.NotContains(t, byRow, 3)

	assert.Equal(t, model.PeriodNight, byRow[1].PeriodTag)
	assert.Equal(t, "Rua A", byRow[1].Street)

	r2 := byRow[2]
	require.NotNil(t, r2.Time)
	assert.Equal(t, "20:00:00", r2.Time.String())
	assert.Equal(t, model.PeriodNight, r2.PeriodTag)
	assert.Equal(t, "Rua A", r2.Street)
	require.True(t, r2.HasCoordinates())
	assert.Equal(t, -23.1, *r2.Latitude)
	assert.Equal(t, -46.1, *r2.Longitude)

	assert.Equal(t, model.PeriodMorning, byRow[4].PeriodTag)
	assert.Nil(t, byRow[4].Latitude)
	assert.Nil(t, byRow[4].Longitude)

	assert.Equal(t, model.PeriodUncertain, byRow[5].PeriodTag)
	assert.Nil(t, byRow[5].Time)

	rep := res.Report
	assert.Equal(t, 5, rep.InputRows)
	assert.Equal(t, 4, rep.OutputRows)
	assert.Equal(t, 5, rep.TagsNormalized)
	assert.Equal(t, 1, rep.TagsFromTime)
	assert.Equal(t, 2, rep.ReferenceEntries)
	assert.Equal(t, 1, rep.TimesImputed)
	assert.Equal(t, 1, rep.Untimed)
	assert.Equal(t, 1, rep.RestrictedDropped)
	assert.Equal(t, 1, rep.CoordsImputedLocal)
	assert.Equal(t, 0, rep.CoordsImputedRemote)
	assert.Equal(t, 2, rep.CoordsUnresolved)
	assert.Len(t, rep.Stages, 8)
	assert.Equal(t, StageNormalizeTags, rep.Stages[0].Name)
	assert.Equal(t, StageImputeRemote, rep.Stages[7].Name)

	assert.Equal(t, map[model.DiagnosticKind]int{
		model.DiagnosticTime:     2,
		model.DiagnosticLocation: 2,
	}, countByKind(rep.Diagnostics))

	tod, ok := res.Reference.Lookup("Roubo", model.PeriodMorning)
	require.True(t, ok)
	assert.Equal(t, "09:30:00", tod.String())
}

func TestPipeline_Run_DoesNotModifyInput(t *testing.T) {
	in := sampleRecords(t)
	before := model.CloneRecords(in)

	_, err := New(Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, before, in)
}

func TestPipeline_Run_OutputInvariants(t *testing.T) {
	res, err := New(Options{TagPolicy: period.TagPolicyPassthrough}).Run(context.Background(), sampleRecords(t))
	require.NoError(t, err)

	for _, r := range res.Records {
		assert.True(t, r.PeriodTag.Canonical(), "row %d", r.Row)
		if p, ok := period.Resolve(r.Time); ok {
			assert.Equal(t, p, r.PeriodTag, "row %d", r.Row)
		}
		assert.Equal(t, r.Latitude == nil, r.Longitude == nil, "row %d", r.Row)
	}
	assert.NoError(t, Validate(res.Records))
}

func TestPipeline_Run_PassthroughUnknownTagEndsUncertain(t *testing.T) {
	in := []model.Record{
		{Row: 1, Category: "Furto", PeriodTag: "Ao Entardecer"},
	}
	res, err := New(Options{TagPolicy: period.TagPolicyPassthrough}).Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, model.PeriodUncertain, res.Records[0].PeriodTag)
	assert.Equal(t, 1, countByKind(res.Report.Diagnostics)[model.DiagnosticTag])
}

func TestPipeline_Run_IsRepeatable(t *testing.T) {
	p := New(Options{SpatialWorkers: 3})
	first, err := p.Run(context.Background(), sampleRecords(t))
	require.NoError(t, err)

	second, err := p.Run(context.Background(), first.Records)
	require.NoError(t, err)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, 0, second.Report.TimesImputed)
	assert.Equal(t, 0, second.Report.CoordsImputedLocal)
}

type stubGeocoder struct {
	result *geocode.Result
	calls  int
}

func (s *stubGeocoder) Geocode(_ context.Context, _ geocode.AddressInput) (*geocode.Result, error) {
	s.calls++
	return s.result, nil
}

func TestPipeline_Run_RemoteResolvesResidual(t *testing.T) {
	stub := &stubGeocoder{result: &geocode.Result{Matched: true, Latitude: -23.5, Longitude: -46.8}}
	remote := spatial.NewRemoteImputer(stub, spatial.RemoteConfig{
		Timeout: time.Second,
		Retry:   resilience.RetryConfig{MaxAttempts: 1},
	})

	res, err := New(Options{Remote: remote}).Run(context.Background(), sampleRecords(t))
	require.NoError(t, err)

	// Row 4 has a street but no donor; row 5 has no street at all.
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, 1, res.Report.CoordsImputedRemote)
	assert.Equal(t, 1, res.Report.CoordsUnresolved)
	assert.Equal(t, 2, countByKind(res.Report.Diagnostics)[model.DiagnosticGeocode])
}

func TestPipeline_Run_DisabledRemoteIsSkipped(t *testing.T) {
	remote := spatial.NewRemoteImputer(nil, spatial.RemoteConfig{})
	res, err := New(Options{Remote: remote}).Run(context.Background(), sampleRecords(t))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Report.CoordsImputedRemote)
	assert.Zero(t, countByKind(res.Report.Diagnostics)[model.DiagnosticGeocode])
}

func TestPipeline_Run_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Run(ctx, sampleRecords(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Run_LogsDiagnostics(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	_, err := New(Options{}).Run(context.Background(), sampleRecords(t))
	require.NoError(t, err)

	diag := logs.Filter(func(e observer.LoggedEntry) bool { return e.LoggerName == "diagnostics" })
	assert.Equal(t, 4, diag.Len())
	assert.Equal(t, 2, diag.FilterField(zap.String("stage", StageImputeLocal)).Len())
	assert.Equal(t, 1, logs.FilterMessage("pipeline: complete").Len())
}

func TestValidate(t *testing.T) {
	night := clock(t, 21, 0, 0)
	tests := []struct {
		name    string
		rec     model.Record
		wantErr bool
	}{
		{"ok untimed", model.Record{Row: 1, PeriodTag: model.PeriodUncertain}, false},
		{"ok timed", model.Record{Row: 1, PeriodTag: model.PeriodNight, Time: night}, false},
		{"raw tag", model.Record{Row: 1, PeriodTag: "A NOITE"}, true},
		{"tag disagrees", model.Record{Row: 1, PeriodTag: model.PeriodMorning, Time: night}, true},
		{"partial pair", model.Record{Row: 1, PeriodTag: model.PeriodUncertain, Latitude: model.Float(-23)}, true},
		{"zero pair", model.Record{Row: 1, PeriodTag: model.PeriodUncertain, Latitude: model.Float(0), Longitude: model.Float(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]model.Record{tt.rec})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatReport(t *testing.T) {
	out := FormatReport("ocorrencias.xlsx", model.Report{
		InputRows:         10,
		OutputRows:        9,
		RestrictedDropped: 1,
		TimesImputed:      3,
		Stages:            []model.StageTiming{{Name: StageReconcile, Duration: 2 * time.Millisecond}},
		Diagnostics: []model.Diagnostic{
			{Row: 1, Kind: model.DiagnosticTime},
			{Row: 2, Kind: model.DiagnosticTime},
			{Row: 2, Kind: model.DiagnosticLocation},
		},
	})

	assert.Contains(t, out, "# Cleaning Report: ocorrencias.xlsx")
	assert.Contains(t, out, "- Dropped (restricted disclosure): 1")
	assert.Contains(t, out, "- Times imputed: 3")
	assert.Contains(t, out, "- reconcile (2ms)")
	assert.Contains(t, out, "- location: 1\n- time: 2\n")
}

func TestFormatReport_NoDiagnostics(t *testing.T) {
	out := FormatReport("x.csv", model.Report{})
	assert.Contains(t, out, "## Diagnostics\nNone.\n")
}
