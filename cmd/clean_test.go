package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crimemap-cli/internal/dataset"
	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/store"
)

const bulletinCSV = `NATUREZA_APURADA,DESCR_PERIODO,HORA_OCORRENCIA_BO,DATA_OCORRENCIA_BO,LOGRADOURO,NUMERO_LOGRADOURO,LATITUDE,LONGITUDE,BAIRRO
ROUBO,A NOITE,20:30,15/01/2024,Rua A,10,-23.55,-46.93,Centro
ROUBO,A NOITE,,16/01/2024,Rua A,12,NULL,NULL,Centro
FURTO,PELA MANHA,08:00,20/01/2024,VEDAÇÃO DA DIVULGAÇÃO DOS DADOS RELATIVOS,,,,Centro
FURTO,,,21/01/2024,Rua B,5,,,Cardoso
`

func writeBulletin(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "bulletin.csv")
	require.NoError(t, os.WriteFile(path, []byte(bulletinCSV), 0o644))
	return path
}

func TestRunClean_WritesCleanedTable(t *testing.T) {
	dir := useTestConfig(t)
	src := writeBulletin(t, dir)
	dst := filepath.Join(dir, "cleaned.csv")

	env, err := initClean(context.Background(), false, false)
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Store)
	assert.False(t, env.Remote.Enabled())

	report, err := runClean(context.Background(), env, src, dst, false)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 4, report.InputRows)
	assert.Equal(t, 3, report.OutputRows)
	assert.Equal(t, 1, report.RestrictedDropped)
	assert.Equal(t, 1, report.TimesImputed)
	assert.Equal(t, 1, report.CoordsImputedLocal)
	assert.Equal(t, 1, report.CoordsUnresolved)

	table, err := loadTable(context.Background(), nil, dst)
	require.NoError(t, err)
	require.Len(t, table.Records, 3)
	assert.Equal(t, "BAIRRO", table.Header[len(table.Header)-1])

	imputed := table.Records[1]
	require.NotNil(t, imputed.Time)
	assert.Equal(t, "20:30:00", imputed.Time.String())
	assert.Equal(t, model.PeriodNight, imputed.PeriodTag)
	require.True(t, imputed.HasCoordinates())
	assert.InDelta(t, -23.55, *imputed.Latitude, 1e-9)
	assert.Equal(t, "Centro", imputed.Extra["BAIRRO"])

	untimed := table.Records[2]
	assert.Nil(t, untimed.Time)
	assert.Equal(t, model.PeriodUncertain, untimed.PeriodTag)
	assert.False(t, untimed.HasCoordinates())
}

func TestRunClean_Persist(t *testing.T) {
	dir := useTestConfig(t)
	src := writeBulletin(t, dir)
	dst := filepath.Join(dir, "cleaned.xlsx")

	env, err := initClean(context.Background(), false, true)
	require.NoError(t, err)
	defer env.Close()
	require.NotNil(t, env.Store)

	_, err = runClean(context.Background(), env, src, dst, true)
	require.NoError(t, err)

	run, err := env.Store.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, src, run.Source)
	require.NotNil(t, run.Report)
	assert.Equal(t, 3, run.Report.OutputRows)

	records, err := env.Store.ListIncidents(context.Background(), store.IncidentFilter{RunID: run.ID})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = os.Stat(dst)
	assert.NoError(t, err)
}

func TestRunClean_MissingColumn(t *testing.T) {
	dir := useTestConfig(t)
	src := filepath.Join(dir, "broken.csv")
	require.NoError(t, os.WriteFile(src, []byte("NATUREZA_APURADA,LOGRADOURO\nROUBO,Rua A\n"), 0o644))

	env, err := initClean(context.Background(), false, false)
	require.NoError(t, err)
	defer env.Close()

	report, err := runClean(context.Background(), env, src, filepath.Join(dir, "out.csv"), false)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, dataset.ErrMissingColumn)
}

func TestRunClean_CancelledLeavesNoCompleteRun(t *testing.T) {
	dir := useTestConfig(t)
	src := writeBulletin(t, dir)

	env, err := initClean(context.Background(), false, true)
	require.NoError(t, err)
	defer env.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runClean(ctx, env, src, filepath.Join(dir, "out.csv"), true)
	require.Error(t, err)

	run, err := env.Store.LatestRun(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, run)
}

func TestInitClean_GeocodeUsesStoreCache(t *testing.T) {
	useTestConfig(t)
	cfg.Geocode.NominatimURL = "http://127.0.0.1:1/search"

	env, err := initClean(context.Background(), true, false)
	require.NoError(t, err)
	defer env.Close()

	assert.True(t, env.Remote.Enabled())
	assert.NotNil(t, env.Store, "geocode cache opens the store")
}

func TestInitClean_InvalidConfig(t *testing.T) {
	useTestConfig(t)
	cfg.Pipeline.TagPolicy = "lenient"

	_, err := initClean(context.Background(), false, false)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "lenient"))
}
