package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanedIncidents runs the clean flow over the sample bulletin and returns
// the path of the cleaned CSV.
func cleanedIncidents(t *testing.T, dir string) string {
	t.Helper()
	env, err := initClean(context.Background(), false, false)
	require.NoError(t, err)
	defer env.Close()

	dst := filepath.Join(dir, "cleaned.csv")
	_, err = runClean(context.Background(), env, writeBulletin(t, dir), dst, false)
	require.NoError(t, err)
	return dst
}

func TestFilterArgs_Build(t *testing.T) {
	useTestConfig(t)

	f, err := filterArgs{
		Weekdays:   "segunda, 6",
		HourFrom:   "18",
		HourTo:     "23",
		DateFrom:   "01/01/2024",
		DateTo:     "31/01/2024",
		Categories: []string{"ROUBO,FURTO", "LESAO"},
	}.build()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 6}, f.Weekdays)
	require.NotNil(t, f.HourFrom)
	assert.Equal(t, 18, *f.HourFrom)
	assert.Equal(t, 23, *f.HourTo)
	assert.Equal(t, 2024, f.DateFrom.Year())
	assert.Equal(t, 31, f.DateTo.Day())
	assert.Equal(t, []string{"ROUBO", "FURTO", "LESAO"}, f.Categories)
	assert.Equal(t, cfg.Export.ExcludeValues, f.Exclude["TIPO_CRIME"])
}

func TestFilterArgs_BuildErrors(t *testing.T) {
	useTestConfig(t)

	for name, args := range map[string]filterArgs{
		"weekday":    {Weekdays: "feriado"},
		"hour":       {HourFrom: "noite"},
		"hour range": {HourFrom: "20", HourTo: "3"},
		"date":       {DateFrom: "ontem"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := args.build()
			assert.Error(t, err)
		})
	}
}

func TestRunExport_GeoJSON(t *testing.T) {
	dir := useTestConfig(t)
	records, err := loadIncidents(context.Background(), cleanedIncidents(t, dir), "")
	require.NoError(t, err)
	require.Len(t, records, 3)

	modelPath := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(`
name: test
centroids:
  - id: centro
    latitude: -23.55
    longitude: -46.93
`), 0o644))

	out := filepath.Join(dir, "incidents.geojson")
	require.NoError(t, runExport(context.Background(), records, "geojson", out, modelPath, filterArgs{}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Features, 2)
	assert.Equal(t, "centro", doc.Features[0].Properties["cluster"])
	assert.Equal(t, "Centro", doc.Features[1].Properties["BAIRRO"])
}

func TestRunExport_ShapefileWithFilter(t *testing.T) {
	dir := useTestConfig(t)
	records, err := loadIncidents(context.Background(), cleanedIncidents(t, dir), "")
	require.NoError(t, err)

	out := filepath.Join(dir, "layer")
	require.NoError(t, runExport(context.Background(), records, "shp", out, "", filterArgs{Weekdays: "terca"}))

	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		_, err := os.Stat(out + ext)
		assert.NoError(t, err, ext)
	}
}

func TestRunExport_UnknownFormat(t *testing.T) {
	dir := useTestConfig(t)
	err := runExport(context.Background(), nil, "kml", filepath.Join(dir, "x.kml"), "", filterArgs{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestLoadIncidents_FromStore(t *testing.T) {
	dir := useTestConfig(t)

	env, err := initClean(context.Background(), false, true)
	require.NoError(t, err)
	_, err = runClean(context.Background(), env, writeBulletin(t, dir), filepath.Join(dir, "out.csv"), true)
	require.NoError(t, err)
	env.Close()

	records, err := loadIncidents(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
