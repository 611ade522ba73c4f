package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crimemap-cli/internal/cluster"
	"github.com/sells-group/crimemap-cli/internal/model"
)

func testDate(s string) *time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return &d
}

func serveFixture() []model.Record {
	return []model.Record{
		{Row: 1, Category: "ROUBO", PeriodTag: model.PeriodNight, Time: model.Clock(20 * 3600),
			Date: testDate("2024-01-15"), Street: "Rua A", Latitude: model.Float(-23.55), Longitude: model.Float(-46.93)},
		{Row: 2, Category: "FURTO", PeriodTag: model.PeriodMorning, Time: model.Clock(9 * 3600),
			Date: testDate("2024-01-16"), Street: "Rua B", Latitude: model.Float(-23.53), Longitude: model.Float(-46.91)},
		{Row: 3, Category: "FURTO", PeriodTag: model.PeriodUncertain, Street: "Rua C"},
	}
}

func newTestServer(t *testing.T, c cluster.Classifier) *httptest.Server {
	t.Helper()
	useTestConfig(t)
	srv := httptest.NewServer(buildRouter(newIncidentHandler(serveFixture(), c), nil))
	t.Cleanup(srv.Close)
	return srv
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func getCollection(t *testing.T, url string) featureCollection {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc featureCollection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	return fc
}

func TestServe_Health(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_IncidentsAll(t *testing.T) {
	srv := newTestServer(t, nil)

	fc := getCollection(t, srv.URL+"/api/incidents")
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "1", fc.Features[0].ID)
	assert.Equal(t, "2", fc.Features[1].ID)
}

func TestServe_IncidentsFiltered(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		query string
		want  []string
	}{
		{"weekday=segunda", []string{"1"}},
		{"weekday=0,1", []string{"1", "2"}},
		{"hour_from=18&hour_to=23", []string{"1"}},
		{"category=FURTO", []string{"2"}},
		{"category=FURTO&category=ROUBO", []string{"1", "2"}},
		{"date_from=16/01/2024", []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			fc := getCollection(t, srv.URL+"/api/incidents?"+tt.query)
			var ids []string
			for _, f := range fc.Features {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestServe_IncidentsBadQuery(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, q := range []string{"weekday=feriado", "hour_from=25", "hour_from=x", "date_to=amanha"} {
		resp, err := http.Get(srv.URL + "/api/incidents?" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestServe_IncidentsClustered(t *testing.T) {
	m, err := cluster.NewCentroidModel("t", []cluster.Centroid{{ID: "hot", Latitude: -23.55, Longitude: -46.93}})
	require.NoError(t, err)
	srv := newTestServer(t, m)

	fc := getCollection(t, srv.URL+"/api/incidents")
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "hot", fc.Features[0].Properties["cluster"])
}

func TestServe_Meta(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/meta")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var meta struct {
		Center     []float64 `json:"center"`
		Total      int       `json:"total"`
		Located    int       `json:"located"`
		Categories []string  `json:"categories"`
		Weekdays   []string  `json:"weekdays"`
		Clustered  bool      `json:"clustered"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.InDelta(t, -23.5506508472123, meta.Center[0], 1e-12)
	assert.Equal(t, 3, meta.Total)
	assert.Equal(t, 2, meta.Located)
	assert.Equal(t, []string{"FURTO", "ROUBO"}, meta.Categories)
	assert.Equal(t, "Segunda", meta.Weekdays[0])
	assert.False(t, meta.Clustered)
}

func TestServe_CORS(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/meta", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
	assert.Equal(t, 0, resolvePort(0, 0))
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	useTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	router := buildRouter(newIncidentHandler(nil, nil), nil)

	// Find a free port.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, router, port)
	}()

	// Wait for server to be ready.
	var ready bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	// Trigger graceful shutdown.
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
