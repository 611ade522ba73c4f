package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap-cli/internal/cluster"
	"github.com/sells-group/crimemap-cli/internal/export"
	"github.com/sells-group/crimemap-cli/internal/model"
)

var (
	servePort  int
	serveInput string
	serveRunID string
	serveModel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cleaned incidents as GeoJSON for the map dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		records, err := loadIncidents(ctx, serveInput, serveRunID)
		if err != nil {
			return err
		}
		classifier, err := loadClassifier(serveModel)
		if err != nil {
			return err
		}

		router := buildRouter(newIncidentHandler(records, classifier), cfg.Server.CorsOrigins)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

// incidentHandler answers map queries over an in-memory incident set.
type incidentHandler struct {
	records    []model.Record
	classifier cluster.Classifier
	categories []string
}

func newIncidentHandler(records []model.Record, c cluster.Classifier) *incidentHandler {
	var cats []string
	for _, r := range records {
		if r.Category != "" && !slices.Contains(cats, r.Category) {
			cats = append(cats, r.Category)
		}
	}
	slices.Sort(cats)
	return &incidentHandler{records: records, classifier: c, categories: cats}
}

// Incidents returns the filtered incidents as a GeoJSON FeatureCollection.
// Query: weekday, hour_from, hour_to, date_from, date_to, category (repeatable).
func (h *incidentHandler) Incidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := filterArgs{
		Weekdays:   q.Get("weekday"),
		HourFrom:   q.Get("hour_from"),
		HourTo:     q.Get("hour_to"),
		DateFrom:   q.Get("date_from"),
		DateTo:     q.Get("date_to"),
		Categories: q["category"],
	}.build()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := export.Points(h.records, h.classifier, filter)
	if err != nil {
		zap.L().Error("serve: build points", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to build incidents")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := export.WriteGeoJSON(w, points); err != nil {
		zap.L().Warn("serve: write geojson", zap.Error(err))
	}
}

// Meta describes the dataset so the dashboard can build its controls.
func (h *incidentHandler) Meta(w http.ResponseWriter, _ *http.Request) {
	weekdays := make([]string, 7)
	for i := range weekdays {
		weekdays[i] = export.WeekdayName(i)
	}
	located := 0
	for _, r := range h.records {
		if r.HasCoordinates() {
			located++
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"center":     export.DefaultCenter,
		"total":      len(h.records),
		"located":    located,
		"categories": h.categories,
		"periods":    model.Periods,
		"weekdays":   weekdays,
		"clustered":  h.classifier != nil,
	})
}

// buildRouter mounts the API routes behind the shared middleware stack.
func buildRouter(h *incidentHandler, origins []string) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Route("/api", func(r chi.Router) {
		r.Get("/meta", h.Meta)
		r.Get("/incidents", h.Incidents)
	})
	return router
}

// requestLogger logs each request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveInput, "input", "", "cleaned .xlsx/.csv file (default: latest persisted run)")
	serveCmd.Flags().StringVar(&serveRunID, "run", "", "persisted run id to serve when --input is not set")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "cluster centroid model (YAML); default from config")
	rootCmd.AddCommand(serveCmd)
}
