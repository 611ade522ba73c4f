package spatial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/resilience"
	"github.com/sells-group/crimemap-cli/pkg/geocode"
)

// Locality is the fixed part of every address sent to the geocoder.
type Locality struct {
	City    string
	State   string
	Country string
}

// DefaultLocality is the municipality the source dataset covers.
var DefaultLocality = Locality{City: "Itapevi", State: "SP", Country: "Brasil"}

// RemoteConfig configures the remote imputer.
type RemoteConfig struct {
	Locality Locality
	// Timeout bounds a single geocode call, retries included. A timeout is
	// reported as not found.
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Circuit resilience.CircuitBreakerConfig
}

// RemoteImputer resolves the coordinates left missing by ImputeLocal.
// Throttling is the geocoder's responsibility.
type RemoteImputer struct {
	client  geocode.Client
	cfg     RemoteConfig
	breaker *resilience.CircuitBreaker
}

// NewRemoteImputer creates a RemoteImputer. A nil client yields an imputer
// that is not Enabled.
func NewRemoteImputer(client geocode.Client, cfg RemoteConfig) *RemoteImputer {
	if cfg.Locality == (Locality{}) {
		cfg.Locality = DefaultLocality
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("geocode", "impute")
	}
	if cfg.Circuit.ShouldTrip == nil {
		cfg.Circuit.ShouldTrip = resilience.IsTransient
	}
	return &RemoteImputer{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(cfg.Circuit),
	}
}

// Enabled reports whether a geocoder is configured.
func (ri *RemoteImputer) Enabled() bool {
	return ri != nil && ri.client != nil
}

// RemoteResult is the outcome of RemoteImputer.Impute.
type RemoteResult struct {
	Records     []model.Record
	Filled      int
	Attempted   int
	Diagnostics []model.Diagnostic
}

// Impute geocodes, one at a time, every record still without a valid
// coordinate pair. Identical addresses are looked up once per call. Failures
// are isolated to their row and reported as diagnostics; Impute only returns
// an error when ctx is cancelled.
func (ri *RemoteImputer) Impute(ctx context.Context, records []model.Record) (RemoteResult, error) {
	out := NormalizeCoordinates(records)
	res := RemoteResult{Records: out}
	if !ri.Enabled() {
		return res, nil
	}

	log := zap.L().With(zap.String("stage", "geocode_remote"))
	seen := make(map[string]*geocode.Result)

	for i := range out {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r := &out[i]
		if r.HasCoordinates() {
			continue
		}

		if r.Street == "" {
			res.Diagnostics = append(res.Diagnostics, ri.note(r.Row, "[SKIPPED] no street to geocode"))
			continue
		}
		addr := ri.input(*r)
		oneLine := geocode.FormatOneLine(addr)

		result, cached := seen[oneLine]
		if !cached {
			res.Attempted++
			var err error
			result, err = ri.lookup(ctx, addr)
			switch {
			case ctx.Err() != nil:
				return res, ctx.Err()
			case err != nil:
				log.Warn("geocode failed", zap.Int("row", r.Row), zap.String("address", oneLine), zap.Error(err))
				res.Diagnostics = append(res.Diagnostics, ri.note(r.Row, fmt.Sprintf("[ERROR] %s: %v", oneLine, err)))
				// Permanent failures are remembered so the address is not retried.
				if !resilience.IsTransient(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
					seen[oneLine] = &geocode.Result{Matched: false}
				}
				continue
			case result == nil:
				res.Diagnostics = append(res.Diagnostics, ri.note(r.Row, "[NOT FOUND] timed out: "+oneLine))
				continue
			}
			seen[oneLine] = result
		}

		if !result.Matched {
			res.Diagnostics = append(res.Diagnostics, ri.note(r.Row, "[NOT FOUND] "+oneLine))
			continue
		}
		if result.Latitude == 0 || result.Longitude == 0 {
			res.Diagnostics = append(res.Diagnostics, ri.note(r.Row, "[NOT FOUND] zero coordinates for "+oneLine))
			continue
		}

		r.Latitude, r.Longitude = model.Float(result.Latitude), model.Float(result.Longitude)
		res.Filled++
		log.Debug("geocoded",
			zap.Int("row", r.Row),
			zap.String("address", oneLine),
			zap.Float64("lat", result.Latitude),
			zap.Float64("lon", result.Longitude),
			zap.String("source", result.Source),
		)
		res.Diagnostics = append(res.Diagnostics, model.Diagnostic{
			Row:     r.Row,
			Kind:    model.DiagnosticGeocode,
			Message: fmt.Sprintf("[OK] %s -> %f, %f", oneLine, result.Latitude, result.Longitude),
		})
	}
	return res, nil
}

// lookup runs one geocode call under the per-request timeout, retry policy
// and circuit breaker. A call that runs out of time returns (nil, nil).
func (ri *RemoteImputer) lookup(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, ri.cfg.Timeout)
	defer cancel()

	result, err := resilience.ExecuteVal(callCtx, ri.breaker, func(ctx context.Context) (*geocode.Result, error) {
		return resilience.DoVal(ctx, ri.cfg.Retry, func(ctx context.Context) (*geocode.Result, error) {
			return ri.client.Geocode(ctx, addr)
		})
	})
	if err != nil && ctx.Err() == nil && callCtx.Err() != nil {
		return nil, nil
	}
	if err == nil && result == nil {
		return &geocode.Result{Matched: false}, nil
	}
	return result, err
}

// BreakerState exposes the circuit breaker state for logging.
func (ri *RemoteImputer) BreakerState() resilience.CircuitState {
	return ri.breaker.State()
}

func (ri *RemoteImputer) input(r model.Record) geocode.AddressInput {
	return geocode.AddressInput{
		ID:      fmt.Sprintf("%d", r.Row),
		Street:  r.Street,
		Number:  FormatNumber(r.StreetNumber),
		City:    ri.cfg.Locality.City,
		State:   ri.cfg.Locality.State,
		Country: ri.cfg.Locality.Country,
	}
}

func (ri *RemoteImputer) note(row int, msg string) model.Diagnostic {
	return model.Diagnostic{Row: row, Kind: model.DiagnosticGeocode, Message: msg}
}
