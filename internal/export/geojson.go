package export

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/crimemap-cli/internal/cluster"
	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/spatial"
)

// SRID of every exported point (WGS 84).
const SRID = 4326

// Point is an exportable incident with its cluster label.
type Point struct {
	Record  model.Record
	Cluster string
}

// Points filters records and labels the survivors with c. A nil classifier
// leaves every label empty.
func Points(records []model.Record, c cluster.Classifier, f Filter) ([]Point, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	kept := f.Apply(records)
	labels, err := cluster.Label(c, kept)
	if err != nil {
		return nil, eris.Wrap(err, "export: label clusters")
	}
	points := make([]Point, len(kept))
	for i, r := range kept {
		points[i] = Point{Record: r, Cluster: labels[i]}
	}
	return points, nil
}

// Geometry returns the point as a go-geom Point in lon/lat order.
func (p Point) Geometry() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{*p.Record.Longitude, *p.Record.Latitude}).SetSRID(SRID)
}

// Properties returns the attribute map carried by a GeoJSON feature.
func (p Point) Properties() map[string]any {
	r := p.Record
	props := map[string]any{
		"row":      r.Row,
		"category": r.Category,
		"period":   string(r.PeriodTag),
		"street":   r.Street,
		"weekday":  nil,
		"hour":     nil,
	}
	if r.StreetNumber != nil {
		props["street_number"] = spatial.FormatNumber(r.StreetNumber)
	}
	if r.Time != nil {
		props["time"] = r.Time.String()
		props["hour"] = Hour(r)
	}
	if r.Date != nil {
		props["date"] = r.Date.Format("2006-01-02")
		props["weekday"] = Weekday(r)
		props["weekday_name"] = WeekdayName(Weekday(r))
	}
	if p.Cluster != "" {
		props["cluster"] = p.Cluster
	}
	for k, v := range r.Extra {
		if _, taken := props[k]; !taken {
			props[k] = v
		}
	}
	return props
}

// FeatureCollection builds a GeoJSON collection with a bounding box.
func FeatureCollection(points []Point) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(points))}
	if len(points) == 0 {
		return fc
	}
	bounds := geom.NewBounds(geom.XY)
	for _, p := range points {
		g := p.Geometry()
		bounds.Extend(g)
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.Itoa(p.Record.Row),
			Geometry:   g,
			Properties: p.Properties(),
		})
	}
	fc.BBox = bounds
	return fc
}

// WriteGeoJSON encodes points as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, points []Point) error {
	if err := json.NewEncoder(w).Encode(FeatureCollection(points)); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}
