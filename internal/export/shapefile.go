package export

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap-cli/internal/spatial"
)

// wgs84PRJ is the ESRI projection file for EPSG:4326.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// DBF attribute layout. Names are capped at 10 characters by the format.
const (
	fieldRow = iota
	fieldCategory
	fieldPeriod
	fieldTime
	fieldDate
	fieldWeekday
	fieldHour
	fieldStreet
	fieldNumber
	fieldCluster
)

var shapeFields = []shp.Field{
	shp.NumberField("ROW", 10),
	shp.StringField("CATEGORY", 120),
	shp.StringField("PERIOD", 20),
	shp.StringField("TIME", 8),
	shp.DateField("DATE"),
	shp.NumberField("WEEKDAY", 2),
	shp.NumberField("HOUR", 2),
	shp.StringField("STREET", 120),
	shp.StringField("NUMBER", 12),
	shp.StringField("CLUSTER", 20),
}

// ShapefilePath normalizes path to end in ".shp"; the sidecar files share
// its base name.
func ShapefilePath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return path[:len(path)-4] + ".shp"
	}
	return path + ".shp"
}

// WriteShapefile writes points as a POINT shapefile (.shp, .shx, .dbf) plus
// .prj and .cpg sidecars. It returns the .shp path actually written.
func WriteShapefile(path string, points []Point) (string, error) {
	path = ShapefilePath(path)
	base := strings.TrimSuffix(path, ".shp")

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return "", eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	w.SetFields(shapeFields)

	for i, p := range points {
		r := p.Record
		w.Write(&shp.Point{X: *r.Longitude, Y: *r.Latitude})

		attrs := map[int]any{
			fieldRow:      r.Row,
			fieldCategory: truncate(r.Category, 120),
			fieldPeriod:   truncate(string(r.PeriodTag), 20),
			fieldStreet:   truncate(r.Street, 120),
			fieldNumber:   truncate(spatial.FormatNumber(r.StreetNumber), 12),
			fieldCluster:  truncate(p.Cluster, 20),
		}
		if r.Time != nil {
			attrs[fieldTime] = r.Time.String()
			attrs[fieldHour] = Hour(r)
		}
		if r.Date != nil {
			attrs[fieldDate] = r.Date.Format("20060102")
			attrs[fieldWeekday] = Weekday(r)
		}
		for field, value := range attrs {
			if err := w.WriteAttribute(i, field, value); err != nil {
				return "", eris.Wrapf(err, "export: write attribute %s for row %d", shapeFields[field].String(), r.Row)
			}
		}
	}

	if err := os.WriteFile(base+".prj", []byte(wgs84PRJ), 0o644); err != nil {
		return "", eris.Wrap(err, "export: write prj")
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return "", eris.Wrap(err, "export: write cpg")
	}

	zap.L().Info("export: shapefile written",
		zap.String("path", path),
		zap.Int("points", len(points)),
	)
	return path, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
