package spatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// SRID is the spatial reference of every incident coordinate (WGS 84).
const SRID = 4326

// EncodeEWKB returns the record's location as an EWKB point with SRID 4326.
// Records without a valid coordinate pair yield nil, nil.
func EncodeEWKB(r model.Record) ([]byte, error) {
	if !r.HasCoordinates() {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{*r.Longitude, *r.Latitude}).SetSRID(SRID)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: encode EWKB for row %d", r.Row)
	}
	return data, nil
}
