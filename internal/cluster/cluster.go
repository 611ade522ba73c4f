// Package cluster assigns incidents to hot-spot clusters using a model
// trained elsewhere.
package cluster

import (
	"math"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// Classifier labels a coordinate with a cluster id.
type Classifier interface {
	Predict(lat, lon float64) (string, error)
}

// Centroid is one cluster centre in (latitude, longitude) space.
type Centroid struct {
	ID        string  `yaml:"id"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// CentroidModel is a nearest-centroid classifier, the prediction rule of a
// fitted k-means model.
type CentroidModel struct {
	Name      string     `yaml:"name"`
	Centroids []Centroid `yaml:"centroids"`
}

// NewCentroidModel validates centroids and builds a model. Empty ids default
// to the centroid's position.
func NewCentroidModel(name string, centroids []Centroid) (*CentroidModel, error) {
	if len(centroids) == 0 {
		return nil, eris.New("cluster: model has no centroids")
	}
	cs := make([]Centroid, len(centroids))
	copy(cs, centroids)
	for i := range cs {
		if cs[i].ID == "" {
			cs[i].ID = strconv.Itoa(i)
		}
		if math.IsNaN(cs[i].Latitude) || math.IsNaN(cs[i].Longitude) {
			return nil, eris.Errorf("cluster: centroid %s has NaN coordinates", cs[i].ID)
		}
	}
	return &CentroidModel{Name: name, Centroids: cs}, nil
}

// LoadModel reads a YAML centroid model from path.
func LoadModel(path string) (*CentroidModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cluster: read model %s", path)
	}
	var m CentroidModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "cluster: parse model %s", path)
	}
	return NewCentroidModel(m.Name, m.Centroids)
}

// Predict returns the id of the closest centroid by squared Euclidean
// distance. Ties go to the earlier centroid.
func (m *CentroidModel) Predict(lat, lon float64) (string, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return "", eris.New("cluster: NaN coordinate")
	}
	best, bestDist := -1, math.Inf(1)
	for i, c := range m.Centroids {
		dLat, dLon := lat-c.Latitude, lon-c.Longitude
		if d := dLat*dLat + dLon*dLon; d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return "", eris.New("cluster: model has no centroids")
	}
	return m.Centroids[best].ID, nil
}

// Label predicts a cluster for every record with valid coordinates. The
// result is parallel to records; records without coordinates get "".
func Label(c Classifier, records []model.Record) ([]string, error) {
	labels := make([]string, len(records))
	if c == nil {
		return labels, nil
	}
	for i, r := range records {
		if !r.HasCoordinates() {
			continue
		}
		id, err := c.Predict(*r.Latitude, *r.Longitude)
		if err != nil {
			return nil, eris.Wrapf(err, "cluster: row %d", r.Row)
		}
		labels[i] = id
	}
	return labels, nil
}
