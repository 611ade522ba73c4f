package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/period"
)

var incidentColumns = []string{
	"run_id", "row_num", "category", "period", "occurrence_time", "occurrence_date",
	"street", "street_number", "latitude", "longitude", "extra", "geom",
}

const incidentSelect = `SELECT row_num, category, period, occurrence_time, occurrence_date,
	street, street_number, latitude, longitude, extra FROM incidents`

func timeText(t *model.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}

func parseTimeText(s *string) *model.TimeOfDay {
	if s == nil {
		return nil
	}
	tod, ok := period.ParseTimeOfDay(*s)
	if !ok {
		return nil
	}
	return &tod
}

func encodeExtra(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", eris.Wrap(err, "marshal extra")
	}
	return string(b), nil
}

func decodeExtra(s *string) (map[string]string, error) {
	if s == nil || *s == "" || *s == "{}" {
		return nil, nil
	}
	var extra map[string]string
	if err := json.Unmarshal([]byte(*s), &extra); err != nil {
		return nil, eris.Wrap(err, "unmarshal extra")
	}
	return extra, nil
}
