package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crimemap-cli/internal/dataset"
	"github.com/sells-group/crimemap-cli/internal/export"
)

// filterArgs is the textual form of an export.Filter shared by the export
// flags and the serve query string. Lists are comma separated.
type filterArgs struct {
	Weekdays   string
	HourFrom   string
	HourTo     string
	DateFrom   string
	DateTo     string
	Categories []string
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseHour(name, s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	h, err := strconv.Atoi(s)
	if err != nil {
		return nil, eris.Errorf("%s: %q is not an hour", name, s)
	}
	return &h, nil
}

// build parses args into a filter and adds the configured exclusion list.
func (a filterArgs) build() (export.Filter, error) {
	var f export.Filter
	for _, w := range splitList(a.Weekdays) {
		d, err := export.ParseWeekday(w)
		if err != nil {
			return f, err
		}
		f.Weekdays = append(f.Weekdays, d)
	}

	var err error
	if f.HourFrom, err = parseHour("hour_from", a.HourFrom); err != nil {
		return f, err
	}
	if f.HourTo, err = parseHour("hour_to", a.HourTo); err != nil {
		return f, err
	}

	if s := strings.TrimSpace(a.DateFrom); s != "" {
		if f.DateFrom = dataset.ParseDate(s); f.DateFrom == nil {
			return f, eris.Errorf("date_from: %q is not a date", s)
		}
	}
	if s := strings.TrimSpace(a.DateTo); s != "" {
		if f.DateTo = dataset.ParseDate(s); f.DateTo == nil {
			return f, eris.Errorf("date_to: %q is not a date", s)
		}
	}

	for _, c := range a.Categories {
		f.Categories = append(f.Categories, splitList(c)...)
	}

	if cfg.Export.ExcludeColumn != "" && len(cfg.Export.ExcludeValues) > 0 {
		f.Exclude = map[string][]string{cfg.Export.ExcludeColumn: cfg.Export.ExcludeValues}
	}
	return f, f.Validate()
}
