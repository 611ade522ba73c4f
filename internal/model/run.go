package model

import "time"

// RunStatus represents the current state of a cleaning run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of the cleaning pipeline over a source dataset.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Report    *Report   `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Report summarises what each stage did to the record set.
type Report struct {
	InputRows           int           `json:"input_rows"`
	OutputRows          int           `json:"output_rows"`
	TagsNormalized      int           `json:"tags_normalized"`
	TagsFromTime        int           `json:"tags_from_time"`
	ReferenceEntries    int           `json:"reference_entries"`
	TimesImputed        int           `json:"times_imputed"`
	Untimed             int           `json:"untimed"`
	RestrictedDropped   int           `json:"restricted_dropped"`
	CoordsImputedLocal  int           `json:"coords_imputed_local"`
	CoordsImputedRemote int           `json:"coords_imputed_remote"`
	CoordsUnresolved    int           `json:"coords_unresolved"`
	Stages              []StageTiming `json:"stages"`
	Diagnostics         []Diagnostic  `json:"diagnostics,omitempty"`
}

// StageTiming records how long a stage took.
type StageTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// DiagnosticKind groups diagnostics by the field that could not be resolved.
type DiagnosticKind string

const (
	DiagnosticTime     DiagnosticKind = "time"
	DiagnosticTag      DiagnosticKind = "tag"
	DiagnosticLocation DiagnosticKind = "location"
	DiagnosticGeocode  DiagnosticKind = "geocode"
)

// Diagnostic is a human-readable note about a row. It never carries data.
type Diagnostic struct {
	Row     int            `json:"row"`
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
}
