package pipeline

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// Diagnostics collects the notes stages emit about individual rows and logs
// each one as it arrives.
type Diagnostics struct {
	log   *zap.Logger
	notes []model.Diagnostic
}

// NewDiagnostics creates a sink that logs through log. A nil logger disables
// logging.
func NewDiagnostics(log *zap.Logger) *Diagnostics {
	if log == nil {
		log = zap.NewNop()
	}
	return &Diagnostics{log: log.Named("diagnostics")}
}

// Add records notes produced by stage.
func (d *Diagnostics) Add(stage string, notes ...model.Diagnostic) {
	for _, n := range notes {
		fields := []zap.Field{
			zap.String("stage", stage),
			zap.Int("row", n.Row),
			zap.String("kind", string(n.Kind)),
		}
		if strings.HasPrefix(n.Message, "[ERROR]") {
			d.log.Warn(n.Message, fields...)
		} else {
			d.log.Info(n.Message, fields...)
		}
		d.notes = append(d.notes, n)
	}
}

// Notes returns the collected notes in arrival order.
func (d *Diagnostics) Notes() []model.Diagnostic {
	return d.notes
}

func countByKind(notes []model.Diagnostic) map[model.DiagnosticKind]int {
	counts := make(map[model.DiagnosticKind]int)
	for _, n := range notes {
		counts[n.Kind]++
	}
	return counts
}
