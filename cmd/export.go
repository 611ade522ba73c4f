package main

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap-cli/internal/export"
	"github.com/sells-group/crimemap-cli/internal/model"
)

var (
	exportInput   string
	exportRunID   string
	exportFormat  string
	exportOutput  string
	exportModel   string
	exportFilters filterArgs
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cleaned incidents as a GeoJSON or shapefile map layer",
	Long: "Reads a cleaned file (or the latest persisted run), keeps rows with valid coordinates that match the filters, " +
		"labels them with the cluster model and writes a GeoJSON FeatureCollection or a POINT shapefile.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		records, err := loadIncidents(ctx, exportInput, exportRunID)
		if err != nil {
			return err
		}
		return runExport(ctx, records, exportFormat, exportOutput, exportModel, exportFilters)
	},
}

func runExport(_ context.Context, records []model.Record, format, output, modelPath string, args filterArgs) error {
	filter, err := args.build()
	if err != nil {
		return eris.Wrap(err, "export: filter")
	}
	classifier, err := loadClassifier(modelPath)
	if err != nil {
		return err
	}
	points, err := export.Points(records, classifier, filter)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "geojson", "json":
		f, err := os.Create(output)
		if err != nil {
			return eris.Wrapf(err, "export: create %s", output)
		}
		if err := export.WriteGeoJSON(f, points); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "export: close %s", output)
		}
	case "shp", "shapefile":
		if output, err = export.WriteShapefile(output, points); err != nil {
			return err
		}
	default:
		return eris.Errorf("export: unknown format %q (want geojson or shp)", format)
	}

	zap.L().Info("export complete",
		zap.String("format", format),
		zap.String("output", output),
		zap.Int("records", len(records)),
		zap.Int("points", len(points)),
	)
	return nil
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportInput, "input", "", "cleaned .xlsx/.csv file (default: latest persisted run)")
	f.StringVar(&exportRunID, "run", "", "persisted run id to export when --input is not set")
	f.StringVar(&exportFormat, "format", "geojson", "output format: geojson or shp")
	f.StringVar(&exportOutput, "output", "", "output path (required)")
	f.StringVar(&exportModel, "model", "", "cluster centroid model (YAML); default from config")
	f.StringVar(&exportFilters.Weekdays, "weekday", "", "weekdays to keep, e.g. 0,6 or segunda,sabado")
	f.StringVar(&exportFilters.HourFrom, "hour-from", "", "first hour to keep (0-23)")
	f.StringVar(&exportFilters.HourTo, "hour-to", "", "last hour to keep (0-23)")
	f.StringVar(&exportFilters.DateFrom, "date-from", "", "first occurrence date to keep (dd/mm/yyyy)")
	f.StringVar(&exportFilters.DateTo, "date-to", "", "last occurrence date to keep (dd/mm/yyyy)")
	f.StringSliceVar(&exportFilters.Categories, "category", nil, "categories to keep")
	_ = exportCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(exportCmd)
}
