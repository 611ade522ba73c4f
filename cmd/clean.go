package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap-cli/internal/dataset"
	"github.com/sells-group/crimemap-cli/internal/fetcher"
	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/pipeline"
)

var (
	cleanInput   string
	cleanOutput  string
	cleanGeocode bool
	cleanPersist bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean a bulletin spreadsheet and write the result",
	Long: "Reads an XLSX/CSV export (local path or URL), normalizes period tags, imputes missing times and coordinates, " +
		"drops restricted-disclosure rows and writes the cleaned table. Prints a run report to stdout.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initClean(ctx, cleanGeocode, cleanPersist)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := runClean(ctx, env, cleanInput, cleanOutput, cleanPersist)
		if report != nil {
			fmt.Fprint(cmd.OutOrStdout(), pipeline.FormatReport(cleanInput, *report))
		}
		return err
	},
}

// runClean reads src, runs the pipeline and writes dst. With persist, the run
// and its incidents are recorded in env.Store. The report is returned even
// when the run fails after the pipeline completed.
func runClean(ctx context.Context, env *cleanEnv, src, dst string, persist bool) (*model.Report, error) {
	table, err := loadTable(ctx, env.Fetcher, src)
	if err != nil {
		return nil, err
	}

	var run *model.Run
	if persist {
		if env.Store == nil {
			return nil, eris.New("clean: persist requested without a store")
		}
		run, err = env.Store.CreateRun(ctx, src)
		if err != nil {
			return nil, eris.Wrap(err, "clean: create run")
		}
	}

	result, err := env.Pipeline.Run(ctx, table.Records)
	if err != nil {
		if run != nil {
			if cerr := env.Store.CompleteRun(ctx, run.ID, nil, err); cerr != nil {
				zap.L().Error("clean: record failed run", zap.String("run_id", run.ID), zap.Error(cerr))
			}
		}
		return nil, eris.Wrap(err, "clean: run pipeline")
	}
	report := result.Report

	out := dataset.Encode(&dataset.Table{Header: table.Header, Records: result.Records}, cfg.Dataset.Columns)
	if err := fetcher.WriteTable(dst, out, tableOptions()); err != nil {
		if run != nil {
			_ = env.Store.CompleteRun(ctx, run.ID, &report, err)
		}
		return &report, eris.Wrapf(err, "clean: write %s", dst)
	}

	if run != nil {
		n, err := env.Store.SaveIncidents(ctx, run.ID, result.Records)
		if err != nil {
			_ = env.Store.CompleteRun(ctx, run.ID, &report, err)
			return &report, eris.Wrap(err, "clean: save incidents")
		}
		if err := env.Store.CompleteRun(ctx, run.ID, &report, nil); err != nil {
			return &report, eris.Wrap(err, "clean: complete run")
		}
		zap.L().Info("clean: run persisted", zap.String("run_id", run.ID), zap.Int64("incidents", n))
	}

	zap.L().Info("clean: complete",
		zap.String("input", src),
		zap.String("output", dst),
		zap.Int("input_rows", report.InputRows),
		zap.Int("output_rows", report.OutputRows),
		zap.Int("coords_unresolved", report.CoordsUnresolved),
	)
	return &report, nil
}

func init() {
	cleanCmd.Flags().StringVar(&cleanInput, "input", "", "source spreadsheet: .xlsx/.csv path or URL (required)")
	cleanCmd.Flags().StringVar(&cleanOutput, "output", "", "cleaned output: .xlsx or .csv path (required)")
	cleanCmd.Flags().BoolVar(&cleanGeocode, "geocode", false, "resolve remaining coordinates with the remote geocoder")
	cleanCmd.Flags().BoolVar(&cleanPersist, "persist", false, "record the run and cleaned incidents in the store")
	_ = cleanCmd.MarkFlagRequired("input")
	_ = cleanCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(cleanCmd)
}
