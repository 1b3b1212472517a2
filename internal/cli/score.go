package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/logaware/backend/internal/config"
	"github.com/logaware/backend/internal/detector"
	"github.com/logaware/backend/internal/export"
	"github.com/logaware/backend/internal/models"
	"github.com/logaware/backend/internal/services"
)

type scoreOptions struct {
	policy        string
	contamination string
	out           string
	anomaliesOnly bool
}

func newScoreCmd(a *app) *cobra.Command {
	opts := scoreOptions{
		policy:        string(a.cfg.Policy),
		contamination: a.cfg.Detector.Contamination.String(),
	}
	cfg := a.cfg

	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Score an access log and write the result as CSV",
		Long:  "Score reads FILE (or - for stdin; .gz files are decompressed), runs both engines, prints a summary to stderr and writes the rows as CSV.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfgErr != nil {
				return a.cfgErr
			}
			policy, err := models.ParsePolicy(opts.policy)
			if err != nil {
				return err
			}
			cfg.Policy = policy
			if cfg.Detector.Contamination, err = detector.ParseContamination(opts.contamination); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runScore(cmd, a, cfg, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.policy, "policy", opts.policy, "consolidation policy: union, intersection, density or isolation")
	f.IntVar(&cfg.Detector.Neighbors, "neighbors", cfg.Detector.Neighbors, "neighbours per record for the density engine")
	f.IntVar(&cfg.Detector.Trees, "trees", cfg.Detector.Trees, "number of isolation trees")
	f.IntVar(&cfg.Detector.SampleSize, "sample-size", cfg.Detector.SampleSize, "records per isolation tree (0 = min(256, n))")
	f.IntVar(&cfg.Detector.MaxDepth, "max-depth", cfg.Detector.MaxDepth, "isolation tree depth limit (0 = ceil(log2(sample size)))")
	f.Int64Var(&cfg.Detector.Seed, "seed", cfg.Detector.Seed, "isolation engine random seed")
	f.StringVar(&opts.contamination, "contamination", opts.contamination, "expected outlier share, or auto")
	f.Int64Var(&cfg.MaxUploadBytes, "max-bytes", cfg.MaxUploadBytes, "largest accepted input after decompression")
	f.IntVar(&cfg.MaxRecords, "max-records", cfg.MaxRecords, "largest accepted number of log lines")
	f.StringVarP(&opts.out, "out", "o", "", "write CSV to this file instead of stdout")
	f.BoolVar(&opts.anomaliesOnly, "anomalies-only", false, "only write rows flagged as anomalies")
	return cmd
}

func runScore(cmd *cobra.Command, a *app, cfg config.Config, opts scoreOptions, path string) error {
	var in io.Reader = a.stdin
	name := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		in = f
		name = filepath.Base(path)
	}

	svc := services.NewBatchService(cfg)
	batch, _, err := svc.ProcessReader(cmd.Context(), in, name)
	if err != nil {
		return err
	}
	report, err := svc.Report(batch.ID, cfg.Policy)
	if err != nil {
		return err
	}

	rows := report.Rows()
	if opts.anomaliesOnly {
		rows = report.AnomalyRows()
	}

	out := a.stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := export.WriteCSV(out, rows); err != nil {
		return err
	}

	printSummary(a.stderr, report.Summary())
	return nil
}

func printSummary(w io.Writer, s models.Summary) {
	fmt.Fprintf(w, "file:                %s\n", s.Filename)
	fmt.Fprintf(w, "policy:              %s\n", s.Policy)
	fmt.Fprintf(w, "total requests:      %d\n", s.TotalRequests)
	fmt.Fprintf(w, "unparsed lines:      %d\n", s.Unparsed)
	fmt.Fprintf(w, "density outliers:    %d\n", s.DensityOutliers)
	fmt.Fprintf(w, "isolation outliers:  %d\n", s.IsolationOutliers)
	fmt.Fprintf(w, "anomalies:           %d (%.2f%%)\n", s.TotalAnomalies, s.AnomalyRate)
}
