package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tfkr-ae/azimuth/report"
)

var (
	reportServe bool
	reportAddr  string
)

// reportCmd renders the archive report
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the archive report, optionally serving it locally",
	Long: `Renders an HTML summary of the archive into the configuration directory:
calibration runs with their star tables, the cutout cache, the survey fetch
log and recent log entries. With --serve the configuration directory is
exposed on a local address so the report and the cached figures can be
browsed.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportServe, "serve", false, "Serve the report after rendering it")
	reportCmd.Flags().StringVar(&reportAddr, "addr", report.DefaultAddr, "Address to serve the report on")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	path := filepath.Join(pipeline.ConfigDir, report.Filename)
	if err := report.Generate(pipeline.Repo, path); err != nil {
		return err
	}
	fmt.Printf("report written to %s\n", path)

	if !reportServe {
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("serving on http://%s/%s\n", reportAddr, report.Filename)
	return report.Serve(ctx, reportAddr, pipeline.ConfigDir)
}
