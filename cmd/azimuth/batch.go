package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tfkr-ae/azimuth"
)

var (
	batchDir        string
	batchMode       string
	batchCampaign   string
	batchInstrument string
	batchNormalize  bool
)

// batchCmd processes a whole observing night directory
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every R-band frame of a directory",
	Long: `Walks a directory for R-band frames, filters them through the scope rules,
and runs the requested stages on each one. Calibration runs are grouped
under a campaign so a whole observing night can be inspected together.

Frames that fail are reported at the end, the batch keeps going.`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "Directory walked for R-band frames (required)")
	batchCmd.Flags().StringVar(&batchMode, "mode", "both", "Stages to run on each frame: zeropoint, cutouts or both")
	batchCmd.Flags().StringVar(&batchCampaign, "campaign", "", "Campaign name (default: directory name and date)")
	batchCmd.Flags().StringVar(&batchInstrument, "instrument", "h", "Instrument code for the calibration stage")
	batchCmd.Flags().BoolVar(&batchNormalize, "adu", false, "Frames are in raw counts, normalize before calibrating")
	batchCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if azimuth.BatchMode(batchMode) != azimuth.BatchCutouts {
		if err := bindExtractor(); err != nil {
			return err
		}
	}

	result, err := pipeline.RunBatch(ctx, azimuth.BatchRequest{
		Dir:      batchDir,
		Mode:     azimuth.BatchMode(batchMode),
		Campaign: batchCampaign,
		ZeroPoint: azimuth.ZeroPointRequest{
			Instrument: batchInstrument,
			Normalize:  batchNormalize,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("%d of %d frames processed\n", result.Processed, len(result.Frames))
	for _, failure := range result.Failures {
		logger.Warn(failure)
	}

	return nil
}
