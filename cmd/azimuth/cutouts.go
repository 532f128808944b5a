package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tfkr-ae/azimuth"
)

var (
	cutImage string
	cutView  bool
)

// cutoutsCmd assembles the survey composite for a single field
var cutoutsCmd = &cobra.Command{
	Use:   "cutouts",
	Short: "Assemble the multi-survey cutout composite for a field",
	Long: `Fetches Legacy Surveys, unWISE and GALEX cutouts over the field of an
R-band image, caches them on disk, records them in the archive, and renders
a composite grid next to the image together with a strip of the local
narrow-band products. Surveys without coverage leave an empty tile and a
warning instead of failing the set.`,
	RunE: runCutouts,
}

func init() {
	cutoutsCmd.Flags().StringVar(&cutImage, "image", "", "R-band FITS image the cutout set is anchored on (required)")
	cutoutsCmd.Flags().BoolVar(&cutView, "view", false, "Open the anchor image in the configured viewer")
	cutoutsCmd.MarkFlagRequired("image")

	rootCmd.AddCommand(cutoutsCmd)
}

func runCutouts(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	result, err := pipeline.ComposeCutouts(ctx, azimuth.CutoutRequest{Image: cutImage})
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		logger.Warn(warning)
	}
	fmt.Printf("%s field %.0f arcsec, %d cutouts cached\n", result.Galaxy, result.Field, len(result.Cutouts))
	fmt.Printf("composite written to %s\n", result.Composite)

	if cutView {
		if err := pipeline.OpenViewer(cutImage); err != nil {
			logger.Warn("opening viewer", "error", err)
		}
	}

	return nil
}
