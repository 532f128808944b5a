package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tfkr-ae/azimuth"
	"github.com/tfkr-ae/azimuth/domain"
)

var (
	zpImage      string
	zpInstrument string
	zpFilter     string
	zpMag        string
	zpUseRI      bool
	zpNormalize  bool
	zpRefit      bool
	zpView       bool
	zpAperture   int
	zpNSigma     float64
	zpSeeing     float64
)

// zeropointCmd calibrates a single reduced image
var zeropointCmd = &cobra.Command{
	Use:   "zeropoint",
	Short: "Calibrate the photometric zero point of a reduced image",
	Long: `Extracts sources from the image, queries the Pan-STARRS DR1 catalog over
the field, matches the two lists and fits the zero point with iterative
MAD clipping. The converged value is written to the image header as PHOTZP
and the run is recorded in the archive.

A refit (--fit) reuses the extraction catalog and the archived catalog
response of an earlier run and only redoes the fit.`,
	RunE: runZeroPoint,
}

func init() {
	zeropointCmd.Flags().StringVar(&zpImage, "image", "", "Reduced FITS image to calibrate (required)")
	zeropointCmd.Flags().StringVar(&zpInstrument, "instrument", "h", "Instrument code the image came from: h, m or i")
	zeropointCmd.Flags().Float64Var(&zpSeeing, "fwhm", 0, "Seeing FWHM in arcsec, 0 measures it from the frame")
	zeropointCmd.Flags().StringVar(&zpFilter, "filter", "", "Filter the image was taken in (default from the configuration)")
	zeropointCmd.Flags().BoolVar(&zpUseRI, "useri", false, "Use the r-i colour term instead of g-r")
	zeropointCmd.Flags().BoolVar(&zpNormalize, "adu", false, "Image is in raw counts, write a counts-per-second copy first")
	zeropointCmd.Flags().StringVar(&zpMag, "mag", "aper", "Extraction magnitude feeding the fit: aper, best or petro")
	zeropointCmd.Flags().IntVar(&zpAperture, "naper", 5, "Aperture vector index for the aper magnitude")
	zeropointCmd.Flags().Float64Var(&zpNSigma, "nsigma", 0, "Clipping threshold in MAD units (default from the configuration)")
	zeropointCmd.Flags().BoolVar(&zpRefit, "fit", false, "Redo only the fit from the archived catalogs")
	zeropointCmd.Flags().BoolVar(&zpView, "view", false, "Open the calibrated image in the configured viewer")
	zeropointCmd.MarkFlagRequired("image")

	rootCmd.AddCommand(zeropointCmd)
}

func runZeroPoint(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	source, err := domain.ParseMagSource(zpMag)
	if err != nil {
		return err
	}

	// A refit replays the archived catalogs and never runs the binary.
	if !zpRefit {
		if err := bindExtractor(); err != nil {
			return err
		}
	}

	zp, err := pipeline.CalibrateZeroPoint(ctx, azimuth.ZeroPointRequest{
		Image:      zpImage,
		Instrument: zpInstrument,
		Filter:     zpFilter,
		UseRI:      zpUseRI,
		Normalize:  zpNormalize,
		MagSource:  source,
		Aperture:   zpAperture,
		NSigma:     zpNSigma,
		Seeing:     zpSeeing,
		Refit:      zpRefit,
	})
	if err != nil {
		return err
	}

	fmt.Printf("zero point %.3f +/- %.3f, %d of %d stars kept, rms %.3f\n",
		zp.ZP, zp.ZPErr, zp.FitCount, zp.StarCount, zp.RMS)

	if zpView {
		target := zpImage
		if zpNormalize {
			target = azimuth.NormalizedPath(zpImage)
		}
		if err := pipeline.OpenViewer(target); err != nil {
			logger.Warn("opening viewer", "error", err)
		}
	}

	return nil
}
