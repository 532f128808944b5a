// Command azimuth calibrates photometric zero points of reduced images,
// assembles multi-survey cutout composites, and keeps everything it did in a
// SQLite archive under the configuration directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tfkr-ae/azimuth"
	"github.com/tfkr-ae/azimuth/db"
)

var (
	// Global flags
	configDir string
	verbose   bool

	logger   *slog.Logger
	pipeline *azimuth.Pipeline

	// archiveDone closes once the archive writer has drained the channel.
	archiveDone chan struct{}
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "azimuth",
	Short: "Photometric zero-point calibration and survey cutouts",
	Long: `Azimuth calibrates the photometric zero point of reduced galaxy images
against the Pan-STARRS DR1 catalog and assembles survey cutout composites
from the Legacy Surveys, unWISE and GALEX.

Every run, catalog query and downloaded cutout is recorded in a SQLite
archive under the configuration directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		return setupPipeline()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default: azimuth under the user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	err := rootCmd.Execute()
	teardownPipeline()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupPipeline opens the archive and builds the shared pipeline instance.
func setupPipeline() error {
	dir := configDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolving user config dir : %w", err)
		}
		dir = filepath.Join(base, "azimuth")
	}

	var err error
	pipeline, err = azimuth.New(azimuth.WithConfigDir(dir))
	if err != nil {
		return err
	}

	conn, err := db.New(filepath.Join(dir, "azimuth.db"))
	if err != nil {
		return err
	}

	err = pipeline.WithOptions(
		azimuth.WithRepo(db.NewArchiveRepo(conn)),
		azimuth.WithEventHandler(printEvent),
		azimuth.WithExtensions(),
	)
	if err != nil {
		return err
	}

	archiveDone = make(chan struct{})
	go func() {
		pipeline.WriteToArchive()
		close(archiveDone)
	}()

	return nil
}

// teardownPipeline drains the archive writer and closes the repository.
func teardownPipeline() {
	if pipeline == nil {
		return
	}

	close(pipeline.ArchiveChannel)
	// Setup can fail before the writer starts, there is nothing to drain then.
	if archiveDone != nil {
		<-archiveDone
	}

	if err := pipeline.Close(); err != nil {
		logger.Warn("closing archive", "error", err)
	}
}

// bindExtractor probes for the Source Extractor binary on first use, so
// commands that never extract work without it installed.
func bindExtractor() error {
	if pipeline.Extractor != nil {
		return nil
	}
	return pipeline.WithOptions(azimuth.WithExtractor(""))
}

// printEvent renders pipeline progress events as stage lines on stdout.
func printEvent(event azimuth.Event) error {
	if event.RunID != uuid.Nil {
		fmt.Printf("[%s] %s %s\n", event.Stage, event.RunID.String()[:8], event.Message)
		return nil
	}
	fmt.Printf("[%s] %s\n", event.Stage, event.Message)
	return nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
