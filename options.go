package azimuth

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/spf13/viper"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/extensions"
	"github.com/tfkr-ae/azimuth/sextractor"
)

// WithOptions applies a series of configuration functions to the pipeline instance.
// Each option function can modify the pipeline configuration and return an error if it fails.
//
// Parameters:
//   - options: Variadic list of configuration functions
//
// Returns:
//   - error: First error encountered from any option function
func (pipeline *Pipeline) WithOptions(options ...func(*Pipeline) error) error {
	for _, option := range options {
		err := option(pipeline)
		if err != nil {
			return fmt.Errorf("applying option on azimuth : %w", err)
		}
	}
	return nil
}

// WithConfigDir configures the pipeline to use the specified configuration directory.
// It creates the directory if it doesn't exist and initializes the configuration file using Viper.
//
// Parameters:
//   - appConfigDir: Path to the configuration directory
//
// Returns:
//   - func(*Pipeline) error: Configuration function that sets up the config directory
func WithConfigDir(appConfigDir string) func(*Pipeline) error {
	return func(pipeline *Pipeline) error {
		_, err := os.ReadDir(appConfigDir)
		if err != nil {
			if os.IsNotExist(err) {
				log.Println("[*] creating config dir")
				err := os.MkdirAll(appConfigDir, 0700)
				if err != nil {
					return fmt.Errorf("creating config dir %s: %w", appConfigDir, err)
				}
			} else {
				return fmt.Errorf("checking if directory exists %s: %w", appConfigDir, err)
			}
		}
		// At this point, the directory exists or was created successfully
		pipeline.ConfigDir = appConfigDir

		// VIPER
		viper.SetConfigName("azimuth")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appConfigDir)
		viper.SetDefault("first_run", true)
		viper.SetDefault("default_filter", "R")
		viper.SetDefault("default_nsigma", 2.0)
		viper.SetDefault("default_aperture", 5)
		err = viper.ReadInConfig()
		if err != nil {
			// need to check if the error is config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				// Config file is not found
				err = viper.SafeWriteConfig()
				if err != nil {
					return fmt.Errorf("writing config file : %w", err)
				}
			} else {
				return fmt.Errorf("reading config file : %w", err)
			}
		}
		if err := viper.Unmarshal(&pipeline.Config); err != nil {
			return fmt.Errorf("unmarshalling config to struct : %w", err)
		}

		pipeline.Config.viper = viper.GetViper()
		pipeline.Config.ConfigDir = appConfigDir
		pipeline.Config.DesktopOS = runtime.GOOS
		// Rewrite entire file from struct
		err = viper.WriteConfig()
		if err != nil {
			return fmt.Errorf("writing config after unmarshalling : %w", err)
		}
		return nil

	}
}

// WithRepo will take the Repository interface, close any previously held repository
// and sync the survey mirror overrides from the archive.
func WithRepo(repo Repository) func(*Pipeline) error {
	return func(pipeline *Pipeline) error {
		// First we need to check if there is a repo
		if pipeline.Repo != nil {
			if err := pipeline.Repo.Close(); err != nil {
				return err
			}
			pipeline.Repo = nil
		}
		pipeline.Repo = repo
		err := pipeline.SyncMirrors()
		if err != nil {
			pipeline.WriteLog("INFO", err.Error())
		}
		return nil
	}
}

// WithExtension prepares a runtime for a single extension and registers it on
// the pipeline. An extension already loaded under the same name is left alone.
func WithExtension(extension *domain.Extension, options ...func(*extensions.Runtime) error) func(*Pipeline) error {
	return func(pipeline *Pipeline) error {
		if _, ok := pipeline.GetExtension(extension.Name); ok {
			return nil
		}
		runtime := &extensions.Runtime{Data: extension}
		if err := runtime.PrepareState(pipeline, options); err != nil {
			return fmt.Errorf("preparing extension %s : %w", extension.Name, err)
		}
		pipeline.Extensions = append(pipeline.Extensions, runtime)
		return nil
	}
}

// WithExtensions loads every enabled extension from the archive into the pipeline.
func WithExtensions(options ...func(*extensions.Runtime) error) func(*Pipeline) error {
	return func(pipeline *Pipeline) error {
		return pipeline.LoadExtensions(options...)
	}
}

// WithExtractor binds the Source Extractor wrapper used by the zero-point runs.
// An empty binary path probes the PATH for the usual executable names.
func WithExtractor(binary string) func(*Pipeline) error {
	return func(pipeline *Pipeline) error {
		extractor, err := sextractor.New(binary)
		if err != nil {
			return err
		}
		pipeline.Extractor = extractor
		return nil
	}
}

// WithEventHandler takes a handler function that will be executed on each progress event
func WithEventHandler(handler func(event Event) error) func(*Pipeline) error {
	return func(pipeline *Pipeline) error {
		if pipeline.OnEvent != nil {
			return errors.New("pipeline already has an event handler defined")
		}
		pipeline.OnEvent = handler
		return nil
	}
}

// WithFetchHandler takes a handler function that will be executed on each recorded fetch
func WithFetchHandler(handler func(res domain.FetchResponse) error) func(*Pipeline) error {
	return func(pipeline *Pipeline) error {
		if pipeline.OnFetch != nil {
			return errors.New("pipeline already has a fetch handler defined")
		}
		pipeline.OnFetch = handler
		return nil
	}
}

// WithLogHandler takes a handler function that will be executed on each Log
func WithLogHandler(handler func(log domain.Log) error) func(*Pipeline) error {
	return func(pipeline *Pipeline) error {
		if pipeline.OnLog != nil {
			return errors.New("pipeline already has a log handler defined")
		}
		pipeline.OnLog = handler
		return nil
	}
}
