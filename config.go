package azimuth

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/viper"
)

// ViewerPathConfig is a custom path the display tool is probed under on one
// operating system, extending the built-in candidate list.
type ViewerPathConfig struct {
	OS   string `mapstructure:"os"`   // OS for the given path
	Path string `mapstructure:"path"` // Custom DS9 path
}

// InstrumentConfig describes one telescope and camera combination images can
// come from. Profiles for the supported instruments are compiled in, the
// configuration file can adjust them or add new codes.
type InstrumentConfig struct {
	Code     string  `mapstructure:"code"`      // Single letter instrument code used on the command line
	Name     string  `mapstructure:"name"`      // Telescope / camera name
	PixScale float64 `mapstructure:"pix_scale"` // Arcsec per pixel
	XMin     float64 `mapstructure:"x_min"`     // Usable section bounds in pixels, all zero keeps the whole frame
	XMax     float64 `mapstructure:"x_max"`
	YMin     float64 `mapstructure:"y_min"`
	YMax     float64 `mapstructure:"y_max"`
}

// HasUsableSection reports whether the profile restricts fitting to a section
// of the frame. The INT WFC carries a vignetted chip area that has to go.
func (inst InstrumentConfig) HasUsableSection() bool {
	return inst.XMax > 0 || inst.YMax > 0
}

// defaultInstruments are the compiled-in instrument profiles.
var defaultInstruments = []InstrumentConfig{
	{Code: "h", Name: "WIYN HDI", PixScale: 0.43},
	{Code: "m", Name: "KPNO Mosaic", PixScale: 0.43},
	{Code: "i", Name: "INT WFC", PixScale: 0.33, XMin: 1000, XMax: 5000, YMin: 0, YMax: 4000},
}

// Config carries the persistent pipeline settings backed by the viper file in
// the configuration directory.
type Config struct {
	viper       *viper.Viper
	ConfigDir   string             `mapstructure:"config_dir"`       // Current config dir
	DesktopOS   string             `mapstructure:"desktop_os"`       // Operating system identifier
	FirstRun    bool               `mapstructure:"first_run"`        // Cleared after the first successful run
	Filter      string             `mapstructure:"default_filter"`   // Filter assumed when none is given
	NSigma      float64            `mapstructure:"default_nsigma"`   // Clipping threshold in MAD units
	Aperture    int                `mapstructure:"default_aperture"` // Aperture vector index for MAG_APER
	ViewerDirs  []ViewerPathConfig `mapstructure:"viewer_dirs"`      // Extra DS9 locations to probe
	Instruments []InstrumentConfig `mapstructure:"instruments"`      // Instrument profile overrides
}

// Instrument resolves an instrument code, preferring configured profiles over
// the compiled-in ones.
func (cfg *Config) Instrument(code string) (InstrumentConfig, error) {
	for _, inst := range cfg.Instruments {
		if inst.Code == code {
			return inst, nil
		}
	}
	for _, inst := range defaultInstruments {
		if inst.Code == code {
			return inst, nil
		}
	}
	return InstrumentConfig{}, fmt.Errorf("unknown instrument code %q", code)
}

// AddViewerPath registers a custom display tool location for one OS and saves
// the configuration.
func (cfg *Config) AddViewerPath(path, os string) error {
	switch os {
	case "darwin", "linux", "windows":
		cfg.ViewerDirs = append(cfg.ViewerDirs, ViewerPathConfig{OS: os, Path: path})
		cfg.viper.Set("viewer_dirs", cfg.ViewerDirs)
		if err := cfg.viper.WriteConfig(); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		if err := cfg.viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshalling config to struct : %w", err)
		}
	default:
		return errors.New("invalid os string")
	}
	return nil
}

// DeleteViewerPath removes a custom display tool location and saves the
// configuration.
func (cfg *Config) DeleteViewerPath(path, os string) error {
	viewerPath := ViewerPathConfig{OS: os, Path: path}
	cfg.ViewerDirs = slices.DeleteFunc(cfg.ViewerDirs, func(v ViewerPathConfig) bool {
		return v.OS == viewerPath.OS && v.Path == viewerPath.Path
	})
	cfg.viper.Set("viewer_dirs", cfg.ViewerDirs)
	if err := cfg.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	if err := cfg.viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return nil
}
