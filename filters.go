package azimuth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/core"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/photometry"
)

var (
	// ErrNoMatches is returned when cross-matching finds no star pairs at all.
	// An empty match against a populated catalog almost always means the image
	// WCS is wrong
	ErrNoMatches = errors.New("no stars matched between image and catalog")

	// ErrAllFiltered is returned when the quality gates reject every matched pair
	ErrAllFiltered = errors.New("all matched stars rejected by filters")

	// ErrNoDetections is returned when the extraction produces an empty catalog
	ErrNoDetections = errors.New("no sources extracted from the image")

	// ErrNoExtractor is returned when a run needs Source Extractor but none is bound
	ErrNoExtractor = errors.New("no source extractor bound to the pipeline")

	// ErrMissingCompanion is returned when a narrowband companion frame is absent
	ErrMissingCompanion = errors.New("companion frame not found beside the image")
)

// Quality gate limits. The catalog and extraction cuts below feed the built-in
// filter chain every run starts from.
const (
	// SaturationMag is the PS1 r magnitude at which the catalog photometry
	// saturates. Brighter stars carry unusable reference magnitudes.
	SaturationMag = 9.0

	// MaxFlags is the first extraction flag value indicating blending or
	// saturation. Detections at or above it are rejected.
	MaxFlags = 5

	// MaxQual is the first PS1 quality flag value marking an extended or
	// poorly measured object. Catalog entries at or above it are rejected.
	MaxQual = 64

	// MinClassStar is the classifier output below which a source no longer
	// counts as stellar.
	MinClassStar = 0.95
)

// StarFilterFunc is a signature for star selection filters. It examines one
// matched pair and reports whether it enters the fit, with a short reason
// recorded when it does not.
type StarFilterFunc func(pair *photometry.Pair) (keep bool, reason string, err error)

// SaturationFilter rejects stars brighter than the PS1 saturation limit.
// Non-finite catalog magnitudes fail the comparison and drop out with them.
func SaturationFilter() StarFilterFunc {
	return func(pair *photometry.Pair) (bool, string, error) {
		if !(pair.Ref.R > SaturationMag) {
			return false, fmt.Sprintf("rmag %.2f saturated in PS1", pair.Ref.R), nil
		}
		return true, "", nil
	}
}

// FlagsFilter rejects detections carrying blend or saturation extraction flags.
func FlagsFilter() StarFilterFunc {
	return func(pair *photometry.Pair) (bool, string, error) {
		if pair.Det.Flags >= MaxFlags {
			return false, fmt.Sprintf("extraction flags %d", pair.Det.Flags), nil
		}
		return true, "", nil
	}
}

// QualityFilter rejects catalog objects with a poor PS1 quality flag.
func QualityFilter() StarFilterFunc {
	return func(pair *photometry.Pair) (bool, string, error) {
		if pair.Ref.Qual >= MaxQual {
			return false, fmt.Sprintf("catalog quality flag %d", pair.Ref.Qual), nil
		}
		return true, "", nil
	}
}

// StellarityFilter keeps sources the classifier calls stellar.
func StellarityFilter() StarFilterFunc {
	return func(pair *photometry.Pair) (bool, string, error) {
		if pair.Det.ClassStar <= MinClassStar {
			return false, fmt.Sprintf("stellarity %.2f", pair.Det.ClassStar), nil
		}
		return true, "", nil
	}
}

// UsableSectionFilter keeps detections inside the instrument's usable section.
func UsableSectionFilter(inst InstrumentConfig) StarFilterFunc {
	return func(pair *photometry.Pair) (bool, string, error) {
		if pair.Det.X < inst.XMin || pair.Det.X > inst.XMax ||
			pair.Det.Y < inst.YMin || pair.Det.Y > inst.YMax {
			return false, fmt.Sprintf("outside usable section at (%.0f, %.0f)", pair.Det.X, pair.Det.Y), nil
		}
		return true, "", nil
	}
}

// BuiltinFilters assembles the quality gates for a run on the given instrument.
func BuiltinFilters(inst InstrumentConfig) []StarFilterFunc {
	filters := []StarFilterFunc{
		SaturationFilter(),
		FlagsFilter(),
		QualityFilter(),
		StellarityFilter(),
	}
	if inst.HasUsableSection() {
		filters = append(filters, UsableSectionFilter(inst))
	}
	return filters
}

// ApplyFilters runs every matched pair through the filter chain in order.
// Filters only ever shrink the sample. Each rejection is logged at DEBUG with
// the catalog object ID and the reason.
func (pipeline *Pipeline) ApplyFilters(runId uuid.UUID, pairs []*photometry.Pair, filters []StarFilterFunc) ([]*photometry.Pair, error) {
	kept := make([]*photometry.Pair, 0, len(pairs))

pairLoop:
	for _, pair := range pairs {
		for _, filter := range filters {
			keep, reason, err := filter(pair)
			if err != nil {
				return nil, fmt.Errorf("applying star filter : %w", err)
			}
			if !keep {
				pipeline.WriteLog("DEBUG",
					fmt.Sprintf("rejecting star %d : %s", pair.Ref.ObjID, reason),
					core.LogWithRunID(runId))
				continue pairLoop
			}
		}
		kept = append(kept, pair)
	}

	if len(kept) == 0 {
		return nil, ErrAllFiltered
	}
	return kept, nil
}

// FilterWithExtensions will run the `filter_star` function (if it is defined) for all the
// loaded extensions over the matched stars. An extension erroring out is logged and its
// vote skipped, an err in Lua should not bring down the run.
func (pipeline *Pipeline) FilterWithExtensions(runId uuid.UUID, matched []*domain.MatchedStar) []*domain.MatchedStar {
	kept := matched
	for _, ext := range pipeline.Extensions {
		surviving := make([]*domain.MatchedStar, 0, len(kept))
		for _, star := range kept {
			keep, reason, err := ext.FilterStar(star)
			if err != nil {
				pipeline.WriteLog("ERROR", fmt.Sprintf("Running filter_star : %s", err.Error()), core.LogWithExtensionID(ext.Data.ID))
				surviving = append(surviving, star)
				continue
			}
			if !keep {
				if reason == "" {
					reason = "rejected by extension"
				}
				pipeline.WriteLog("DEBUG",
					fmt.Sprintf("%s rejecting star at (%.5f, %+.5f) : %s", ext.Data.Name, star.RA, star.Dec, reason),
					core.LogWithRunID(runId))
				continue
			}
			surviving = append(surviving, star)
		}
		kept = surviving
	}
	return kept
}
