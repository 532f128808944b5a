package azimuth

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
)

// BatchMode selects what a batch pass does with each frame.
type BatchMode string

const (
	BatchZeroPoint BatchMode = "zeropoint" // Calibrate every frame
	BatchCutouts   BatchMode = "cutouts"   // Assemble the survey composite for every frame
	BatchBoth      BatchMode = "both"      // Calibrate, then composite
)

// BatchRequest carries the parameters of one batch pass over a directory.
type BatchRequest struct {
	Dir       string           // Directory walked for R-band frames
	Mode      BatchMode        // What to do with each frame, empty runs both stages
	Campaign  string           // Campaign name, empty derives one from the directory and date
	ZeroPoint ZeroPointRequest // Calibration template, the image path is filled per frame
	CacheDir  string           // Cutout cache directory handed to the composite stage
}

// BatchResult reports what a batch pass touched.
type BatchResult struct {
	CampaignID uuid.UUID // Campaign the calibration runs were linked to
	Frames     []string  // Frames selected by the scope
	Processed  int       // Frames that went through the requested stages
	Failures   []string  // Per-frame failures, one line each
}

// FindFrames walks a directory for R-band frames in scope. Scope rules match
// the galaxy identifier read from each frame header and the file path, frames
// without a galaxy card are matched on the path alone.
func (pipeline *Pipeline) FindFrames(dir string) ([]string, error) {
	var frames []string

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, err := Rootname(path); err != nil {
			return nil
		}

		// Normalized working copies sit beside their originals.
		base := filepath.Base(path)
		if strings.HasPrefix(base, "n") {
			if _, err := os.Stat(filepath.Join(filepath.Dir(path), strings.TrimPrefix(base, "n"))); err == nil {
				return nil
			}
		}

		galaxy := ""
		if header, err := fits.OpenHeader(path); err == nil {
			if id, err := header.Str("ID"); err == nil {
				galaxy = id
			}
		}

		if pipeline.Scope != nil && !pipeline.Scope.Matches(galaxy, path) {
			return nil
		}

		frames = append(frames, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s : %w", dir, err)
	}

	return frames, nil
}

// RunBatch calibrates or composites every in-scope R-band frame under a
// directory. Calibration runs are grouped into one campaign so an observing
// night stays together in the archive. Per-frame failures are collected
// rather than aborting the pass.
func (pipeline *Pipeline) RunBatch(ctx context.Context, request BatchRequest) (*BatchResult, error) {
	if pipeline.Repo == nil {
		return nil, fmt.Errorf("pipeline does not have a repo defined")
	}

	mode := request.Mode
	if mode == "" {
		mode = BatchBoth
	}
	switch mode {
	case BatchZeroPoint, BatchCutouts, BatchBoth:
	default:
		return nil, fmt.Errorf("mode should be either: zeropoint, cutouts, both")
	}

	frames, err := pipeline.FindFrames(request.Dir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames in scope under %s", request.Dir)
	}

	result := &BatchResult{Frames: frames}

	if mode != BatchCutouts {
		name := request.Campaign
		if name == "" {
			name = fmt.Sprintf("%s %s", filepath.Base(filepath.Clean(request.Dir)), time.Now().Format("2006-01-02"))
		}

		campaignId, err := pipeline.Repo.CreateCampaign(name, fmt.Sprintf("batch over %s", request.Dir))
		if err != nil {
			return nil, fmt.Errorf("creating campaign : %w", err)
		}
		result.CampaignID = campaignId
	}

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if mode != BatchCutouts {
			zpRequest := request.ZeroPoint
			zpRequest.Image = frame

			zp, err := pipeline.CalibrateZeroPoint(ctx, zpRequest)
			if err != nil {
				result.Failures = append(result.Failures, fmt.Sprintf("%s : %s", frame, err))
				pipeline.WriteLog("ERROR", fmt.Sprintf("batch calibration of %s : %s", frame, err.Error()))
			} else {
				pipeline.ArchiveChannel <- domain.CampaignRun{CampaignID: result.CampaignID, RunID: zp.RunID}
			}
		}

		if mode != BatchZeroPoint {
			if _, err := pipeline.ComposeCutouts(ctx, CutoutRequest{Image: frame, CacheDir: request.CacheDir}); err != nil {
				result.Failures = append(result.Failures, fmt.Sprintf("%s : %s", frame, err))
				pipeline.WriteLog("ERROR", fmt.Sprintf("batch composite of %s : %s", frame, err.Error()))
			}
		}

		result.Processed++
	}

	return result, nil
}
