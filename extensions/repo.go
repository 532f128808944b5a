package extensions

import (
	"fmt"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
)

// registerRepoLibrary registers the `azimuth.repo` library into the Lua state.
// This library provides read access to recorded calibration runs and their
// fitted zero points, plus the run metadata extensions stash results in.
func registerRepoLibrary(l *lua.State, service PipelineService) {
	l.Global("azimuth")
	if l.IsNil(-1) {
		l.Pop(1)
		return
	}

	lua.NewLibrary(l, calibrationLibrary(service))
	l.SetField(-2, "repo")
	l.Pop(1)
}

// unixMilli renders a timestamp for Lua, zero when the time was never set.
func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// summaryTable flattens a run summary for DeepPush.
func summaryTable(summary *domain.RunSummary) map[string]any {
	return map[string]any{
		"id":          summary.ID.String(),
		"image":       summary.Image,
		"instrument":  summary.Instrument,
		"filter":      summary.Filter,
		"status":      string(summary.Status),
		"zp":          summary.ZP,
		"zp_err":      summary.ZPErr,
		"fit_count":   summary.FitCount,
		"created_at":  unixMilli(summary.CreatedAt),
		"finished_at": unixMilli(summary.FinishedAt),
	}
}

// calibrationLibrary returns the list of Lua functions for the calibration repository.
func calibrationLibrary(service PipelineService) []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// get_summaries retrieves a summary of every calibration run in the archive.
		//
		// @return []table A list of tables, each joining a run with its zero point.
		{Name: "get_summaries", Function: func(l *lua.State) int {
			repo, err := service.GetCalibrationRepo()
			if err != nil {
				lua.Errorf(l, "getting calibration repo: %s", err.Error())
				return 0
			}

			summaries, err := repo.GetRunSummaries()
			if err != nil {
				lua.Errorf(l, "getting summaries: %s", err.Error())
				return 0
			}

			result := make([]map[string]any, len(summaries))
			for i, summary := range summaries {
				result[i] = summaryTable(summary)
			}

			util.DeepPush(l, result)
			return 1
		}},
		// get_run retrieves the full record for a specific calibration run.
		//
		// @param id string The UUID of the run.
		// @return table A table with the run parameters and lifecycle fields.
		{Name: "get_run", Function: func(l *lua.State) int {
			repo, err := service.GetCalibrationRepo()
			if err != nil {
				lua.Errorf(l, "getting calibration repo: %s", err.Error())
				return 0
			}

			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			run, err := repo.GetRun(id)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("getting run %s : %s", idString, err.Error()))
				return 0
			}

			result := map[string]any{
				"id":          run.ID.String(),
				"image":       run.Image,
				"instrument":  run.Instrument,
				"filter":      run.Filter,
				"use_ri":      run.UseRI,
				"mag_source":  run.MagSource.String(),
				"aperture":    run.Aperture,
				"nsigma":      run.NSigma,
				"seeing":      run.Seeing,
				"normalize":   run.Normalize,
				"status":      string(run.Status),
				"metadata":    run.Metadata,
				"created_at":  unixMilli(run.CreatedAt),
				"finished_at": unixMilli(run.FinishedAt),
			}
			util.DeepPush(l, result)
			return 1
		}},
		// get_metadata retrieves the metadata associated with a specific run.
		//
		// @param id string The UUID of the run.
		// @return table A table containing the metadata key-value pairs.
		{Name: "get_metadata", Function: func(l *lua.State) int {
			repo, err := service.GetCalibrationRepo()
			if err != nil {
				lua.Errorf(l, "getting calibration repo: %s", err.Error())
				return 0
			}

			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			metadata, err := repo.GetRunMetadata(id)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("getting metadata for %s : %s", idString, err.Error()))
				return 0
			}
			util.DeepPush(l, metadata)
			return 1
		}},
		// set_metadata updates the metadata for a specific run.
		//
		// @param id string The UUID of the run.
		// @param metadata table A table containing the new metadata key-value pairs.
		{Name: "set_metadata", Function: func(l *lua.State) int {
			repo, err := service.GetCalibrationRepo()
			if err != nil {
				lua.Errorf(l, "getting calibration repo: %s", err.Error())
				return 0
			}

			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			if l.TypeOf(3) != lua.TypeTable {
				lua.ArgumentError(l, 3, "metadata must be a key-value table")
				return 0
			}

			val := goValue(l, 3)

			metadata, ok := val.(map[string]any)
			if !ok {
				lua.ArgumentError(l, 3, "metadata must be a key-value table, not an array")
				return 0
			}

			err = repo.UpdateRunMetadata(metadata, id)
			if err != nil {
				lua.Errorf(l, "updating metadata for %s : %s", idString, err.Error())
				return 0
			}
			return 0
		}},
		// get_zeropoint retrieves the fitted zero point for a specific run.
		//
		// @param id string The UUID of the run.
		// @return table A table with the fit results.
		{Name: "get_zeropoint", Function: func(l *lua.State) int {
			repo, err := service.GetCalibrationRepo()
			if err != nil {
				lua.Errorf(l, "getting calibration repo: %s", err.Error())
				return 0
			}

			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			zp, err := repo.GetZeroPoint(id)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("getting zero point for %s : %s", idString, err.Error()))
				return 0
			}

			result := map[string]any{
				"run_id":     zp.RunID.String(),
				"intercept":  zp.Intercept,
				"zp":         zp.ZP,
				"zp_err":     zp.ZPErr,
				"lambda":     zp.Lambda,
				"flux_zp_jy": zp.FluxZPJy,
				"star_count": zp.StarCount,
				"fit_count":  zp.FitCount,
				"iterations": zp.Iterations,
				"rms":        zp.RMS,
				"created_at": unixMilli(zp.CreatedAt),
			}
			util.DeepPush(l, result)
			return 1
		}},
		// get_stars retrieves the matched stars recorded for a specific run.
		//
		// @param id string The UUID of the run.
		// @return []table A list of tables, one per matched star in fit order.
		{Name: "get_stars", Function: func(l *lua.State) int {
			repo, err := service.GetCalibrationRepo()
			if err != nil {
				lua.Errorf(l, "getting calibration repo: %s", err.Error())
				return 0
			}

			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			stars, err := repo.GetStars(id)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("getting stars for %s : %s", idString, err.Error()))
				return 0
			}

			result := make([]map[string]any, len(stars))
			for i, star := range stars {
				result[i] = map[string]any{
					"ra":       star.RA,
					"dec":      star.Dec,
					"x":        star.X,
					"y":        star.Y,
					"sep":      star.Sep,
					"ref_mag":  star.RefMag,
					"ref_err":  star.RefErr,
					"inst_mag": star.InstMag,
					"inst_err": star.InstErr,
					"color":    star.Color,
					"residual": star.Residual,
					"kept":     star.Kept,
				}
			}

			util.DeepPush(l, result)
			return 1
		}},
	}
}
