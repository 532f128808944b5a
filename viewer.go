package azimuth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// getViewerPath determines the DS9 executable path based on the operating
// system. It checks common installation locations for SAOImage DS9 on macOS,
// Windows, and Linux, then any paths configured for the current OS.
//
// Returns:
//   - string: Path to the DS9 executable, or empty string if not found
func getViewerPath(customPaths []ViewerPathConfig) string {
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			`/Applications/SAOImageDS9.app/Contents/MacOS/ds9`,
			`/opt/homebrew/bin/ds9`,
			`/usr/local/bin/ds9`,
			`ds9`,
		}
	case "windows":
		paths = []string{
			`C:\Program Files\SAOImageDS9\ds9.exe`,
			`C:\Program Files (x86)\SAOImageDS9\ds9.exe`,
			`ds9.exe`,
		}
	case "linux":
		paths = []string{
			`/usr/bin/ds9`,
			`/usr/local/bin/ds9`,
			`/opt/ds9/ds9`,
			`ds9`,
		}
	default:
		return ""
	}

	for _, custom := range customPaths {
		if custom.OS == runtime.GOOS {
			paths = append(paths, custom.Path)
		}
	}

	// Find the first valid path
	for _, candidate := range paths {
		if resolved, err := exec.LookPath(candidate); err == nil {
			return resolved
		}
	}
	return ""
}

// OpenViewer launches SAOImage DS9 on the image with zscale display limits.
// The resolved executable path is recorded in the archive so the report can
// show which installation opens the images.
//
// Returns:
//   - error: Launch error if no viewer was found or the process fails to start
func (pipeline *Pipeline) OpenViewer(imagePath string) error {
	var custom []ViewerPathConfig
	if pipeline.Config != nil {
		custom = pipeline.Config.ViewerDirs
	}

	viewerPath := getViewerPath(custom)
	if viewerPath == "" {
		return fmt.Errorf("no FITS viewer found, configure one with a viewer path entry")
	}

	if pipeline.Repo != nil {
		if err := pipeline.Repo.UpdateViewerPath(viewerPath); err != nil {
			pipeline.WriteLog("WARN", fmt.Sprintf("recording viewer path : %s", err.Error()))
		}
	}

	cmd := exec.Command(viewerPath, imagePath, "-zscale")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting viewer : %w", err)
	}

	return nil
}
