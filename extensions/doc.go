// Package extensions provides the Lua-based extension system for Azimuth.
// It includes the runtime for executing Lua scripts and defines the Go functions
// and types that are exposed to the Lua environment, allowing extensions to
// filter calibration stars, inspect FITS headers and react to finished runs.
package extensions
