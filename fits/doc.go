// Package fits reads and writes FITS files, the standard container format for
// astronomical images and tables. It covers the subset of the standard the
// pipeline needs: primary and extension image HDUs in every integer and float
// pixel format, binary tables with fixed-size array columns, and tangent plane
// world coordinates.
//
// Files are parsed into a File holding one HDU per header-data unit. Image data
// is decoded into float32 pixels with BZERO and BSCALE applied, while the raw
// encoded blocks are retained so a file can be rewritten byte for byte after a
// header-only change, which is how fitted zero points are stamped into images.
package fits
