// Package imaging holds the image operations of the enforcement pipeline:
// cropping a vehicle out of a frame, cutting the plate region of interest,
// preparing that region for text recognition, encoding evidence and drawing
// the detection overlay.
//
// # Coordinate System
//
// Frame coordinates are pixel based with (0,0) at the top-left corner, X
// growing rightward and Y downward. Bounding boxes arrive as floats from the
// detector and are floored to whole pixels before cropping. Regions are
// half-open: the top-left corner is inclusive, the bottom-right exclusive.
//
// # Returned Images
//
// Every function returns a freshly allocated image whose bounds start at
// (0,0). Callers may keep or mutate results without affecting the source
// frame.
package imaging
