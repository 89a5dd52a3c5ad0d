package blobio

import "github.com/dreamware/hermes/internal/target"

// extent is one buffer's position in a blob's logical byte range.
type extent struct {
	buf   target.BufferInfo
	start int64
	end   int64 // exclusive
}

// buildExtents lays buffers out end to end starting at offset 0, the
// ordering convention doc.go describes.
func buildExtents(buffers []target.BufferInfo) []extent {
	out := make([]extent, 0, len(buffers))
	var pos int64
	for _, b := range buffers {
		out = append(out, extent{buf: b, start: pos, end: pos + b.Size})
		pos += b.Size
	}
	return out
}

// totalSize returns the sum of every buffer's size, i.e. the end of the
// last extent.
func totalSize(buffers []target.BufferInfo) int64 {
	var total int64
	for _, b := range buffers {
		total += b.Size
	}
	return total
}

// overlapping returns every extent that intersects [start, end).
func overlapping(extents []extent, start, end int64) []extent {
	var out []extent
	for _, e := range extents {
		if e.end <= start || e.start >= end {
			continue
		}
		out = append(out, e)
	}
	return out
}
