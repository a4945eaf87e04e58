// Package audio estimates track duration from encoded file size.
// The actual waveform cutting happens on the GPU worker; this package
// only has to decide whether a split is needed at all.
package audio

import "math"

// DefaultBytesPerSecond corresponds to 128 kbps MP3, the format the
// TTS providers return.
const DefaultBytesPerSecond = 16 * 1024

// EstimateDuration derives a whole-second duration from encoded file
// size. It is a bitrate heuristic, not a decode; the remote splitter
// cuts on real timestamps, so this only has to be good enough to pick
// between the single-clip and chunked paths.
func EstimateDuration(sizeBytes int, bytesPerSecond int) int {
	if sizeBytes <= 0 {
		return 0
	}
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultBytesPerSecond
	}
	return int(math.Ceil(float64(sizeBytes) / float64(bytesPerSecond)))
}
