// Package ffprobe wraps the ffprobe binary for audio file inspection.
package ffprobe
