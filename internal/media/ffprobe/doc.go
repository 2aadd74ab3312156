// Package ffprobe measures recording durations with ffprobe.
package ffprobe
