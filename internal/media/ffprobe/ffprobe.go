package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// showEntries limits ffprobe output to what duration checks read.
const showEntries = "format=duration:stream=codec_type,duration"

// Prober measures recording durations with a per-call timeout.
type Prober struct {
	Binary  string
	Timeout time.Duration
}

// Duration returns the media duration of path.
func (p Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("ffprobe: empty path")
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-show_entries", showEntries, "-of", "json", "--", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, msg)
		}
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	d, err := ParseDuration(stdout.Bytes())
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return d, nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// ParseDuration reads the container duration from ffprobe JSON output.
// Live FLV recordings often carry no container duration, so the longest
// stream is used instead.
func ParseDuration(data []byte) (time.Duration, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("decode output: %w", err)
	}
	secs := seconds(out.Format.Duration)
	if secs == 0 {
		for _, s := range out.Streams {
			secs = max(secs, seconds(s.Duration))
		}
	}
	if secs == 0 {
		return 0, errors.New("no duration reported")
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// seconds parses an ffprobe duration; malformed and negative values are 0.
func seconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
