package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Prober reads media duration with ffprobe.
type Prober struct {
	path   string
	runner commandRunner
}

// NewProber creates a prober using the ffprobe executable at path.
func NewProber(path string) *Prober {
	if strings.TrimSpace(path) == "" {
		path = "ffprobe"
	}
	return &Prober{path: path, runner: execRunner{}}
}

// Duration returns the media duration of input in seconds.
func (p *Prober) Duration(ctx context.Context, input string) (float64, error) {
	res, err := p.runner.Run(ctx, "", p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", input, err)
	}

	value := strings.TrimSpace(res.Stdout)
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("ffprobe %s: unexpected duration %q", input, value)
	}
	return seconds, nil
}
