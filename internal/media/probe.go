package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Wait blocks on output pipes after the process is killed.
const waitDelay = 2 * time.Second

// ErrNoVideoStreams is returned when ffprobe succeeds but reports no video stream.
var ErrNoVideoStreams = errors.New("no video streams found")

// Dimensions of the first video stream in a file.
type Dimensions struct {
	Width  int
	Height int
}

// Prober reads stream dimensions from a local media file.
type Prober interface {
	Probe(ctx context.Context, path string) (Dimensions, error)
}

// ProbeError is returned for any failure to obtain dimensions from ffprobe.
// Stderr holds whatever the process wrote there and must not be shown to clients.
type ProbeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffprobe %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("ffprobe %s: %v: %s", e.Path, e.Err, e.Stderr)
}

func (e *ProbeError) Unwrap() error { return e.Err }

type ffprobeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

// FFProbe runs the ffprobe binary.
type FFProbe struct {
	BinPath string
}

var _ Prober = FFProbe{}

func (p FFProbe) Probe(ctx context.Context, path string) (Dimensions, error) {
	bin := p.BinPath
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-print_format", "json",
		path,
	)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return Dimensions{}, &ProbeError{Path: path, Stderr: strings.TrimSpace(errOut.String()), Err: err}
	}

	dims, err := parseProbeOutput(out.Bytes())
	if err != nil {
		return Dimensions{}, &ProbeError{Path: path, Stderr: strings.TrimSpace(errOut.String()), Err: err}
	}
	return dims, nil
}

// parseProbeOutput is split out so the JSON handling can be tested without ffprobe.
func parseProbeOutput(data []byte) (Dimensions, error) {
	var probed ffprobeOutput
	if err := json.Unmarshal(data, &probed); err != nil {
		return Dimensions{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probed.Streams) == 0 {
		return Dimensions{}, ErrNoVideoStreams
	}

	s := probed.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Dimensions{}, fmt.Errorf("invalid stream dimensions %dx%d", s.Width, s.Height)
	}
	return Dimensions{Width: s.Width, Height: s.Height}, nil
}
