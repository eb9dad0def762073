package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ProcessedSuffix is appended to an input path to name the remuxed output.
const ProcessedSuffix = ".processed"

// Remuxer rewrites a video so its moov atom sits at the front of the file.
// The caller owns both the input and the returned output path.
type Remuxer interface {
	FastStart(ctx context.Context, inputPath string) (string, error)
}

// TranscodeError is returned when ffmpeg fails to produce the fast-start copy.
type TranscodeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg faststart %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("ffmpeg faststart %s: %v: %s", e.Path, e.Err, e.Stderr)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// FFmpeg runs the ffmpeg binary with stream copy, so nothing is re-encoded.
type FFmpeg struct {
	BinPath string
}

var _ Remuxer = FFmpeg{}

func (f FFmpeg) FastStart(ctx context.Context, inputPath string) (string, error) {
	bin := f.BinPath
	if bin == "" {
		bin = "ffmpeg"
	}

	outputPath := inputPath + ProcessedSuffix
	cmd := exec.CommandContext(ctx, bin, fastStartArgs(inputPath, outputPath)...)
	var errOut bytes.Buffer
	cmd.Stderr = &errOut
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", &TranscodeError{Path: inputPath, Stderr: strings.TrimSpace(errOut.String()), Err: err}
	}
	return outputPath, nil
}

func fastStartArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-movflags", "faststart",
		"-map_metadata", "0",
		"-codec", "copy",
		"-f", "mp4",
		outputPath,
	}
}
