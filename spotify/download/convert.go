package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/errutil"
)

// Convert transcodes raw audio bytes to the target container format with
// ffmpeg, streaming through stdin/stdout so no intermediate file is
// written.
func Convert(ctx context.Context, raw []byte, targetFormat string, bitrateKbps int) ([]byte, error) {
	convertCtx, cancel := context.WithTimeout(ctx, config.ConvertTimeout)
	defer cancel()

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-f", targetFormat,
		"pipe:1",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(convertCtx, "ffmpeg", args...)
	cmd.Stdin = bytes.NewReader(raw)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(convertCtx.Err(), context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			flawP := flaw.P{
				"target_format":  targetFormat,
				"bitrate_kbps":   bitrateKbps,
				"stderr":         stderr.String(),
				"err_debug_tree": errutil.Tree(err).FlawP(),
			}
			return nil, flaw.From(fmt.Errorf("failed to run ffmpeg: %v", err)).Append(flawP)
		}
	}

	return stdout.Bytes(), nil
}
