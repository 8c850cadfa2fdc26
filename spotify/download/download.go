// Package download drains track audio streams in bounded chunks, tolerating
// transient stalls up to a fixed ceiling and pacing requests between
// downloads.
package download

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/errutil"
	"github.com/xeptore/spotd/mathutil"
	"github.com/xeptore/spotd/must"
	"github.com/xeptore/spotd/ratelimit"
)

// ErrStreamCorrupted reports a fatal stream fault, an out-of-range read or
// protocol violation. It is never retried within a download.
var ErrStreamCorrupted = errors.New("stream corrupted")

// Session is one open audio stream with a known total size. ReadChunk
// returns up to n bytes. A zero-length chunk with a nil error is a
// transient stall, not a failure.
type Session interface {
	TotalSize() int
	ReadChunk(ctx context.Context, n int) ([]byte, error)
	Close() error
}

// Source opens audio streams for track ids.
type Source interface {
	Open(ctx context.Context, trackID string, qualityKbps int) (Session, error)
}

// Result is the drained stream. Complete is false when the stall ceiling
// was hit first. Callers must not persist an incomplete result as a
// finished artifact.
type Result struct {
	Bytes    []byte
	Complete bool
}

// ProgressFunc observes bytes accumulated so far against the stream total.
type ProgressFunc func(downloaded, total int)

type Downloader struct {
	logger zerolog.Logger
	source Source
	pacing time.Duration
}

func New(logger zerolog.Logger, source Source, pacing time.Duration) *Downloader {
	return &Downloader{logger: logger, source: source, pacing: pacing}
}

// Download opens a stream for the track and drains it. Whatever the
// outcome, the pacing delay is waited out before returning, so callers in
// a loop cannot hammer the stream source.
func (d *Downloader) Download(ctx context.Context, trackID string, qualityKbps int, onProgress ProgressFunc) (res *Result, err error) {
	session, err := d.source.Open(ctx, trackID, qualityKbps)
	if nil != err {
		return nil, err
	}
	defer func() {
		if closeErr := session.Close(); nil != closeErr {
			switch {
			case nil == err:
				err = closeErr
			case errutil.IsContext(ctx):
			case errors.Is(err, ErrStreamCorrupted):
			default:
				err = must.BeFlaw(err).Join(closeErr)
			}
		}
	}()

	res, err = d.drain(ctx, trackID, session, onProgress)
	if nil != err && errutil.IsContext(ctx) {
		return nil, ctx.Err()
	}

	if sleepErr := sleep(ctx, ratelimit.DownloadPacing(d.pacing)); nil != sleepErr {
		return nil, sleepErr
	}
	return res, err
}

func (d *Downloader) drain(ctx context.Context, trackID string, session Session, onProgress ProgressFunc) (*Result, error) {
	total := session.TotalSize()
	d.logger.Debug().
		Str("track_id", trackID).
		Int("total", total).
		Int("chunks", mathutil.CeilInts(total, config.DownloadChunkSize)).
		Msg("Draining stream")

	buf := make([]byte, 0, total)
	consecutiveEmptyReads := 0

	for len(buf) < total {
		if err := ctx.Err(); nil != err {
			return nil, err
		}

		chunk, err := session.ReadChunk(ctx, min(config.DownloadChunkSize, total-len(buf)))
		if nil != err {
			switch {
			case errutil.IsContext(ctx):
				return nil, ctx.Err()
			case errors.Is(err, ErrStreamCorrupted):
				d.logger.Warn().Str("track_id", trackID).Int("downloaded", len(buf)).Msg("Stream fault. Aborting download.")
				return nil, err
			case errutil.IsFlaw(err):
				return nil, err
			default:
				panic(errutil.UnknownError(err))
			}
		}

		if len(chunk) == 0 {
			consecutiveEmptyReads++
			if consecutiveEmptyReads > config.MaxConsecutiveEmptyReads {
				d.logger.Warn().
					Str("track_id", trackID).
					Int("downloaded", len(buf)).
					Int("total", total).
					Msg("Stream stalled. Giving up with partial data.")
				break
			}
			continue
		}
		consecutiveEmptyReads = 0

		buf = append(buf, chunk...)
		if nil != onProgress {
			onProgress(len(buf), total)
		}
	}

	return &Result{Bytes: buf, Complete: len(buf) == total}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
