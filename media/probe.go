package media

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// ProbeFileInfo fills in the duration/resolution fields of a VideoInfo from
// a local file via ffprobe, retried with the same posture as the extractor
// metadata probe (spec §4.3 "VideoInfo duration/resolution probing where the
// extractor's own metadata is insufficient" - used for Mode B chat
// attachments, which have no extractor metadata at all).
func ProbeFileInfo(ctx context.Context, path string) (durationSecs float64, resolution string, err error) {
	var data *ffprobe.ProbeData

	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		d, perr := ffprobe.ProbeURL(probeCtx, path)
		if perr != nil {
			return perr
		}
		data = d
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, 3)); err != nil {
		return 0, "", fmt.Errorf("probing %q: %w", path, err)
	}

	if data.Format != nil {
		durationSecs = data.Format.DurationSeconds
	}
	if vs := data.FirstVideoStream(); vs != nil {
		resolution = strconv.Itoa(vs.Width) + "x" + strconv.Itoa(vs.Height)
		if durationSecs == 0 {
			if d, perr := strconv.ParseFloat(vs.Duration, 64); perr == nil {
				durationSecs = d
			}
		}
	}
	return durationSecs, resolution, nil
}
