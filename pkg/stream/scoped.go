package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/format"
)

// WithWriter creates a Writer over w, runs fn with it, and always closes the
// Writer afterwards. The sink is closed even when the header cannot be
// written. If fn fails, the close is best-effort: its error is
// logged at debug level and fn's error is returned. Otherwise the close error
// is returned, so a nil result means every record reached the sink.
func WithWriter(ctx context.Context, w io.Writer, h format.Header, opts *WriterOptions, fn func(*Writer) error) error {
	sw, err := NewWriter(w, h, opts)
	if err != nil {
		if c, ok := w.(io.Closer); ok {
			_ = c.Close()
		}
		return err
	}

	if err := fn(sw); err != nil {
		if cerr := sw.Close(); cerr != nil {
			log := logctx.FromContext(ctx)
			log.Debug().
				Err(cerr).
				Uint64("records_count", sw.Records()).
				Msg("discarding writer after failure")
		}
		return err
	}

	if err := sw.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
