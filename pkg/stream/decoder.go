package stream

import (
	"context"
	"io"
	"strings"

	"agent-chat-engine/internal/pkg/logger"
)

const (
	// recordDelimiter separates SSE records on the wire.
	recordDelimiter = "\n\n"

	// dataPrefix marks a payload line inside a record.
	dataPrefix = "data: "

	// doneSentinel is the end-of-turn marker. It is consumed here and
	// never forwarded downstream.
	doneSentinel = "[DONE]"

	readBufferSize = 4096
)

// Decoder turns an arbitrarily chunked SSE byte stream into complete
// records. Records are produced on a channel by a single goroutine and
// consumed by the turn loop, so arrival order is preserved end to end.
//
// The transport may split one record across chunks or batch several
// records into one chunk; the decoder keeps a residual buffer and only
// ever emits records that are fully delimited.
type Decoder struct {
	records chan string
	err     error
	done    chan struct{}
}

func NewDecoder(ctx context.Context, r io.Reader, log logger.ILogger) *Decoder {
	d := &Decoder{
		records: make(chan string),
		done:    make(chan struct{}),
	}
	go d.run(ctx, r, log)
	return d
}

// Records yields complete records in arrival order. The channel is
// closed at end-of-stream, after which Err reports any transport
// failure.
func (d *Decoder) Records() <-chan string {
	return d.records
}

// Err is valid once Records has been drained.
func (d *Decoder) Err() error {
	<-d.done
	return d.err
}

func (d *Decoder) run(ctx context.Context, r io.Reader, log logger.ILogger) {
	defer close(d.done)
	defer close(d.records)

	var residual string
	buf := make([]byte, readBufferSize)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			residual += string(buf[:n])
			parts := strings.Split(residual, recordDelimiter)
			// The final part is either empty or an incomplete fragment;
			// it stays in the buffer for the next chunk.
			residual = parts[len(parts)-1]
			for _, record := range parts[:len(parts)-1] {
				record = dropSentinelLines(record)
				if record == "" {
					continue
				}
				select {
				case d.records <- record:
				case <-ctx.Done():
					return
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				d.err = readErr
			}
			if strings.TrimSpace(residual) != "" {
				log.Debug("Decoder", "Discarding incomplete trailing fragment", map[string]interface{}{
					"bytes": len(residual),
				})
			}
			return
		}
	}
}

// dropSentinelLines removes end-of-turn marker lines. Only the marker
// line is discarded: a record that batches a payload line with the
// marker keeps its payload.
func dropSentinelLines(record string) string {
	if !strings.Contains(record, doneSentinel) {
		return record
	}
	var kept []string
	for _, line := range strings.Split(record, "\n") {
		if line == dataPrefix+doneSentinel {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
