package stream

import (
	"context"
	"errors"
	"io"
	"testing"

	"agent-chat-engine/internal/pkg/logger"
)

// chunkReader serves a fixed sequence of chunks, one per Read call,
// simulating arbitrary transport chunking.
type chunkReader struct {
	chunks []string
	pos    int
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.chunks) {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.pos])
	r.pos++
	return n, nil
}

func collect(t *testing.T, d *Decoder) []string {
	t.Helper()
	var records []string
	for record := range d.Records() {
		records = append(records, record)
	}
	return records
}

func TestDecoderChunking(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "single complete record",
			chunks: []string{"data: {\"type\":\"text\"}\n\n"},
			want:   []string{"data: {\"type\":\"text\"}"},
		},
		{
			name:   "record split mid payload",
			chunks: []string{"data: {\"type\":", "\"text\",\"text\":\"hi\"}\n\n"},
			want:   []string{"data: {\"type\":\"text\",\"text\":\"hi\"}"},
		},
		{
			name:   "delimiter split across chunks",
			chunks: []string{"data: {\"type\":\"status\"}\n", "\ndata: {\"type\":\"text\"}\n\n"},
			want:   []string{"data: {\"type\":\"status\"}", "data: {\"type\":\"text\"}"},
		},
		{
			name:   "several records in one chunk",
			chunks: []string{"data: a\n\ndata: b\n\ndata: c\n\n"},
			want:   []string{"data: a", "data: b", "data: c"},
		},
		{
			name:   "byte at a time",
			chunks: []string{"d", "a", "t", "a", ":", " ", "x", "\n", "\n"},
			want:   []string{"data: x"},
		},
		{
			name:   "done sentinel is swallowed",
			chunks: []string{"data: {\"type\":\"text\"}\n\ndata: [DONE]\n\n"},
			want:   []string{"data: {\"type\":\"text\"}"},
		},
		{
			name:   "payload kept when batched with sentinel line",
			chunks: []string{"data: {\"type\":\"text\",\"text\":\"final\"}\ndata: [DONE]\n\n"},
			want:   []string{"data: {\"type\":\"text\",\"text\":\"final\"}"},
		},
		{
			name:   "trailing fragment discarded at EOF",
			chunks: []string{"data: {\"type\":\"text\"}\n\ndata: {\"type\":\"trunc"},
			want:   []string{"data: {\"type\":\"text\"}"},
		},
		{
			name:   "empty records skipped",
			chunks: []string{"\n\n\n\ndata: x\n\n"},
			want:   []string{"data: x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(context.Background(), &chunkReader{chunks: tt.chunks}, logger.NewNopLogger())
			got := collect(t, d)

			if len(got) != len(tt.want) {
				t.Fatalf("got %d records %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("record %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
			if err := d.Err(); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecoderReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := &chunkReader{chunks: []string{"data: {\"type\":\"text\"}\n\n"}, err: boom}

	d := NewDecoder(context.Background(), r, logger.NewNopLogger())
	got := collect(t, d)

	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if err := d.Err(); !errors.Is(err, boom) {
		t.Errorf("Err() = %v, want %v", err, boom)
	}
}

func TestDecoderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With the consumer gone, the producer must exit on ctx instead of
	// blocking on the unbuffered channel forever.
	d := NewDecoder(ctx, &chunkReader{chunks: []string{"data: a\n\ndata: b\n\n"}}, logger.NewNopLogger())
	if err := d.Err(); err != nil {
		t.Errorf("Err() = %v, want nil on cancel", err)
	}
}
