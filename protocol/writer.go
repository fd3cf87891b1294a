package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/metric"
)

// ErrOutput marks a failure to write to the host. It is always fatal.
var ErrOutput = stderrors.New("output stream failed")

// WriterConfig configures a Writer
type WriterConfig struct {
	Header Header
	// MinInterval is the minimum spacing between two frames. Zero writes
	// frames as fast as the aggregator produces them.
	MinInterval time.Duration
	Logger      *slog.Logger
	Metrics     *metric.Metrics
}

// Writer serializes snapshots onto the host's stdin.
//
// The header and every frame are each written with a single Write call, so
// the host never sees a partial frame. Writer methods are safe for concurrent
// use but the aggregator is the only caller in practice.
type Writer struct {
	out     io.Writer
	header  Header
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metric.Metrics

	mu            sync.Mutex
	headerWritten bool
	frames        int
}

// NewWriter creates a protocol writer on out
func NewWriter(out io.Writer, cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	header := cfg.Header
	if header.Version == 0 {
		header = DefaultHeader()
	}

	w := &Writer{
		out:     out,
		header:  header,
		logger:  logger.With("component", "protocol-writer"),
		metrics: cfg.Metrics,
	}
	if cfg.MinInterval > 0 {
		w.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
		// Drain the initial token so the wait after the first frame
		// already spaces it from the second.
		w.limiter.Allow()
	}
	return w
}

// WriteHeader writes the header object followed by the opening bracket of
// the infinite frame array. It is a no-op after the first call.
func (w *Writer) WriteHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.headerWritten {
		return nil
	}

	data, err := json.Marshal(w.header)
	if err != nil {
		return errors.WrapFatal(err, "Writer", "WriteHeader", "header encoding")
	}
	data = append(data, "\n[\n"...)

	if _, err := w.out.Write(data); err != nil {
		return errors.WrapFatal(stderrors.Join(ErrOutput, err), "Writer", "WriteHeader", "header write")
	}
	w.headerWritten = true
	return nil
}

// WriteFrame writes one snapshot. The header is written first if needed.
func (w *Writer) WriteFrame(blocks []Block) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := EncodeFrame(blocks, w.frames == 0)
	if err != nil {
		return errors.WrapFatal(err, "Writer", "WriteFrame", "frame encoding")
	}

	start := time.Now()
	if _, err := w.out.Write(data); err != nil {
		return errors.WrapFatal(stderrors.Join(ErrOutput, err), "Writer", "WriteFrame", "frame write")
	}
	w.frames++
	w.metrics.RecordFrame(time.Since(start))
	return nil
}

// Frames returns the number of frames written so far
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Run writes every snapshot received on frames and reports the outcome of
// each on written. After a successful write it waits out MinInterval before
// acknowledging, which keeps the aggregator coalescing in the meantime.
//
// Run returns nil once frames is closed, or the fatal write error. ctx only
// bounds the rate-limit wait so a final flush still goes out during shutdown.
func (w *Writer) Run(ctx context.Context, frames <-chan []Block, written chan<- error) error {
	for blocks := range frames {
		err := w.WriteFrame(blocks)
		if err == nil && w.limiter != nil {
			if waitErr := w.limiter.Wait(ctx); waitErr != nil {
				w.logger.Debug("frame rate wait interrupted", "error", waitErr)
			}
		}
		written <- err
		if err != nil {
			w.logger.Error("Failed to write frame", "error", err)
			return err
		}
	}
	return nil
}

// EncodeFrame renders blocks as one frame line. Every frame after the first
// carries a leading comma.
func EncodeFrame(blocks []Block, first bool) ([]byte, error) {
	if blocks == nil {
		blocks = []Block{}
	}
	var buf bytes.Buffer
	if !first {
		buf.WriteByte(',')
	}
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode terminates the value with '\n'
	if err := enc.Encode(blocks); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
