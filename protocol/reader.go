package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"

	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/metric"
)

// ErrInputClosed is returned by Reader.Run when the host closes stdin.
// Callers treat it as a shutdown request rather than a failure.
var ErrInputClosed = stderrors.New("input stream closed")

const maxLineSize = 1 << 20

// ReaderConfig configures a Reader
type ReaderConfig struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// Reader decodes click events from the host's stdout
type Reader struct {
	in      io.Reader
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewReader creates a protocol reader on in
func NewReader(in io.Reader, cfg ReaderConfig) *Reader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		in:      in,
		logger:  logger.With("component", "protocol-reader"),
		metrics: cfg.Metrics,
	}
}

type scanResult struct {
	line []byte
	err  error
}

// Run reads events until the input ends or ctx is cancelled, sending each
// valid event on out. Malformed lines are logged and skipped.
//
// The blocking read happens on a separate goroutine. If ctx is cancelled
// while that goroutine is parked in Read it stays parked until the input
// produces data or is closed; Run itself returns immediately.
func (r *Reader) Run(ctx context.Context, out chan<- ClickEvent) error {
	lines := make(chan scanResult)
	go r.scan(ctx, lines)

	opened := false
	for {
		var res scanResult
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok = <-lines:
		}

		if !ok {
			return ErrInputClosed
		}
		if res.err != nil {
			r.logger.Warn("Input stream read failed", "error", res.err)
			return stderrors.Join(ErrInputClosed, res.err)
		}

		line := bytes.TrimSpace(res.line)
		if len(line) == 0 {
			continue
		}
		if !opened {
			opened = true
			if line[0] == '[' {
				line = bytes.TrimSpace(line[1:])
				if len(line) == 0 {
					continue
				}
			} else {
				r.logger.Warn("Input did not start with an array bracket", "line", string(line))
			}
		}

		event, err := ParseClickLine(line)
		if err != nil {
			r.metrics.RecordMalformedClick()
			r.logger.Warn("Skipping malformed click event", "line", string(line), "error", err)
			continue
		}
		r.metrics.RecordClick()

		select {
		case out <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Reader) scan(ctx context.Context, lines chan<- scanResult) {
	defer close(lines)

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		// Scanner reuses its buffer between calls
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case lines <- scanResult{line: line}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case lines <- scanResult{err: err}:
		case <-ctx.Done():
		}
	}
}

// ParseClickLine decodes one line of the click event array. A leading comma
// is accepted; the line must otherwise hold exactly one JSON object.
func ParseClickLine(line []byte) (ClickEvent, error) {
	line = bytes.TrimSpace(line)
	line = bytes.TrimPrefix(line, []byte(","))
	line = bytes.TrimSpace(line)

	if len(line) == 0 || line[0] != '{' {
		return ClickEvent{}, errors.WrapInvalid(errors.ErrInvalidData, "Reader", "ParseClickLine", "object check")
	}

	var event ClickEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return ClickEvent{}, errors.WrapInvalid(stderrors.Join(errors.ErrParsingFailed, err), "Reader", "ParseClickLine", "event decode")
	}
	return event, nil
}
