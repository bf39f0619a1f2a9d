package embedset

import (
	"errors"
	"fmt"
	"log/slog"
)

// Option configures DatasetReader or JobPoller construction.
// Using an option with a constructor it does not apply to returns an error.
type Option interface {
	applyReader(*readerConfig) error
	applyPoller(*pollerConfig) error
}

// ErrOptionNotValidForReader indicates a poller-only option passed to NewDatasetReader.
var ErrOptionNotValidForReader = errors.New("option not valid for dataset reader")

// ErrOptionNotValidForPoller indicates a reader-only option passed to NewJobPoller.
var ErrOptionNotValidForPoller = errors.New("option not valid for job poller")

// loggerOption implements Option for WithLogger.
type loggerOption struct {
	logger *slog.Logger
}

// WithLogger sets the logger for a reader or poller.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return &loggerOption{logger: l}
}

func (o *loggerOption) applyReader(cfg *readerConfig) error {
	cfg.logger = o.logger
	return nil
}

func (o *loggerOption) applyPoller(cfg *pollerConfig) error {
	cfg.logger = o.logger
	return nil
}

// decoderOption implements Option for WithDecoder (reader-only).
type decoderOption struct {
	decoder RecordDecoder
}

// WithDecoder sets the decoder applied to every part.
// Default: NewAvroDecoder().
func WithDecoder(d RecordDecoder) Option {
	return &decoderOption{decoder: d}
}

func (o *decoderOption) applyReader(cfg *readerConfig) error {
	cfg.decoder = o.decoder
	return nil
}

func (o *decoderOption) applyPoller(*pollerConfig) error {
	return fmt.Errorf("WithDecoder: %w", ErrOptionNotValidForPoller)
}

// clockOption implements Option for WithClock (poller-only).
type clockOption struct {
	clock Clock
}

// WithClock sets the time source used for deadlines and interval sleeps.
// Default: the system clock.
func WithClock(c Clock) Option {
	return &clockOption{clock: c}
}

func (o *clockOption) applyReader(*readerConfig) error {
	return fmt.Errorf("WithClock: %w", ErrOptionNotValidForReader)
}

func (o *clockOption) applyPoller(cfg *pollerConfig) error {
	cfg.clock = o.clock
	return nil
}
