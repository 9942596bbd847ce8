package jp2k

import (
	"fmt"
	"log/slog"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
	"github.com/jpfielding/jpeg2000.go/pkg/engine/standard"
)

// DecodeConfig controls a single decode call
type DecodeConfig struct {
	// DefaultColorSpace is used when the codestream leaves the color space unspecified
	DefaultColorSpace *ColorSpace
	// DiscardLevel drops the finest resolution levels: each level halves the
	// output size, rounding upwards
	DiscardLevel uint32
}

// DefaultDecodeConfig decodes at full resolution with no color space fallback
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{}
}

// WithDefaultColorSpace returns a copy of c that falls back to cs
func (c DecodeConfig) WithDefaultColorSpace(cs ColorSpace) DecodeConfig {
	c.DefaultColorSpace = &cs
	return c
}

// Validate rejects configurations no engine can honour
func (c DecodeConfig) Validate() error {
	if c.DiscardLevel >= 32 {
		return fmt.Errorf("%w: %d", ErrInvalidDiscardLevel, c.DiscardLevel)
	}
	return nil
}

// Option configures the collaborators of a decode call
type Option func(*options)

type options struct {
	engine engine.Engine
	logger *slog.Logger
}

// WithEngine selects the decoding engine (default: the standard engine)
func WithEngine(e engine.Engine) Option {
	return func(o *options) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithLogger receives engine diagnostics and decode progress (default: discarded)
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = standard.New()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
