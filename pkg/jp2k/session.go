package jp2k

import (
	"fmt"
	"log/slog"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
	"github.com/jpfielding/jpeg2000.go/pkg/util"
)

// SessionState tracks where a Session is in the engine lifecycle
type SessionState int

const (
	StateCreated SessionState = iota
	StateConfigured
	StateHeaderRead
	StateDecoded
	StateClosed
	StateFailed
)

// String returns the state name
func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateHeaderRead:
		return "header-read"
	case StateDecoded:
		return "decoded"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session owns the stream, codec and image handles of one decode call.
// Any failing step releases every handle and leaves the session Failed;
// Close releases whatever is still held and may be called any number of times.
// A Session is not safe for concurrent use.
type Session struct {
	eng   engine.Engine
	log   *slog.Logger
	state SessionState

	stream engine.Stream
	codec  engine.Codec
	image  *engine.Image
}

// NewSession takes ownership of stream, which is released by Close even if
// Open is never called
func NewSession(eng engine.Engine, stream engine.Stream, log *slog.Logger) *Session {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Session{
		eng:    eng,
		log:    log.With(slog.String("session", util.NewSessionID())),
		stream: stream,
	}
}

// State is the current lifecycle state
func (s *Session) State() SessionState { return s.state }

// Image is the descriptor once the header has been read, nil otherwise
func (s *Session) Image() *engine.Image { return s.image }

// Open instantiates the decoder for kind and registers diagnostic handlers
func (s *Session) Open(kind engine.CodecKind) error {
	if err := s.expect(StateCreated); err != nil {
		return err
	}
	if s.codec != nil {
		return s.fail(fmt.Errorf("%w: decoder already open", ErrInvalidState))
	}
	codec, err := s.eng.CreateDecoder(kind)
	if err != nil || codec == nil {
		return s.fail(&EngineError{Op: "create decoder " + kind.String(), Err: err})
	}
	s.codec = codec
	s.log = s.log.With(slog.String("codec", kind.String()))
	s.eng.SetHandlers(codec, engine.Handlers{
		Info:    func(msg string) { s.log.Info(msg, slog.String("source", "engine")) },
		Warning: func(msg string) { s.log.Warn(msg, slog.String("source", "engine")) },
		Error:   func(msg string) { s.log.Error(msg, slog.String("source", "engine")) },
	})
	return nil
}

// Configure applies default parameters with the requested discard level
func (s *Session) Configure(discardLevel uint32) error {
	if err := s.expect(StateCreated); err != nil {
		return err
	}
	if s.codec == nil {
		return s.fail(fmt.Errorf("%w: configure before open", ErrInvalidState))
	}
	params := engine.DefaultParameters()
	params.Reduce = discardLevel
	if err := s.eng.SetupDecoder(s.codec, &params); err != nil {
		return s.fail(&EngineError{Op: "setup decoder", Err: err})
	}
	s.state = StateConfigured
	return nil
}

// ReadHeader parses the main header into the image descriptor
func (s *Session) ReadHeader() error {
	if err := s.expect(StateConfigured); err != nil {
		return err
	}
	img, err := s.eng.ReadHeader(s.stream, s.codec)
	if img != nil {
		s.image = img
	}
	if err != nil || img == nil {
		if err == nil {
			return s.fail(ErrHeaderRead)
		}
		return s.fail(fmt.Errorf("%w: %w", ErrHeaderRead, err))
	}
	for i, c := range img.Comps {
		if c.Signed {
			return s.fail(fmt.Errorf("%w: component %d", ErrSignedSamples, i))
		}
	}
	s.log.Debug("header read",
		slog.Int("width", int(img.Width())),
		slog.Int("height", int(img.Height())),
		slog.Int("components", len(img.Comps)),
		slog.Int("color_space", int(img.ColorSpace)),
		slog.Int("icc_profile_len", int(img.ICCProfileLen)))
	s.state = StateHeaderRead
	return nil
}

// DecodeImage decodes every component and releases the input stream
func (s *Session) DecodeImage() error {
	if err := s.expect(StateHeaderRead); err != nil {
		return err
	}
	if err := s.eng.Decode(s.codec, s.stream, s.image); err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrDecode, err))
	}
	s.releaseStream()
	s.state = StateDecoded
	return nil
}

// Close releases stream, codec and image. Only the first call does any work.
func (s *Session) Close() error {
	s.release()
	if s.state != StateFailed {
		s.state = StateClosed
	}
	return nil
}

func (s *Session) expect(want SessionState) error {
	if s.state == want {
		return nil
	}
	err := fmt.Errorf("%w: %s, want %s", ErrInvalidState, s.state, want)
	if s.state == StateClosed || s.state == StateFailed {
		return err
	}
	return s.fail(err)
}

// fail moves to Failed after releasing everything
func (s *Session) fail(err error) error {
	s.release()
	s.state = StateFailed
	s.log.Debug("session failed", slog.Any("error", err))
	return err
}

func (s *Session) release() {
	s.releaseStream()
	if s.codec != nil {
		c := s.codec
		s.codec = nil
		s.eng.DestroyCodec(c)
	}
	if s.image != nil {
		img := s.image
		s.image = nil
		s.eng.DestroyImage(img)
	}
}

func (s *Session) releaseStream() {
	if s.stream != nil {
		st := s.stream
		s.stream = nil
		s.eng.DestroyStream(st)
	}
}
