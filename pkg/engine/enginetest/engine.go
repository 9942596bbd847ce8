// Package enginetest provides a scriptable engine.Engine that records every
// call and tracks handle ownership, for testing decode orchestration without
// a real codec.
package enginetest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
)

// ErrRejected is the default failure injected by the Fail* fields
var ErrRejected = errors.New("rejected by test engine")

// Message is a diagnostic the engine emits during Decode
type Message struct {
	Level string // info, warning or error
	Text  string
}

// Engine is a mock engine. Configure the exported fields before use.
type Engine struct {
	// Image is returned (as a copy) by ReadHeader
	Image *engine.Image
	// HeaderBytes is how many bytes ReadHeader pulls through the stream
	HeaderBytes int
	// Messages are sent to the registered handlers during Decode
	Messages []Message

	RejectKinds  []engine.CodecKind
	FailStream   error
	FailSetup    error
	FailHeader   error
	FailDecode   error
	HeaderNilImg bool // ReadHeader returns (nil, nil)

	// Kind, Params and Path record the arguments of the last CreateDecoder,
	// SetupDecoder and CreateFileStream
	Kind   engine.CodecKind
	Params engine.Parameters
	Path   string
	// Read holds the bytes ReadHeader pulled through the stream and Length
	// the length declared to the last CreateStream
	Read   []byte
	Length uint64
	Calls  []string

	nextID   int
	live     map[int]string
	images   map[*engine.Image]int
	released int
	double   []string
}

type codec struct {
	id       int
	handlers engine.Handlers
}

type stream struct {
	id    int
	funcs engine.StreamFuncs
}

func (e *Engine) acquire(what string) int {
	if e.live == nil {
		e.live = map[int]string{}
	}
	e.nextID++
	e.live[e.nextID] = what
	return e.nextID
}

func (e *Engine) drop(id int, what string) {
	if _, ok := e.live[id]; !ok {
		e.double = append(e.double, fmt.Sprintf("%s#%d", what, id))
		return
	}
	delete(e.live, id)
	e.released++
}

func (e *Engine) call(name string) { e.Calls = append(e.Calls, name) }

// Outstanding lists the handles that were acquired and not yet released
func (e *Engine) Outstanding() []string {
	var out []string
	for id, what := range e.live {
		out = append(out, fmt.Sprintf("%s#%d", what, id))
	}
	slices.Sort(out)
	return out
}

// Acquired is the number of handles ever handed out
func (e *Engine) Acquired() int { return e.nextID }

// Released is the number of successful releases
func (e *Engine) Released() int { return e.released }

// DoubleReleases lists releases of handles that were not live
func (e *Engine) DoubleReleases() []string { return e.double }

// Count is the number of times a call was made
func (e *Engine) Count(name string) int {
	n := 0
	for _, c := range e.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (e *Engine) CreateDecoder(kind engine.CodecKind) (engine.Codec, error) {
	e.call("CreateDecoder")
	e.Kind = kind
	if slices.Contains(e.RejectKinds, kind) {
		return nil, fmt.Errorf("%w: codec %s", ErrRejected, kind)
	}
	return &codec{id: e.acquire("codec")}, nil
}

func (e *Engine) SetHandlers(c engine.Codec, h engine.Handlers) {
	e.call("SetHandlers")
	if cc, ok := c.(*codec); ok {
		cc.handlers = h
	}
}

func (e *Engine) SetupDecoder(c engine.Codec, p *engine.Parameters) error {
	e.call("SetupDecoder")
	e.Params = *p
	return e.FailSetup
}

func (e *Engine) ReadHeader(s engine.Stream, c engine.Codec) (*engine.Image, error) {
	e.call("ReadHeader")
	if st, ok := s.(*stream); ok && st.funcs.Read != nil && e.HeaderBytes > 0 {
		buf := make([]byte, e.HeaderBytes)
		n := st.funcs.Read(buf)
		e.Read = append(e.Read, buf[:n]...)
	}
	if e.FailHeader != nil {
		return nil, e.FailHeader
	}
	if e.HeaderNilImg || e.Image == nil {
		return nil, nil
	}
	img := *e.Image
	img.Comps = slices.Clone(e.Image.Comps)
	if e.images == nil {
		e.images = map[*engine.Image]int{}
	}
	e.images[&img] = e.acquire("image")
	return &img, nil
}

func (e *Engine) Decode(c engine.Codec, s engine.Stream, img *engine.Image) error {
	e.call("Decode")
	if cc, ok := c.(*codec); ok {
		for _, m := range e.Messages {
			var fn engine.MessageFunc
			switch m.Level {
			case "info":
				fn = cc.handlers.Info
			case "warning":
				fn = cc.handlers.Warning
			default:
				fn = cc.handlers.Error
			}
			if fn != nil {
				fn(m.Text)
			}
		}
	}
	return e.FailDecode
}

func (e *Engine) CreateStream(funcs engine.StreamFuncs, length uint64) (engine.Stream, error) {
	e.call("CreateStream")
	if e.FailStream != nil {
		return nil, e.FailStream
	}
	e.Length = length
	return &stream{id: e.acquire("stream"), funcs: funcs}, nil
}

func (e *Engine) CreateFileStream(path string) (engine.Stream, error) {
	e.call("CreateFileStream")
	e.Path = path
	if e.FailStream != nil {
		return nil, e.FailStream
	}
	return &stream{id: e.acquire("stream")}, nil
}

func (e *Engine) DestroyStream(s engine.Stream) {
	e.call("DestroyStream")
	if st, ok := s.(*stream); ok {
		e.drop(st.id, "stream")
	}
}

func (e *Engine) DestroyCodec(c engine.Codec) {
	e.call("DestroyCodec")
	if cc, ok := c.(*codec); ok {
		e.drop(cc.id, "codec")
	}
}

func (e *Engine) DestroyImage(img *engine.Image) {
	e.call("DestroyImage")
	id, ok := e.images[img]
	if !ok {
		e.double = append(e.double, "image")
		return
	}
	e.drop(id, "image")
}

var _ engine.Engine = (*Engine)(nil)
