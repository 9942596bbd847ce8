//go:build openjpeg && cgo

package openjpeg

/*
#cgo pkg-config: libopenjp2
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#ifndef __has_include
#define __has_include(x) 0
#endif
#if __has_include(<openjpeg-2.5/openjpeg.h>)
#include <openjpeg-2.5/openjpeg.h>
#elif __has_include(<openjpeg-2.4/openjpeg.h>)
#include <openjpeg-2.4/openjpeg.h>
#else
#include <openjpeg.h>
#endif

extern OPJ_SIZE_T goStreamRead(void *buf, OPJ_SIZE_T n, void *user);
extern OPJ_OFF_T goStreamSkip(OPJ_OFF_T n, void *user);
extern OPJ_BOOL goStreamSeek(OPJ_OFF_T off, void *user);
extern void goEngineMessage(int level, char *msg, void *user);

static OPJ_SIZE_T j2k_read(void *buf, OPJ_SIZE_T n, void *user) { return goStreamRead(buf, n, user); }
static OPJ_OFF_T j2k_skip(OPJ_OFF_T n, void *user) { return goStreamSkip(n, user); }
static OPJ_BOOL j2k_seek(OPJ_OFF_T off, void *user) { return goStreamSeek(off, user); }

static opj_stream_t* j2k_stream_create(void *user, OPJ_UINT64 length) {
	opj_stream_t *s = opj_stream_create(OPJ_J2K_STREAM_CHUNK_SIZE, OPJ_TRUE);
	if (!s) {
		return NULL;
	}
	opj_stream_set_user_data(s, user, NULL);
	opj_stream_set_user_data_length(s, length);
	opj_stream_set_read_function(s, j2k_read);
	opj_stream_set_skip_function(s, j2k_skip);
	opj_stream_set_seek_function(s, j2k_seek);
	return s;
}

static void j2k_info(const char *msg, void *user) { goEngineMessage(0, (char*)msg, user); }
static void j2k_warning(const char *msg, void *user) { goEngineMessage(1, (char*)msg, user); }
static void j2k_error(const char *msg, void *user) { goEngineMessage(2, (char*)msg, user); }

static void j2k_install_handlers(opj_codec_t *codec, void *user) {
	opj_set_info_handler(codec, j2k_info, user);
	opj_set_warning_handler(codec, j2k_warning, user);
	opj_set_error_handler(codec, j2k_error, user);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"strings"
	"sync"
	"unsafe"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
)

// Available reports whether libopenjp2 is linked in
const Available = true

// Errors returned by the binding
var (
	ErrBadHandle = errors.New("handle does not belong to the openjpeg engine")
	ErrFailed    = errors.New("openjpeg call failed")
)

// Engine drives libopenjp2
type Engine struct {
	// C images behind the descriptors handed out by ReadHeader
	images sync.Map // *engine.Image -> *C.opj_image_t
}

// New returns the libopenjp2 engine
func New() (engine.Engine, error) { return &Engine{}, nil }

// pinned is a cgo.Handle stored in C memory so C can carry it as user data
type pinned struct {
	handle cgo.Handle
	ptr    unsafe.Pointer
}

func pin(v any) *pinned {
	h := cgo.NewHandle(v)
	ptr := C.malloc(C.size_t(unsafe.Sizeof(h)))
	*(*cgo.Handle)(ptr) = h
	return &pinned{handle: h, ptr: ptr}
}

func (p *pinned) release() {
	if p == nil || p.ptr == nil {
		return
	}
	p.handle.Delete()
	C.free(p.ptr)
	p.ptr = nil
}

func unpin(ptr unsafe.Pointer) any {
	if ptr == nil {
		return nil
	}
	return (*(*cgo.Handle)(ptr)).Value()
}

type codec struct {
	ptr      *C.opj_codec_t
	user     *pinned
	handlers engine.Handlers
	params   engine.Parameters
	image    *C.opj_image_t
}

type stream struct {
	ptr   *C.opj_stream_t
	user  *pinned
	funcs engine.StreamFuncs
	pos   int64
}

//export goStreamRead
func goStreamRead(buf unsafe.Pointer, n C.OPJ_SIZE_T, user unsafe.Pointer) C.OPJ_SIZE_T {
	s, ok := unpin(user).(*stream)
	if !ok || n == 0 {
		return ^C.OPJ_SIZE_T(0)
	}
	read := s.funcs.Read(unsafe.Slice((*byte)(buf), int(n)))
	if read <= 0 {
		// end of stream
		return ^C.OPJ_SIZE_T(0)
	}
	s.pos += int64(read)
	return C.OPJ_SIZE_T(read)
}

//export goStreamSkip
func goStreamSkip(n C.OPJ_OFF_T, user unsafe.Pointer) C.OPJ_OFF_T {
	s, ok := unpin(user).(*stream)
	if !ok || s.funcs.Skip == nil {
		return -1
	}
	to := s.funcs.Skip(int64(n))
	skipped := to - s.pos
	s.pos = to
	return C.OPJ_OFF_T(skipped)
}

//export goStreamSeek
func goStreamSeek(off C.OPJ_OFF_T, user unsafe.Pointer) C.OPJ_BOOL {
	s, ok := unpin(user).(*stream)
	if !ok || s.funcs.Seek == nil || !s.funcs.Seek(int64(off)) {
		return C.OPJ_FALSE
	}
	s.pos = int64(off)
	return C.OPJ_TRUE
}

//export goEngineMessage
func goEngineMessage(level C.int, msg *C.char, user unsafe.Pointer) {
	c, ok := unpin(user).(*codec)
	if !ok || msg == nil {
		return
	}
	var fn engine.MessageFunc
	switch level {
	case 0:
		fn = c.handlers.Info
	case 1:
		fn = c.handlers.Warning
	default:
		fn = c.handlers.Error
	}
	if fn != nil {
		fn(strings.TrimRight(C.GoString(msg), "\n"))
	}
}

func codecFormat(kind engine.CodecKind) (C.OPJ_CODEC_FORMAT, bool) {
	switch kind {
	case engine.J2K:
		return C.OPJ_CODEC_J2K, true
	case engine.JP2:
		return C.OPJ_CODEC_JP2, true
	case engine.JPP:
		return C.OPJ_CODEC_JPP, true
	case engine.JPT:
		return C.OPJ_CODEC_JPT, true
	case engine.JPX:
		return C.OPJ_CODEC_JPX, true
	}
	return C.OPJ_CODEC_UNKNOWN, false
}

func (e *Engine) CreateDecoder(kind engine.CodecKind) (engine.Codec, error) {
	format, ok := codecFormat(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec kind %s", ErrFailed, kind)
	}
	ptr := C.opj_create_decompress(format)
	if ptr == nil {
		return nil, fmt.Errorf("%w: opj_create_decompress(%s)", ErrFailed, kind)
	}
	c := &codec{ptr: ptr, params: engine.DefaultParameters()}
	c.user = pin(c)
	C.j2k_install_handlers(ptr, c.user.ptr)
	return c, nil
}

func (e *Engine) SetHandlers(c engine.Codec, h engine.Handlers) {
	if cc, ok := c.(*codec); ok {
		cc.handlers = h
	}
}

func (e *Engine) SetupDecoder(c engine.Codec, p *engine.Parameters) error {
	cc, ok := c.(*codec)
	if !ok || cc.ptr == nil || p == nil {
		return ErrBadHandle
	}
	var params C.opj_dparameters_t
	C.opj_set_default_decoder_parameters(&params)
	params.cp_reduce = C.OPJ_UINT32(p.Reduce)
	params.cp_layer = C.OPJ_UINT32(p.Layer)
	if C.opj_setup_decoder(cc.ptr, &params) == C.OPJ_FALSE {
		return fmt.Errorf("%w: opj_setup_decoder", ErrFailed)
	}
	cc.params = *p
	return nil
}

func (e *Engine) ReadHeader(s engine.Stream, c engine.Codec) (*engine.Image, error) {
	cc, ok := c.(*codec)
	st, sok := s.(*stream)
	if !ok || !sok || cc.ptr == nil || st.ptr == nil {
		return nil, ErrBadHandle
	}
	var cimg *C.opj_image_t
	if C.opj_read_header(st.ptr, cc.ptr, &cimg) == C.OPJ_FALSE || cimg == nil {
		if cimg != nil {
			C.opj_image_destroy(cimg)
		}
		return nil, fmt.Errorf("%w: opj_read_header", ErrFailed)
	}
	img := describe(cimg)
	cc.image = cimg
	e.images.Store(img, cimg)
	return img, nil
}

// describe copies the C image descriptor; sample data is copied by Decode
func describe(cimg *C.opj_image_t) *engine.Image {
	img := &engine.Image{
		X0:            uint32(cimg.x0),
		Y0:            uint32(cimg.y0),
		X1:            uint32(cimg.x1),
		Y1:            uint32(cimg.y1),
		ColorSpace:    engine.ColorSpaceCode(cimg.color_space),
		ICCProfileLen: uint32(cimg.icc_profile_len),
		// opj_image_comp_t data is stored first row first
		BottomUp: false,
	}
	if cimg.numcomps == 0 || cimg.comps == nil {
		return img
	}
	for _, comp := range unsafe.Slice(cimg.comps, int(cimg.numcomps)) {
		img.Comps = append(img.Comps, engine.Component{
			DX:     uint32(comp.dx),
			DY:     uint32(comp.dy),
			W:      uint32(comp.w),
			H:      uint32(comp.h),
			X0:     uint32(comp.x0),
			Y0:     uint32(comp.y0),
			Factor: uint32(comp.factor),
			Prec:   uint32(comp.prec),
			Signed: comp.sgnd != 0,
		})
	}
	return img
}

func (e *Engine) Decode(c engine.Codec, s engine.Stream, img *engine.Image) error {
	cc, ok := c.(*codec)
	st, sok := s.(*stream)
	if !ok || !sok || cc.ptr == nil || st.ptr == nil || img == nil {
		return ErrBadHandle
	}
	v, found := e.images.Load(img)
	if !found {
		return fmt.Errorf("%w: image was not produced by this engine", ErrBadHandle)
	}
	cimg := v.(*C.opj_image_t)
	if cc.params.TileIndex >= 0 {
		if C.opj_get_decoded_tile(cc.ptr, st.ptr, cimg, C.OPJ_UINT32(cc.params.TileIndex)) == C.OPJ_FALSE {
			return fmt.Errorf("%w: opj_get_decoded_tile(%d)", ErrFailed, cc.params.TileIndex)
		}
	} else {
		if C.opj_decode(cc.ptr, st.ptr, cimg) == C.OPJ_FALSE {
			return fmt.Errorf("%w: opj_decode", ErrFailed)
		}
		if C.opj_end_decompress(cc.ptr, st.ptr) == C.OPJ_FALSE {
			return fmt.Errorf("%w: opj_end_decompress", ErrFailed)
		}
	}

	decoded := describe(cimg)
	img.X0, img.Y0, img.X1, img.Y1 = decoded.X0, decoded.Y0, decoded.X1, decoded.Y1
	img.ColorSpace, img.ICCProfileLen = decoded.ColorSpace, decoded.ICCProfileLen
	img.Comps = decoded.Comps
	for i, comp := range unsafe.Slice(cimg.comps, int(cimg.numcomps)) {
		n := int(comp.w) * int(comp.h)
		if comp.data == nil || n == 0 {
			return fmt.Errorf("%w: component %d has no data", ErrFailed, i)
		}
		src := unsafe.Slice((*int32)(unsafe.Pointer(comp.data)), n)
		img.Comps[i].Data = append([]int32(nil), src...)
	}
	return nil
}

func (e *Engine) CreateStream(funcs engine.StreamFuncs, length uint64) (engine.Stream, error) {
	if funcs.Read == nil {
		return nil, fmt.Errorf("%w: input stream without read callback", ErrBadHandle)
	}
	st := &stream{funcs: funcs}
	st.user = pin(st)
	st.ptr = C.j2k_stream_create(st.user.ptr, C.OPJ_UINT64(length))
	if st.ptr == nil {
		st.user.release()
		return nil, fmt.Errorf("%w: opj_stream_create", ErrFailed)
	}
	return st, nil
}

func (e *Engine) CreateFileStream(path string) (engine.Stream, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	ptr := C.opj_stream_create_default_file_stream(cpath, C.OPJ_TRUE)
	if ptr == nil {
		return nil, fmt.Errorf("%w: cannot open %s", ErrFailed, path)
	}
	return &stream{ptr: ptr}, nil
}

func (e *Engine) DestroyStream(s engine.Stream) {
	if st, ok := s.(*stream); ok && st.ptr != nil {
		C.opj_stream_destroy(st.ptr)
		st.ptr = nil
		st.user.release()
	}
}

func (e *Engine) DestroyCodec(c engine.Codec) {
	if cc, ok := c.(*codec); ok && cc.ptr != nil {
		C.opj_destroy_codec(cc.ptr)
		cc.ptr = nil
		cc.image = nil
		cc.user.release()
	}
}

func (e *Engine) DestroyImage(img *engine.Image) {
	if img == nil {
		return
	}
	if v, ok := e.images.LoadAndDelete(img); ok {
		C.opj_image_destroy(v.(*C.opj_image_t))
	}
	for i := range img.Comps {
		img.Comps[i].Data = nil
	}
}

var _ engine.Engine = (*Engine)(nil)
