package jpeg2k

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// BoxType is a 4-byte JP2 box type code
type BoxType uint32

// JP2 box types (ITU-T T.800 Annex I)
const (
	BoxSignature   BoxType = 0x6A502020 // "jP  "
	BoxFileType    BoxType = 0x66747970 // "ftyp"
	BoxHeader      BoxType = 0x6A703268 // "jp2h"
	BoxImageHeader BoxType = 0x69686472 // "ihdr"
	BoxBitsPerComp BoxType = 0x62706363 // "bpcc"
	BoxColorSpec   BoxType = 0x636F6C72 // "colr"
	BoxResolution  BoxType = 0x72657320 // "res "
	BoxCodestream  BoxType = 0x6A703263 // "jp2c"
	BoxXML         BoxType = 0x786D6C20 // "xml "
	BoxUUID        BoxType = 0x75756964 // "uuid"
)

// String returns the 4-character type code
func (t BoxType) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	return string(b[:])
}

// Signature is the complete 12-byte JP2 signature box
var Signature = []byte{0x00, 0x00, 0x00, 0x0C, 0x6A, 0x50, 0x20, 0x20, 0x0D, 0x0A, 0x87, 0x0A}

// BrandJP2 is the "jp2 " brand of the file type box
const BrandJP2 = 0x6A703220

// ColorMethod is the METH field of a colr box
type ColorMethod uint8

const (
	ColorMethodEnumerated ColorMethod = 1
	ColorMethodICC        ColorMethod = 2
)

// EnumCS is an enumerated colour space from a colr box (Table I.10)
type EnumCS uint32

const (
	EnumCSNone EnumCS = 0
	EnumCSCMYK EnumCS = 12
	EnumCSSRGB EnumCS = 16
	EnumCSGray EnumCS = 17
	EnumCSSYCC EnumCS = 18
	EnumCSEYCC EnumCS = 24
)

// Errors from JP2 container parsing
var (
	ErrNotJP2         = errors.New("missing JP2 signature")
	ErrInvalidBox     = errors.New("invalid JP2 box")
	ErrMissingJP2Head = errors.New("JP2 header box missing before codestream")
)

// JP2Header is what the jp2h superbox declares about the image
type JP2Header struct {
	Width, Height uint32
	NumComps      uint16
	BPC           uint8 // 255 means per-component depths in bpcc

	ColorMethod ColorMethod
	EnumCS      EnumCS
	ICCProfile  []byte
}

// box is the header of one box. Length is the content length; -1 when the
// box runs to the end of the file.
type box struct {
	Type   BoxType
	Length int64
}

func readBoxHeader(r *ByteReader) (box, error) {
	lbox, err := r.ReadUint32()
	if err != nil {
		return box{}, err
	}
	tbox, err := r.ReadUint32()
	if err != nil {
		return box{}, err
	}
	b := box{Type: BoxType(tbox)}
	switch lbox {
	case 0:
		b.Length = -1
	case 1:
		xl, err := r.ReadUint64()
		if err != nil {
			return box{}, err
		}
		if xl < 16 || xl > 1<<62 {
			return box{}, fmt.Errorf("%w: %s extended length %d", ErrInvalidBox, b.Type, xl)
		}
		b.Length = int64(xl - 16)
	default:
		if lbox < 8 {
			return box{}, fmt.Errorf("%w: %s length %d", ErrInvalidBox, b.Type, lbox)
		}
		b.Length = int64(lbox - 8)
	}
	return b, nil
}

// ReadJP2Header walks the top-level boxes of a JP2 file up to the contiguous
// codestream box. On return r is positioned at the first codestream byte.
func ReadJP2Header(r *ByteReader) (*JP2Header, error) {
	sig, err := r.ReadBytes(len(Signature))
	if err != nil || !bytes.Equal(sig, Signature) {
		return nil, ErrNotJP2
	}

	var hdr *JP2Header
	for {
		b, err := readBoxHeader(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: no codestream box", ErrInvalidBox)
			}
			return nil, err
		}
		switch b.Type {
		case BoxCodestream:
			if hdr == nil {
				return nil, ErrMissingJP2Head
			}
			return hdr, nil
		case BoxHeader:
			if b.Length < 0 {
				return nil, fmt.Errorf("%w: unbounded %s", ErrInvalidBox, b.Type)
			}
			body, err := r.ReadBytes(int(b.Length))
			if err != nil {
				return nil, err
			}
			if hdr, err = parseJP2HeaderBox(body); err != nil {
				return nil, err
			}
		default:
			if b.Length < 0 {
				return nil, fmt.Errorf("%w: no codestream box", ErrInvalidBox)
			}
			if err := r.Skip(int(b.Length)); err != nil {
				return nil, err
			}
		}
	}
}

// parseJP2HeaderBox reads the ihdr and first colr box of a jp2h superbox
func parseJP2HeaderBox(body []byte) (*JP2Header, error) {
	hdr := &JP2Header{}
	sawIHDR, sawCOLR := false, false
	r := NewByteReader(bytes.NewReader(body))
	for r.Offset() < int64(len(body)) {
		b, err := readBoxHeader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: jp2h: %w", ErrInvalidBox, err)
		}
		if b.Length < 0 {
			b.Length = int64(len(body)) - r.Offset()
		}
		content, err := r.ReadBytes(int(b.Length))
		if err != nil {
			return nil, fmt.Errorf("%w: jp2h %s: %w", ErrInvalidBox, b.Type, err)
		}
		switch b.Type {
		case BoxImageHeader:
			if len(content) < 14 {
				return nil, fmt.Errorf("%w: ihdr is %d bytes", ErrInvalidBox, len(content))
			}
			hdr.Height = binary.BigEndian.Uint32(content[0:4])
			hdr.Width = binary.BigEndian.Uint32(content[4:8])
			hdr.NumComps = binary.BigEndian.Uint16(content[8:10])
			hdr.BPC = content[10]
			sawIHDR = true
		case BoxColorSpec:
			// only the first colr box is honoured
			if sawCOLR || len(content) < 3 {
				continue
			}
			sawCOLR = true
			hdr.ColorMethod = ColorMethod(content[0])
			switch hdr.ColorMethod {
			case ColorMethodEnumerated:
				if len(content) >= 7 {
					hdr.EnumCS = EnumCS(binary.BigEndian.Uint32(content[3:7]))
				}
			case ColorMethodICC:
				hdr.ICCProfile = content[3:]
			}
		}
	}
	if !sawIHDR {
		return nil, fmt.Errorf("%w: jp2h without ihdr", ErrInvalidBox)
	}
	return hdr, nil
}

// WriteJP2 wraps a raw codestream in a minimal JP2 file: signature, file
// type, a header with ihdr and colr, then the codestream box
func WriteJP2(w io.Writer, codestream []byte, hdr *JP2Header) error {
	bw := NewByteWriter(w)
	if err := bw.WriteBytes(Signature); err != nil {
		return err
	}

	ftyp := make([]byte, 12)
	binary.BigEndian.PutUint32(ftyp[0:4], BrandJP2)
	binary.BigEndian.PutUint32(ftyp[8:12], BrandJP2)
	if err := writeBox(bw, BoxFileType, ftyp); err != nil {
		return err
	}

	ihdr := make([]byte, 14)
	binary.BigEndian.PutUint32(ihdr[0:4], hdr.Height)
	binary.BigEndian.PutUint32(ihdr[4:8], hdr.Width)
	binary.BigEndian.PutUint16(ihdr[8:10], hdr.NumComps)
	ihdr[10] = hdr.BPC
	ihdr[11] = 7 // compression type
	var colr []byte
	switch hdr.ColorMethod {
	case ColorMethodICC:
		colr = append([]byte{byte(ColorMethodICC), 0, 0}, hdr.ICCProfile...)
	default:
		colr = []byte{byte(ColorMethodEnumerated), 0, 0, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(colr[3:7], uint32(hdr.EnumCS))
	}
	var jp2h bytes.Buffer
	sub := NewByteWriter(&jp2h)
	if err := writeBox(sub, BoxImageHeader, ihdr); err != nil {
		return err
	}
	if err := writeBox(sub, BoxColorSpec, colr); err != nil {
		return err
	}
	if err := sub.Flush(); err != nil {
		return err
	}
	if err := writeBox(bw, BoxHeader, jp2h.Bytes()); err != nil {
		return err
	}
	if err := writeBox(bw, BoxCodestream, codestream); err != nil {
		return err
	}
	return bw.Flush()
}

func writeBox(w *ByteWriter, t BoxType, content []byte) error {
	if err := w.WriteUint32(uint32(len(content) + 8)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(t)); err != nil {
		return err
	}
	return w.WriteBytes(content)
}
