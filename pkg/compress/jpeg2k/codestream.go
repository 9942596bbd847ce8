package jpeg2k

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Common errors
var (
	ErrInvalidMarker = errors.New("invalid marker")
	ErrInvalidSIZ    = errors.New("invalid SIZ marker")
	ErrInvalidCOD    = errors.New("invalid COD marker")
	ErrInvalidQCD    = errors.New("invalid QCD marker")
	ErrInvalidSOT    = errors.New("invalid SOT marker")
	ErrMissingSIZ    = errors.New("main header has no SIZ marker")
)

// CodestreamReader reads the marker structure of a codestream
type CodestreamReader struct {
	r   *ByteReader
	SIZ SIZMarker
	COD CODMarker
	QCD QCDMarker

	sawSIZ bool
}

// NewCodestreamReader creates a new codestream reader
func NewCodestreamReader(r io.Reader) *CodestreamReader {
	return &CodestreamReader{r: NewByteReader(r)}
}

// ReadMainHeader reads SOC and every main header segment. It returns once
// the first SOT marker code has been consumed.
func (c *CodestreamReader) ReadMainHeader() error {
	marker, err := c.r.ReadUint16()
	if err != nil {
		return fmt.Errorf("reading SOC: %w", err)
	}
	if marker != MarkerSOC {
		return fmt.Errorf("%w: expected SOC (0x%04X), got 0x%04X", ErrInvalidMarker, MarkerSOC, marker)
	}

	for {
		marker, err = c.r.ReadUint16()
		if err != nil {
			return fmt.Errorf("reading marker: %w", err)
		}
		if marker == MarkerSOT {
			if !c.sawSIZ {
				return ErrMissingSIZ
			}
			return nil
		}
		if marker>>8 != 0xFF {
			return fmt.Errorf("%w: 0x%04X in main header", ErrInvalidMarker, marker)
		}
		seg, err := c.segment(marker)
		if err != nil {
			return err
		}
		switch marker {
		case MarkerSIZ:
			if err := parseSIZSegment(seg, &c.SIZ); err != nil {
				return err
			}
			c.sawSIZ = true
		case MarkerCOD:
			if err := parseCODSegment(seg, &c.COD); err != nil {
				return err
			}
		case MarkerQCD:
			if err := parseQCDSegment(seg, &c.QCD); err != nil {
				return err
			}
		}
		// COC, QCC, COM and the pointer markers are not needed to decode
	}
}

// segment reads the length field and body of a marker segment
func (c *CodestreamReader) segment(marker uint16) ([]byte, error) {
	length, err := c.r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("reading 0x%04X length: %w", marker, err)
	}
	if length < 2 {
		return nil, fmt.Errorf("%w: 0x%04X length %d", ErrInvalidMarker, marker, length)
	}
	seg, err := c.r.ReadBytes(int(length) - 2)
	if err != nil {
		return nil, fmt.Errorf("reading 0x%04X segment: %w", marker, err)
	}
	return seg, nil
}

// ReadSOT reads the body of a SOT segment whose marker code was just consumed
func (c *CodestreamReader) ReadSOT() (*SOTMarker, error) {
	seg, err := c.segment(MarkerSOT)
	if err != nil {
		return nil, err
	}
	if len(seg) != 8 {
		return nil, ErrInvalidSOT
	}
	return &SOTMarker{
		TileIndex:    binary.BigEndian.Uint16(seg[0:2]),
		TilePartLen:  binary.BigEndian.Uint32(seg[2:6]),
		TilePartIdx:  seg[6],
		NumTileParts: seg[7],
	}, nil
}

// ReadTilePartHeader reads markers between SOT and SOD. Tile-part COD and
// QCD segments replace the main header values.
func (c *CodestreamReader) ReadTilePartHeader() error {
	for {
		marker, err := c.r.ReadUint16()
		if err != nil {
			return err
		}
		if marker == MarkerSOD {
			return nil
		}
		seg, err := c.segment(marker)
		if err != nil {
			return err
		}
		switch marker {
		case MarkerCOD:
			if err := parseCODSegment(seg, &c.COD); err != nil {
				return err
			}
		case MarkerQCD:
			if err := parseQCDSegment(seg, &c.QCD); err != nil {
				return err
			}
		}
	}
}

// Reader returns the underlying byte reader for reading tile data
func (c *CodestreamReader) Reader() *ByteReader {
	return c.r
}

func parseSIZSegment(data []byte, siz *SIZMarker) error {
	if len(data) < 36 {
		return ErrInvalidSIZ
	}
	siz.Rsiz = binary.BigEndian.Uint16(data[0:2])
	siz.XSiz = binary.BigEndian.Uint32(data[2:6])
	siz.YSiz = binary.BigEndian.Uint32(data[6:10])
	siz.XOsiz = binary.BigEndian.Uint32(data[10:14])
	siz.YOsiz = binary.BigEndian.Uint32(data[14:18])
	siz.XTsiz = binary.BigEndian.Uint32(data[18:22])
	siz.YTsiz = binary.BigEndian.Uint32(data[22:26])
	siz.XTOsiz = binary.BigEndian.Uint32(data[26:30])
	siz.YTOsiz = binary.BigEndian.Uint32(data[30:34])
	numComps := int(binary.BigEndian.Uint16(data[34:36]))

	if numComps == 0 || len(data) < 36+3*numComps {
		return fmt.Errorf("%w: %d components in %d bytes", ErrInvalidSIZ, numComps, len(data))
	}
	if siz.XSiz <= siz.XOsiz || siz.YSiz <= siz.YOsiz || siz.XTsiz == 0 || siz.YTsiz == 0 {
		return fmt.Errorf("%w: empty image area", ErrInvalidSIZ)
	}

	siz.Components = make([]ComponentInfo, numComps)
	pos := 36
	for i := range siz.Components {
		ssiz := data[pos]
		siz.Components[i] = ComponentInfo{
			Signed:    ssiz&0x80 != 0,
			Precision: int(ssiz&0x7F) + 1,
			XRsiz:     int(data[pos+1]),
			YRsiz:     int(data[pos+2]),
		}
		if siz.Components[i].XRsiz == 0 || siz.Components[i].YRsiz == 0 {
			return fmt.Errorf("%w: component %d has zero subsampling", ErrInvalidSIZ, i)
		}
		pos += 3
	}
	return nil
}

func parseCODSegment(data []byte, cod *CODMarker) error {
	if len(data) < 10 {
		return ErrInvalidCOD
	}
	cod.Scod = data[0]
	cod.Progression = ProgressionOrder(data[1])
	cod.NumLayers = binary.BigEndian.Uint16(data[2:4])
	cod.MCT = data[4]
	cod.DecompLevels = data[5]
	cod.CodeBlockWidthExp = data[6]
	cod.CodeBlockHeightExp = data[7]
	cod.CodeBlockStyle = data[8]
	cod.Transform = TransformType(data[9])

	if cod.DecompLevels > 32 {
		return fmt.Errorf("%w: %d decomposition levels", ErrInvalidCOD, cod.DecompLevels)
	}
	cod.PrecinctSizes = nil
	if cod.Scod&CodingStylePrecinctsUser != 0 && len(data) > 10 {
		cod.PrecinctSizes = append([]byte(nil), data[10:]...)
	}
	return nil
}

func parseQCDSegment(data []byte, qcd *QCDMarker) error {
	if len(data) < 1 {
		return ErrInvalidQCD
	}
	sqcd := data[0]
	qcd.Sqcd = sqcd & 0x1F
	qcd.GuardBits = (sqcd >> 5) & 0x07
	body := data[1:]

	switch qcd.Sqcd {
	case 0: // reversible: one exponent byte per subband
		qcd.StepSizes = make([]int16, len(body))
		for i, b := range body {
			qcd.StepSizes[i] = int16(b >> 3)
		}
	case 1: // scalar derived
		if len(body) < 2 {
			return ErrInvalidQCD
		}
		qcd.StepSizes = []int16{int16(binary.BigEndian.Uint16(body))}
	case 2: // scalar expounded
		qcd.StepSizes = make([]int16, len(body)/2)
		for i := range qcd.StepSizes {
			qcd.StepSizes[i] = int16(binary.BigEndian.Uint16(body[2*i:]))
		}
	default:
		return fmt.Errorf("%w: unsupported quantization style %d", ErrInvalidQCD, qcd.Sqcd)
	}
	return nil
}

// CodestreamWriter writes the marker structure of a codestream
type CodestreamWriter struct {
	w *ByteWriter
}

// NewCodestreamWriter creates a new codestream writer
func NewCodestreamWriter(w io.Writer) *CodestreamWriter {
	return &CodestreamWriter{w: NewByteWriter(w)}
}

// WriteSOC writes the Start of Codestream marker
func (c *CodestreamWriter) WriteSOC() error {
	return c.w.WriteUint16(MarkerSOC)
}

// WriteSIZ writes the SIZ marker segment
func (c *CodestreamWriter) WriteSIZ(siz *SIZMarker) error {
	seg := make([]byte, 36, 36+3*len(siz.Components))
	binary.BigEndian.PutUint16(seg[0:2], siz.Rsiz)
	binary.BigEndian.PutUint32(seg[2:6], siz.XSiz)
	binary.BigEndian.PutUint32(seg[6:10], siz.YSiz)
	binary.BigEndian.PutUint32(seg[10:14], siz.XOsiz)
	binary.BigEndian.PutUint32(seg[14:18], siz.YOsiz)
	binary.BigEndian.PutUint32(seg[18:22], siz.XTsiz)
	binary.BigEndian.PutUint32(seg[22:26], siz.YTsiz)
	binary.BigEndian.PutUint32(seg[26:30], siz.XTOsiz)
	binary.BigEndian.PutUint32(seg[30:34], siz.YTOsiz)
	binary.BigEndian.PutUint16(seg[34:36], uint16(len(siz.Components)))
	for _, comp := range siz.Components {
		ssiz := byte(comp.Precision - 1)
		if comp.Signed {
			ssiz |= 0x80
		}
		seg = append(seg, ssiz, byte(comp.XRsiz), byte(comp.YRsiz))
	}
	return c.writeSegment(MarkerSIZ, seg)
}

// WriteCOD writes the COD marker segment
func (c *CodestreamWriter) WriteCOD(cod *CODMarker) error {
	seg := []byte{
		cod.Scod,
		byte(cod.Progression),
		byte(cod.NumLayers >> 8), byte(cod.NumLayers),
		cod.MCT,
		cod.DecompLevels,
		cod.CodeBlockWidthExp,
		cod.CodeBlockHeightExp,
		cod.CodeBlockStyle,
		byte(cod.Transform),
	}
	if cod.Scod&CodingStylePrecinctsUser != 0 {
		seg = append(seg, cod.PrecinctSizes...)
	}
	return c.writeSegment(MarkerCOD, seg)
}

// WriteQCD writes a reversible QCD marker segment
func (c *CodestreamWriter) WriteQCD(qcd *QCDMarker) error {
	seg := []byte{(qcd.GuardBits << 5) | (qcd.Sqcd & 0x1F)}
	for _, step := range qcd.StepSizes {
		seg = append(seg, byte(step<<3))
	}
	return c.writeSegment(MarkerQCD, seg)
}

// WriteSOT writes a tile-part header
func (c *CodestreamWriter) WriteSOT(sot *SOTMarker) error {
	seg := make([]byte, 8)
	binary.BigEndian.PutUint16(seg[0:2], sot.TileIndex)
	binary.BigEndian.PutUint32(seg[2:6], sot.TilePartLen)
	seg[6] = sot.TilePartIdx
	seg[7] = sot.NumTileParts
	return c.writeSegment(MarkerSOT, seg)
}

// WriteSOD writes the Start of Data marker
func (c *CodestreamWriter) WriteSOD() error {
	return c.w.WriteUint16(MarkerSOD)
}

// WriteEOC writes the End of Codestream marker
func (c *CodestreamWriter) WriteEOC() error {
	return c.w.WriteUint16(MarkerEOC)
}

// WriteBytes writes raw bytes
func (c *CodestreamWriter) WriteBytes(data []byte) error {
	return c.w.WriteBytes(data)
}

// Flush flushes the underlying buffer
func (c *CodestreamWriter) Flush() error {
	return c.w.Flush()
}

func (c *CodestreamWriter) writeSegment(marker uint16, seg []byte) error {
	if err := c.w.WriteUint16(marker); err != nil {
		return err
	}
	if err := c.w.WriteUint16(uint16(len(seg) + 2)); err != nil {
		return err
	}
	return c.w.WriteBytes(seg)
}

// BuildDefaultCOD creates a COD marker for reversible encoding with 64x64
// code-blocks
func BuildDefaultCOD(decompLevels int, numLayers int, progression ProgressionOrder, useMCT bool) *CODMarker {
	cod := &CODMarker{
		Progression:        progression,
		NumLayers:          uint16(numLayers),
		DecompLevels:       byte(decompLevels),
		CodeBlockWidthExp:  4,
		CodeBlockHeightExp: 4,
		Transform:          TransformReversible53,
	}
	if useMCT {
		cod.MCT = 1
	}
	return cod
}

// BuildDefaultQCD creates a reversible QCD marker: one exponent for LL plus
// three per decomposition level
func BuildDefaultQCD(decompLevels int, guardBits int) *QCDMarker {
	return &QCDMarker{
		GuardBits: byte(guardBits),
		StepSizes: make([]int16, 3*decompLevels+1),
	}
}

// BuildSIZ creates a SIZ marker for an image at the grid origin. A zero tile
// size means a single tile.
func BuildSIZ(width, height int, components []ComponentInfo, tileWidth, tileHeight int) *SIZMarker {
	if tileWidth == 0 {
		tileWidth = width
	}
	if tileHeight == 0 {
		tileHeight = height
	}
	return &SIZMarker{
		XSiz:       uint32(width),
		YSiz:       uint32(height),
		XTsiz:      uint32(tileWidth),
		YTsiz:      uint32(tileHeight),
		Components: components,
	}
}
