package jp2k

import (
	"fmt"
	"strings"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
)

// ColorSpace is a determined color space. It is never unspecified or unknown.
type ColorSpace int

const (
	CMYK ColorSpace = iota
	EYCC
	GRAY
	SRGB
	SYCC
)

// String returns the color space name
func (c ColorSpace) String() string {
	switch c {
	case CMYK:
		return "CMYK"
	case EYCC:
		return "EYCC"
	case GRAY:
		return "GRAY"
	case SRGB:
		return "SRGB"
	case SYCC:
		return "SYCC"
	default:
		return fmt.Sprintf("ColorSpace(%d)", int(c))
	}
}

// ParseColorSpace maps a case-insensitive name to a ColorSpace
func ParseColorSpace(name string) (ColorSpace, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CMYK":
		return CMYK, nil
	case "EYCC":
		return EYCC, nil
	case "GRAY", "GREY":
		return GRAY, nil
	case "SRGB", "RGB":
		return SRGB, nil
	case "SYCC":
		return SYCC, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedColorSpace, name)
}

// ColorSpaceValue is the color space as reported by the engine, which may
// still be unspecified or a code this package does not know.
type ColorSpaceValue struct {
	space ColorSpace
	kind  valueKind
	code  int32
}

type valueKind int

const (
	valueDetermined valueKind = iota
	valueUnspecified
	valueUnknown
)

// Determined wraps a concrete color space
func Determined(c ColorSpace) ColorSpaceValue { return ColorSpaceValue{space: c} }

// Unspecified is the value for codestreams that carry no color space
func Unspecified() ColorSpaceValue { return ColorSpaceValue{kind: valueUnspecified} }

// Unknown is the value for an unrecognized engine code
func Unknown(code int32) ColorSpaceValue { return ColorSpaceValue{kind: valueUnknown, code: code} }

// ColorSpaceValueFromCode translates a raw engine code
func ColorSpaceValueFromCode(code engine.ColorSpaceCode) ColorSpaceValue {
	switch code {
	case engine.ColorSpaceCMYK:
		return Determined(CMYK)
	case engine.ColorSpaceEYCC:
		return Determined(EYCC)
	case engine.ColorSpaceGray:
		return Determined(GRAY)
	case engine.ColorSpaceSRGB:
		return Determined(SRGB)
	case engine.ColorSpaceSYCC:
		return Determined(SYCC)
	case engine.ColorSpaceUnspecified:
		return Unspecified()
	default:
		return Unknown(int32(code))
	}
}

// Space returns the determined color space, if any
func (v ColorSpaceValue) Space() (ColorSpace, bool) {
	return v.space, v.kind == valueDetermined
}

// IsUnspecified reports an unspecified value
func (v ColorSpaceValue) IsUnspecified() bool { return v.kind == valueUnspecified }

// String returns the value name
func (v ColorSpaceValue) String() string {
	switch v.kind {
	case valueUnspecified:
		return "Unspecified"
	case valueUnknown:
		return fmt.Sprintf("Unknown(%d)", v.code)
	default:
		return v.space.String()
	}
}

// ResolveColorSpace turns an engine value into a combinable color space.
// An unspecified value falls back to def; an unknown code is never guessed.
func ResolveColorSpace(raw ColorSpaceValue, def *ColorSpace) (ColorSpace, error) {
	switch raw.kind {
	case valueDetermined:
		return raw.space, nil
	case valueUnspecified:
		if def == nil {
			return 0, ErrColorSpaceUnspecified
		}
		return *def, nil
	default:
		return 0, &ColorSpaceUnknownError{Code: raw.code}
	}
}
