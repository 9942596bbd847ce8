package jp2k

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrEngine                = errors.New("engine error")
	ErrHeaderRead            = errors.New("reading the header failed")
	ErrDecode                = errors.New("decoding the image failed")
	ErrColorSpaceUnspecified = errors.New("unspecified color space and no default configured")
	ErrColorSpaceUnknown     = errors.New("unknown color space")
	ErrTooManyComponents     = errors.New("too many components")
	ErrNoComponents          = errors.New("image has no components")
	ErrInvalidSourcePath     = errors.New("invalid source path")
	ErrUnsupportedColorSpace = errors.New("unsupported color space")
	ErrSignedSamples         = errors.New("signed samples are not supported")
	ErrInvalidState          = errors.New("invalid session state")
	ErrInvalidDiscardLevel   = errors.New("invalid discard level")
)

// EngineError reports a decoder instantiation or setup rejected by the engine
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine %s failed", e.Op)
	}
	return fmt.Sprintf("engine %s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngine }

// ColorSpaceUnknownError carries the raw code the engine reported
type ColorSpaceUnknownError struct {
	Code int32
}

func (e *ColorSpaceUnknownError) Error() string {
	return fmt.Sprintf("%v: code %d", ErrColorSpaceUnknown, e.Code)
}

func (e *ColorSpaceUnknownError) Is(target error) bool { return target == ErrColorSpaceUnknown }

// TooManyComponentsError is returned for images with more than MaxComponents planes
type TooManyComponentsError struct {
	Count int
}

func (e *TooManyComponentsError) Error() string {
	return fmt.Sprintf("%v: %d (max %d)", ErrTooManyComponents, e.Count, MaxComponents)
}

func (e *TooManyComponentsError) Is(target error) bool { return target == ErrTooManyComponents }

// UnsupportedColorSpaceError names a resolved color space the assembler cannot combine
type UnsupportedColorSpaceError struct {
	Space ColorSpace
}

func (e *UnsupportedColorSpaceError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnsupportedColorSpace, e.Space)
}

func (e *UnsupportedColorSpaceError) Is(target error) bool { return target == ErrUnsupportedColorSpace }
