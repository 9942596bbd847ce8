// Package openjpeg binds libopenjp2 as an engine.Engine. The binding needs
// cgo and is only compiled with the openjpeg build tag:
//
//	go build -tags openjpeg ./...
//
// Without the tag New reports ErrUnavailable and callers fall back to the
// standard engine.
package openjpeg

import "errors"

// ErrUnavailable is returned by New when the binding was not compiled in
var ErrUnavailable = errors.New("openjpeg engine not compiled in (build with -tags openjpeg and cgo)")
