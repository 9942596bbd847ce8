//go:build !(openjpeg && cgo)

package openjpeg

import "github.com/jpfielding/jpeg2000.go/pkg/engine"

// Available reports whether libopenjp2 is linked in
const Available = false

// New always fails without the openjpeg build tag
func New() (engine.Engine, error) { return nil, ErrUnavailable }
