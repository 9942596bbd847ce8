package jp2k

import (
	"errors"
	"testing"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorSpaceValueFromCode(t *testing.T) {
	tests := []struct {
		code engine.ColorSpaceCode
		want string
	}{
		{engine.ColorSpaceCMYK, "CMYK"},
		{engine.ColorSpaceEYCC, "EYCC"},
		{engine.ColorSpaceGray, "GRAY"},
		{engine.ColorSpaceSRGB, "SRGB"},
		{engine.ColorSpaceSYCC, "SYCC"},
		{engine.ColorSpaceUnspecified, "Unspecified"},
		{engine.ColorSpaceUnknown, "Unknown(-1)"},
		{42, "Unknown(42)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ColorSpaceValueFromCode(tt.code).String())
		})
	}
}

func TestResolveColorSpace_Determined(t *testing.T) {
	def := GRAY
	for _, cs := range []ColorSpace{CMYK, EYCC, GRAY, SRGB, SYCC} {
		t.Run(cs.String(), func(t *testing.T) {
			got, err := ResolveColorSpace(Determined(cs), nil)
			require.NoError(t, err)
			assert.Equal(t, cs, got)

			// the default never overrides a determined value
			got, err = ResolveColorSpace(Determined(cs), &def)
			require.NoError(t, err)
			assert.Equal(t, cs, got)
		})
	}
}

func TestResolveColorSpace_Unspecified(t *testing.T) {
	_, err := ResolveColorSpace(Unspecified(), nil)
	assert.ErrorIs(t, err, ErrColorSpaceUnspecified)

	def := SRGB
	got, err := ResolveColorSpace(Unspecified(), &def)
	require.NoError(t, err)
	assert.Equal(t, SRGB, got)
}

func TestResolveColorSpace_Unknown(t *testing.T) {
	def := SRGB
	for _, d := range []*ColorSpace{nil, &def} {
		_, err := ResolveColorSpace(Unknown(7), d)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrColorSpaceUnknown)
		assert.NotErrorIs(t, err, ErrColorSpaceUnspecified)

		var unknown *ColorSpaceUnknownError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, int32(7), unknown.Code)
	}
}

func TestParseColorSpace(t *testing.T) {
	tests := []struct {
		in      string
		want    ColorSpace
		wantErr bool
	}{
		{"srgb", SRGB, false},
		{"RGB", SRGB, false},
		{"gray", GRAY, false},
		{"Grey", GRAY, false},
		{"cmyk", CMYK, false},
		{"sycc", SYCC, false},
		{"eycc", EYCC, false},
		{"lab", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColorSpace(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColorSpaceValue_Space(t *testing.T) {
	cs, ok := Determined(GRAY).Space()
	assert.True(t, ok)
	assert.Equal(t, GRAY, cs)

	_, ok = Unspecified().Space()
	assert.False(t, ok)
	assert.True(t, Unspecified().IsUnspecified())

	_, ok = Unknown(9).Space()
	assert.False(t, ok)
	assert.False(t, Unknown(9).IsUnspecified())
}
