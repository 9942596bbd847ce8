package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(context.Background(), "test-sha")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "ERROR"))
	err := root.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, dir string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "test-sha\n", out)
}

func TestEncodeDecode(t *testing.T) {
	dir := t.TempDir()
	src := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	src.SetRGBA(3, 4, color.RGBA{10, 20, 30, 255})
	in := writePNG(t, dir, src)

	for _, name := range []string{"out.jp2", "out.jp2.zst"} {
		enc := filepath.Join(dir, name)
		_, err := run(t, "encode", in, enc, "--levels", "2")
		require.NoError(t, err, name)

		dec := filepath.Join(dir, name+".png")
		_, err = run(t, "decode", enc, "--out", dec)
		require.NoError(t, err, name)
		got := readPNG(t, dec)
		assert.Equal(t, src.Bounds(), got.Bounds())
		r, g, b, a := got.At(3, 4).RGBA()
		assert.Equal(t, []uint32{10, 20, 30, 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8}, name)
	}
}

func TestDecode_RawNeedsDefaultColorSpace(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	enc := filepath.Join(dir, "raw.j2k")
	_, err := run(t, "encode", in, enc)
	require.NoError(t, err)

	_, err = run(t, "decode", enc, "--out", filepath.Join(dir, "a.png"))
	assert.ErrorContains(t, err, "unspecified color space")

	_, err = run(t, "decode", enc, "--out", filepath.Join(dir, "b.png"), "--default-colorspace", "srgb", "--discard", "1")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), readPNG(t, filepath.Join(dir, "b.png")).Bounds())
}

func TestInfo_JSON(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, image.NewGray(image.Rect(0, 0, 33, 17)))
	enc := filepath.Join(dir, "g.jp2")
	_, err := run(t, "encode", in, enc, "--colorspace", "gray")
	require.NoError(t, err)

	out, err := run(t, "info", enc, "--format", "json", "--discard", "2")
	require.NoError(t, err)
	var rep infoReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, uint32(33), rep.Width)
	assert.Equal(t, uint32(9), rep.ReducedWidth)
	assert.Equal(t, uint32(5), rep.ReducedHeight)
	assert.Equal(t, "GRAY", rep.ColorSpace)
	assert.Equal(t, "jp2", rep.Codec)
	assert.NotEmpty(t, rep.ID)
	require.Len(t, rep.Components, 1)

	out, err = run(t, "info", enc)
	require.NoError(t, err)
	assert.Contains(t, out, "Size: 33x17 at (0,0)")
	assert.Contains(t, out, "Component 0: 8 bit unsigned")
}

func TestDecode_BadFlags(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, image.NewGray(image.Rect(0, 0, 4, 4)))
	enc := filepath.Join(dir, "g.jp2")
	_, err := run(t, "encode", in, enc)
	require.NoError(t, err)

	_, err = run(t, "decode", enc, "--engine", "bogus")
	assert.ErrorContains(t, err, "unknown engine")
	_, err = run(t, "decode", enc, "--codec", "png")
	assert.Error(t, err)
	_, err = run(t, "decode", enc, "--default-colorspace", "lab")
	assert.Error(t, err)
	_, err = run(t, "decode")
	assert.ErrorContains(t, err, "input is required")
}

func TestCodecKind_FromExtension(t *testing.T) {
	kind, err := codecKind("auto", &input{name: "x.jpx", data: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, "jpx", kind.String())

	_, err = codecKind("auto", &input{name: "x.bin", data: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestDecode_OutputFormats(t *testing.T) {
	dir := t.TempDir()
	src := image.NewGray(image.Rect(0, 0, 6, 5))
	for i := range src.Pix {
		src.Pix[i] = 99
	}
	enc := filepath.Join(dir, "g.jp2")
	_, err := run(t, "encode", writePNG(t, dir, src), enc)
	require.NoError(t, err)

	tif := filepath.Join(dir, "g.tiff")
	_, err = run(t, "decode", enc, "--out", tif)
	require.NoError(t, err)
	f, err := os.Open(tif)
	require.NoError(t, err)
	defer f.Close()
	img, err := tiff.Decode(f)
	require.NoError(t, err)
	r, _, _, a := img.At(5, 4).RGBA()
	assert.Equal(t, uint32(99), r>>8)
	assert.Equal(t, uint32(255), a>>8)

	out, err := run(t, "decode", enc, "--format", "bmp")
	require.NoError(t, err)
	img, err = bmp.Decode(bytes.NewReader([]byte(out)))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), img.Bounds())

	_, err = run(t, "decode", enc, "--format", "gif")
	assert.ErrorContains(t, err, "unknown image format")
}

func TestEncodeDecode_NativeEngine(t *testing.T) {
	dir := t.TempDir()
	src := image.NewGray(image.Rect(0, 0, 9, 7))
	for i := range src.Pix {
		src.Pix[i] = 60
	}
	enc := filepath.Join(dir, "n.jp2")
	_, err := run(t, "encode", writePNG(t, dir, src), enc, "--engine", "native", "--levels", "2")
	require.NoError(t, err)

	dec := filepath.Join(dir, "n.png")
	_, err = run(t, "decode", enc, "--engine", "native", "--out", dec)
	require.NoError(t, err)
	r, _, _, _ := readPNG(t, dec).At(8, 6).RGBA()
	assert.Equal(t, uint32(60), r>>8)

	_, err = run(t, "encode", writePNG(t, dir, src), enc, "--engine", "bogus")
	assert.ErrorContains(t, err, "unknown engine")
}

func TestMaxLevels(t *testing.T) {
	assert.Equal(t, 0, maxLevels(image.Rect(0, 0, 1, 100)))
	assert.Equal(t, 3, maxLevels(image.Rect(0, 0, 8, 8)))
	assert.Equal(t, 4, maxLevels(image.Rect(0, 0, 33, 17)))
	assert.Equal(t, 2, maxLevels(image.Rect(0, 0, 6, 5)))
}

// failCloser accepts writes and fails on Close
type failCloser struct {
	bytes.Buffer
	closed bool
}

var errClose = errors.New("disk full")

func (f *failCloser) Close() error {
	f.closed = true
	return errClose
}

func TestWriteAndClose_ReportsCloseError(t *testing.T) {
	wc := &failCloser{}
	err := writeAndClose(wc, image.NewGray(image.Rect(0, 0, 2, 2)), "png")
	assert.ErrorIs(t, err, errClose)
	assert.True(t, wc.closed)
	assert.NotZero(t, wc.Len())

	// a failed encode still closes and reports the encode error
	wc = &failCloser{}
	err = writeAndClose(wc, image.NewGray(image.Rect(0, 0, 2, 2)), "gif")
	assert.ErrorContains(t, err, "unknown image format")
	assert.True(t, wc.closed)
}

func TestDecode_UnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	enc := filepath.Join(dir, "g.jp2")
	_, err := run(t, "encode", writePNG(t, dir, image.NewGray(image.Rect(0, 0, 4, 4))), enc)
	require.NoError(t, err)

	_, err = run(t, "decode", enc, "--out", filepath.Join(dir, "missing", "g.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
