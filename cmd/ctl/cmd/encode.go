package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jpfielding/jpeg2000.go/pkg/compress/jpeg2k"
	"github.com/mrjoshuak/go-jpeg2000"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// NewEncodeCmd writes a PNG, TIFF or BMP as a lossless JPEG 2000 image
func NewEncodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <in.png|tiff|bmp> <out>",
		Short: "encode a PNG, TIFF or BMP as lossless JPEG 2000",
		Long:  "writes a reversible codestream, wrapped in a JP2 file unless the output ends in .j2k; --zstd compresses the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			img, _, err := image.Decode(f)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			levels, _ := cmd.Flags().GetInt("levels")
			if fit := maxLevels(img.Bounds()); levels > fit {
				slog.DebugContext(ctx, "clamped decomposition levels", "requested", levels, "levels", fit)
				levels = fit
			}
			csName, _ := cmd.Flags().GetString("colorspace")
			engName, _ := cmd.Flags().GetString("engine")
			out := args[1]
			raw := strings.HasSuffix(strings.TrimSuffix(out, ".zst"), ".j2k")

			var buf bytes.Buffer
			switch strings.ToLower(engName) {
			case "", "standard":
				err = encodeStandard(&buf, img, raw, levels, csName)
			case "native":
				err = encodeNative(&buf, img, raw, levels, csName)
			default:
				err = fmt.Errorf("unknown engine %q (standard|native)", engName)
			}
			if err != nil {
				return err
			}
			data := buf.Bytes()
			if z, _ := cmd.Flags().GetBool("zstd"); z || strings.HasSuffix(out, ".zst") {
				if data, err = compressZstd(data); err != nil {
					return err
				}
			}
			slog.InfoContext(ctx, "encoded", "in", args[0], "out", out, "bytes", len(data), "levels", levels)
			return os.WriteFile(out, data, 0644)
		},
	}
	pf := cmd.PersistentFlags()
	pf.Int("levels", 5, "wavelet decomposition levels, clamped to the image size")
	pf.String("engine", "standard", "encoder (standard|native), native writes streams only the native engine reads")
	pf.String("colorspace", "", "JP2 enumerated color space (srgb|gray|sycc|eycc|cmyk)")
	pf.Bool("zstd", false, "zstd compress the output")
	return cmd
}

// maxLevels keeps the coarsest resolution at least one sample wide
func maxLevels(b image.Rectangle) int {
	n := 0
	for side := min(b.Dx(), b.Dy()); side > 1; side >>= 1 {
		n++
	}
	return n
}

// encodeStandard writes a lossless stream with go-jpeg2000
func encodeStandard(w io.Writer, img image.Image, raw bool, levels int, csName string) error {
	opts := jpeg2000.DefaultOptions()
	opts.Lossless = true
	opts.NumResolutions = levels + 1
	if raw {
		opts.Format = jpeg2000.FormatJ2K
	}
	if csName != "" {
		cs, err := standardCS(csName)
		if err != nil {
			return err
		}
		opts.ColorSpace = cs
	}
	return jpeg2000.Encode(w, img, opts)
}

// encodeNative writes a single tile reversible stream with pkg/compress/jpeg2k
func encodeNative(w io.Writer, img image.Image, raw bool, levels int, csName string) error {
	opts := jpeg2k.DefaultOptions()
	opts.DecompLevels = levels
	if csName != "" {
		cs, err := enumCS(csName)
		if err != nil {
			return err
		}
		opts.ColorSpace = cs
	}
	if raw {
		return jpeg2k.Encode(w, img, opts)
	}
	return jpeg2k.EncodeJP2(w, img, opts)
}

func standardCS(name string) (jpeg2000.ColorSpace, error) {
	switch strings.ToLower(name) {
	case "srgb":
		return jpeg2000.ColorSpaceSRGB, nil
	case "gray", "grey":
		return jpeg2000.ColorSpaceGray, nil
	case "sycc":
		return jpeg2000.ColorSpaceSYCC, nil
	case "eycc":
		return jpeg2000.ColorSpaceEYCC, nil
	case "cmyk":
		return jpeg2000.ColorSpaceCMYK, nil
	}
	return 0, fmt.Errorf("unknown color space %q", name)
}

func enumCS(name string) (jpeg2k.EnumCS, error) {
	switch strings.ToLower(name) {
	case "srgb":
		return jpeg2k.EnumCSSRGB, nil
	case "gray", "grey":
		return jpeg2k.EnumCSGray, nil
	case "sycc":
		return jpeg2k.EnumCSSYCC, nil
	case "eycc":
		return jpeg2k.EnumCSEYCC, nil
	case "cmyk":
		return jpeg2k.EnumCSCMYK, nil
	}
	return 0, fmt.Errorf("unknown color space %q", name)
}
