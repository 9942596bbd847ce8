package cmd

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jpfielding/jpeg2000.go/pkg/jp2k"
	"github.com/spf13/cobra"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// NewDecodeCmd decodes a JPEG 2000 image to an RGBA PNG
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [uri]",
		Short: "decode a JPEG 2000 image to PNG, TIFF or BMP",
		Long:  "decodes a raw codestream or JP2 file into an 8 bit RGBA image, optionally at a reduced resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, kind, eng, err := resolveInput(ctx, cmd, args)
			if err != nil {
				return err
			}
			cfg, err := decodeConfig(cmd)
			if err != nil {
				return err
			}
			bm, err := jp2k.Decode(ctx, in.source(), kind, cfg,
				jp2k.WithEngine(eng),
				jp2k.WithLogger(slog.Default().With(slog.String("input", in.name))))
			if err != nil {
				return fmt.Errorf("decoding %s: %w", in.name, err)
			}

			out, _ := cmd.Flags().GetString("out")
			format, _ := cmd.Flags().GetString("format")
			format = imageFormat(format, out)
			if out == "" || out == "-" {
				err = writeImage(cmd.OutOrStdout(), bm.RGBA, format)
			} else {
				var f *os.File
				if f, err = os.Create(out); err != nil {
					return err
				}
				err = writeAndClose(f, bm.RGBA, format)
			}
			if err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			slog.InfoContext(ctx, "decoded", "input", in.name, "codec", kind.String(),
				"width", bm.Width(), "height", bm.Height(), "out", out)
			return nil
		},
	}
	addSourceFlags(cmd)
	pf := cmd.PersistentFlags()
	pf.StringP("out", "o", "-", "output path, - for stdout")
	pf.StringP("format", "f", "", "output format (png|tiff|bmp), default from the --out extension")
	return cmd
}

// imageFormat picks the output encoding from the flag or the file extension
func imageFormat(flag, out string) string {
	if flag != "" {
		return strings.ToLower(flag)
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".tif", ".tiff":
		return "tiff"
	case ".bmp":
		return "bmp"
	default:
		return "png"
	}
}

// writeAndClose encodes img to wc and reports a failed Close, which is
// where buffered file data can still be lost
func writeAndClose(wc io.WriteCloser, img image.Image, format string) error {
	if err := writeImage(wc, img, format); err != nil {
		wc.Close()
		return err
	}
	return wc.Close()
}

func writeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case "bmp":
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unknown image format %q (png|tiff|bmp)", format)
	}
}
