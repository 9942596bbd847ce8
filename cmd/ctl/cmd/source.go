package cmd

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
	"github.com/jpfielding/jpeg2000.go/pkg/engine/native"
	"github.com/jpfielding/jpeg2000.go/pkg/engine/openjpeg"
	"github.com/jpfielding/jpeg2000.go/pkg/engine/standard"
	"github.com/jpfielding/jpeg2000.go/pkg/jp2k"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

// input is a resolved codestream source. Plain local files stay on disk so
// the engine opens them itself; everything else is buffered.
type input struct {
	name string
	path string
	data []byte
}

func (in *input) source() jp2k.Source {
	if in.path != "" {
		return jp2k.FileSource(in.path)
	}
	return jp2k.MemorySource(in.data)
}

// head returns the first bytes used for container detection
func (in *input) head() ([]byte, error) {
	if in.path == "" {
		return in.data[:min(len(in.data), 16)], nil
	}
	f, err := os.Open(in.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 16)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// openInput resolves uri: "-" is stdin, http(s) is downloaded, anything else
// is a local path. A .zst suffix is decompressed in memory.
func openInput(ctx context.Context, uri string, insecure bool) (*input, error) {
	uri = strings.TrimPrefix(uri, "file://")
	if uri == "" {
		return nil, fmt.Errorf("input is required. Use --uri flag or provide as argument")
	}
	compressed := strings.HasSuffix(strings.ToLower(uri), ".zst")

	var r io.Reader
	switch {
	case uri == "-":
		r = os.Stdin
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		cl := &http.Client{}
		if insecure {
			cl.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := cl.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to download %s: %s", uri, resp.Status)
		}
		r = resp.Body
	case !compressed:
		return &input{name: uri, path: uri}, nil
	default:
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()
		r = f
	}

	if compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	slog.DebugContext(ctx, "buffered input", "uri", uri, "bytes", len(data), "zstd", compressed)
	return &input{name: uri, data: data}, nil
}

// codecKind parses --codec; "auto" sniffs the container
func codecKind(name string, in *input) (engine.CodecKind, error) {
	if name != "" && name != "auto" {
		return engine.ParseCodecKind(name)
	}
	head, err := in.head()
	if err != nil {
		return 0, err
	}
	if kind, ok := engine.DetectCodecKind(head); ok {
		return kind, nil
	}
	if i := strings.LastIndexByte(in.name, '.'); i >= 0 {
		if kind, err := engine.ParseCodecKind(strings.TrimSuffix(in.name[i+1:], ".zst")); err == nil {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("cannot detect the container of %s, set --codec", in.name)
}

func newEngine(name string) (engine.Engine, error) {
	switch strings.ToLower(name) {
	case "", "standard":
		return standard.New(), nil
	case "native":
		return native.New(), nil
	case "openjpeg":
		return openjpeg.New()
	default:
		return nil, fmt.Errorf("unknown engine %q (standard|native|openjpeg)", name)
	}
}

// decodeConfig reads the shared decode flags
func decodeConfig(cmd *cobra.Command) (jp2k.DecodeConfig, error) {
	cfg := jp2k.DefaultDecodeConfig()
	discard, _ := cmd.Flags().GetUint32("discard")
	cfg.DiscardLevel = discard
	if name, _ := cmd.Flags().GetString("default-colorspace"); name != "" {
		cs, err := jp2k.ParseColorSpace(name)
		if err != nil {
			return cfg, err
		}
		cfg = cfg.WithDefaultColorSpace(cs)
	}
	return cfg, cfg.Validate()
}

func addSourceFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "JPEG 2000 file, http(s) URL or - for stdin (.zst is decompressed)")
	pf.String("codec", "auto", "container (auto|j2k|jp2|jpx|jpp|jpt)")
	pf.String("engine", "standard", "decoding engine (standard|native|openjpeg)")
	pf.Uint32("discard", 0, "resolution levels to discard, each halves the output size")
	pf.String("default-colorspace", "", "color space for streams that leave it unspecified (srgb|gray|sycc|eycc|cmyk)")
	pf.Bool("insecure", false, "skip TLS verification for https inputs")
}

// resolveInput gathers the flags every decoding command shares
func resolveInput(ctx context.Context, cmd *cobra.Command, args []string) (*input, engine.CodecKind, engine.Engine, error) {
	uri, _ := cmd.Flags().GetString("uri")
	if uri == "" && len(args) > 0 {
		uri = args[0]
	}
	insecure, _ := cmd.Flags().GetBool("insecure")
	in, err := openInput(ctx, uri, insecure)
	if err != nil {
		return nil, 0, nil, err
	}
	codec, _ := cmd.Flags().GetString("codec")
	kind, err := codecKind(codec, in)
	if err != nil {
		return nil, 0, nil, err
	}
	engName, _ := cmd.Flags().GetString("engine")
	eng, err := newEngine(engName)
	if err != nil {
		return nil, 0, nil, err
	}
	return in, kind, eng, nil
}

// compressZstd is used by encode --zstd
func compressZstd(data []byte) ([]byte, error) {
	var b bytes.Buffer
	enc, err := zstd.NewWriter(&b)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
