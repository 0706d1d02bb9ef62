// Package imageopt shrinks raster images before upload: downscale, re-encode
// and step quality down until a byte budget is met. Any failure returns the
// original file.
package imageopt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
	"github.com/utafrali/EcommerceGo/webclient/pkg/tracing"
)

// File is an in-memory upload payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (f *File) Size() int { return len(f.Data) }

// Config holds the optimizer parameters.
type Config struct {
	MaxDimension      int
	MinBytes          int
	TargetBytes       int
	InitialQuality    int
	QualityStep       int
	MinQuality        int
	MinSavingsPercent float64
	Format            string
}

// DefaultConfig returns the default optimizer parameters.
func DefaultConfig() Config {
	return Config{
		MaxDimension:      1920,
		MinBytes:          256 << 10,
		TargetBytes:       1 << 20,
		InitialQuality:    82,
		QualityStep:       8,
		MinQuality:        50,
		MinSavingsPercent: 3,
		Format:            FormatWebP,
	}
}

// Formats that re-encoding cannot improve or would break.
var passthroughTypes = map[string]bool{
	"image/svg+xml": true,
	"image/gif":     true,
	"image/apng":    true,
}

// Optimizer re-encodes large raster images.
type Optimizer struct {
	cfg     Config
	encoder Encoder
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates an optimizer. It fails only for an unknown output format.
func New(cfg Config, logger *slog.Logger) (*Optimizer, error) {
	enc, err := EncoderFor(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.QualityStep <= 0 {
		cfg.QualityStep = 1
	}
	if cfg.MinQuality > cfg.InitialQuality {
		cfg.MinQuality = cfg.InitialQuality
	}
	return &Optimizer{
		cfg:     cfg,
		encoder: enc,
		logger:  logger,
		tracer:  tracing.Tracer("imageopt"),
	}, nil
}

// WithEncoder returns a copy of o using enc.
func (o *Optimizer) WithEncoder(enc Encoder) *Optimizer {
	cp := *o
	cp.encoder = enc
	return &cp
}

// Optimize returns a smaller re-encoded copy of f, or f itself when the file
// is not eligible, the result is not meaningfully smaller, or any step fails.
func (o *Optimizer) Optimize(ctx context.Context, f *File) *File {
	contentType := detectContentType(f)
	if !o.eligible(contentType, f.Data) {
		optimizeTotal.WithLabelValues(resultPassthrough).Inc()
		return f
	}

	ctx, span := o.tracer.Start(ctx, "imageopt.Optimize", trace.WithAttributes(
		attribute.String("image.content_type", contentType),
		attribute.Int("image.original_bytes", f.Size()),
	))
	defer span.End()

	log := logger.WithContext(ctx, o.logger)

	out, quality, err := o.optimize(ctx, f)
	if err != nil {
		optimizeTotal.WithLabelValues(resultFallback).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "optimize failed")
		log.WarnContext(ctx, "image optimization failed, uploading original",
			slog.String("file", f.Name),
			slog.String("error", err.Error()),
		)
		return f
	}

	limit := float64(f.Size()) * (1 - o.cfg.MinSavingsPercent/100)
	if float64(out.Size()) > limit {
		optimizeTotal.WithLabelValues(resultPassthrough).Inc()
		span.SetAttributes(attribute.Bool("image.kept_original", true))
		log.DebugContext(ctx, "optimized image not smaller, keeping original",
			slog.String("file", f.Name),
			slog.Int("original_bytes", f.Size()),
			slog.Int("optimized_bytes", out.Size()),
		)
		return f
	}

	optimizeTotal.WithLabelValues(resultOptimized).Inc()
	bytesSavedTotal.Add(float64(f.Size() - out.Size()))
	span.SetAttributes(
		attribute.Int("image.optimized_bytes", out.Size()),
		attribute.Int("image.quality", quality),
	)
	log.InfoContext(ctx, "image optimized",
		slog.String("file", f.Name),
		slog.Int("original_bytes", f.Size()),
		slog.Int("optimized_bytes", out.Size()),
		slog.Int("quality", quality),
	)
	return out
}

func (o *Optimizer) optimize(ctx context.Context, f *File) (*File, int, error) {
	img, err := imaging.Decode(bytes.NewReader(f.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}

	if limit := o.cfg.MaxDimension; limit > 0 {
		b := img.Bounds()
		if b.Dx() > limit || b.Dy() > limit {
			img = imaging.Fit(img, limit, limit, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	quality := o.cfg.InitialQuality
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		buf.Reset()
		if err := o.encoder.Encode(&buf, img, quality); err != nil {
			return nil, 0, fmt.Errorf("encode at quality %d: %w", quality, err)
		}
		if buf.Len() <= o.cfg.TargetBytes || quality <= o.cfg.MinQuality {
			break
		}
		quality = max(quality-o.cfg.QualityStep, o.cfg.MinQuality)
	}

	return &File{
		Name:        renameExt(f.Name, o.encoder.Extension()),
		ContentType: o.encoder.ContentType(),
		Data:        bytes.Clone(buf.Bytes()),
	}, quality, nil
}

func (o *Optimizer) eligible(contentType string, data []byte) bool {
	switch {
	case !strings.HasPrefix(contentType, "image/"):
		return false
	case passthroughTypes[contentType]:
		return false
	case len(data) < o.cfg.MinBytes:
		return false
	case contentType == "image/webp" && isAnimatedWebP(data):
		return false
	case contentType == "image/png" && isAnimatedPNG(data):
		return false
	}
	return true
}

// detectContentType prefers the declared type and sniffs otherwise.
func detectContentType(f *File) string {
	ct := f.ContentType
	if ct == "" {
		ct = http.DetectContentType(f.Data)
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(ct)
}

// isAnimatedWebP reports whether data is an extended WebP with the
// animation flag set in its VP8X header.
func isAnimatedWebP(data []byte) bool {
	if len(data) < 21 {
		return false
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" || string(data[12:16]) != "VP8X" {
		return false
	}
	if binary.LittleEndian.Uint32(data[16:20]) < 10 {
		return false
	}
	return data[20]&0x02 != 0
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// isAnimatedPNG reports whether data is an APNG: an acTL chunk appears
// before the first IDAT.
func isAnimatedPNG(data []byte) bool {
	if !bytes.HasPrefix(data, pngSignature) {
		return false
	}
	for off := len(pngSignature); off+8 <= len(data); {
		n := int64(binary.BigEndian.Uint32(data[off : off+4]))
		switch string(data[off+4 : off+8]) {
		case "acTL":
			return true
		case "IDAT", "IEND":
			return false
		}
		next := int64(off) + 12 + n
		if next > int64(len(data)) {
			return false
		}
		off = int(next)
	}
	return false
}

func renameExt(name, ext string) string {
	if name == "" {
		return "image" + ext
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
