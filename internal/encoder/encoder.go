package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/kpauljoseph/studyguide/pkg/logger"
)

// ImageDecodeError means the file is not an image any registered decoder understands.
type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// Encoder turns image files into base64 PNG payloads. Every input is decoded
// and re-encoded, so BMP, GIF, TIFF and JPEG all reach the wire as PNG.
type Encoder struct {
	logger *logger.Logger
}

func New(log *logger.Logger) *Encoder {
	if log == nil {
		log = logger.Discard()
	}
	return &Encoder{logger: log}
}

func (e *Encoder) Encode(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return "", &ImageDecodeError{Path: path, Err: err}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode %s as png: %w", path, err)
	}

	e.logger.Trace("Encoded %s (%s, %dx%d) to %d png bytes", path, format, img.Bounds().Dx(), img.Bounds().Dy(), buf.Len())
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
