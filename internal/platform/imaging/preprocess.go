// Package imaging prepares flyer photos for vision models.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned for zero-length input.
var ErrEmptyImage = errors.New("empty image")

// Preprocessor downsizes, flattens and sharpens an image and re-encodes it as JPEG.
type Preprocessor struct {
	MaxWidth  uint
	MaxHeight uint
	Quality   int
	Sharpen   bool
}

// NewPreprocessor returns a Preprocessor that fits images inside 1600x2000
// and encodes at JPEG quality 98.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{MaxWidth: 1600, MaxHeight: 2000, Quality: 98, Sharpen: true}
}

// Preprocess decodes JPEG, PNG or WebP bytes and returns optimized JPEG bytes.
// Images already inside the bounds are never enlarged.
func (p *Preprocessor) Preprocess(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if uint(b.Dx()) > p.MaxWidth || uint(b.Dy()) > p.MaxHeight {
		img = resize.Thumbnail(p.MaxWidth, p.MaxHeight, img, resize.Lanczos3)
	}

	flat := flatten(img)
	if p.Sharpen {
		flat = sharpen(flat)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: p.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten draws img over a white background so transparent PNGs survive JPEG.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// sharpen applies a mild 3x3 sharpening kernel to improve small print legibility.
func sharpen(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return src
	}

	dst := image.NewRGBA(b)
	copy(dst.Pix, src.Pix)

	// center 2, neighbours -0.25 each: sums to 1
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := src.PixOffset(x, y)
			up := src.PixOffset(x, y-1)
			down := src.PixOffset(x, y+1)
			left := src.PixOffset(x-1, y)
			right := src.PixOffset(x+1, y)
			for c := 0; c < 3; c++ {
				v := 2*float64(src.Pix[i+c]) -
					0.25*(float64(src.Pix[up+c])+float64(src.Pix[down+c])+float64(src.Pix[left+c])+float64(src.Pix[right+c]))
				dst.Pix[i+c] = clamp(v)
			}
		}
	}
	return dst
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
