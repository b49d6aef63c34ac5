package convert

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"net/url"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const defaultJPEGQuality = 92

// rasterize draws img onto an RGBA surface of its natural size. A JPEG
// target has no alpha channel, so the surface starts opaque black and
// transparent pixels end up black, as a canvas export does.
func rasterize(img image.Image, f Format) *image.RGBA {
	b := img.Bounds()
	surface := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	op := draw.Src
	if f == FormatJPEG && imageHasAlpha(img) {
		draw.Draw(surface, surface.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		op = draw.Over
	}
	draw.Draw(surface, surface.Bounds(), img, b.Min, op)
	return surface
}

func encodeImage(img image.Image, f Format, quality int) ([]byte, error) {
	var out bytes.Buffer
	switch f {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(&out, img); err != nil {
			return nil, err
		}
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = defaultJPEGQuality
		}
		if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("cannot raster-encode %s", f)
	}
	return out.Bytes(), nil
}

// imageHasAlpha returns true if any sampled pixel has alpha != 0xff.
func imageHasAlpha(img image.Image) bool {
	b := img.Bounds()
	dx, dy := b.Dx(), b.Dy()
	if dx <= 0 || dy <= 0 {
		return false
	}
	// Sample grid up to ~64x64 points to avoid heavy scans on big images
	stepX := dx / 64
	if stepX < 1 {
		stepX = 1
	}
	stepY := dy / 64
	if stepY < 1 {
		stepY = 1
	}
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			_, _, _, a := img.At(x, y).RGBA()
			if a < 0xFFFF {
				return true
			}
		}
	}
	return false
}

// decodeDataURI returns the payload of a data: URI.
func decodeDataURI(uri string) ([]byte, error) {
	// data:[<mediatype>][;base64],<data>
	comma := strings.IndexByte(uri, ',')
	if !strings.HasPrefix(uri, "data:") || comma == -1 {
		return nil, fmt.Errorf("malformed data uri")
	}
	meta := uri[len("data:"):comma]
	data := uri[comma+1:]
	if strings.Contains(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	s, err := url.PathUnescape(data)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
