// Package imaging shrinks uploaded question images before they are stored.
package imaging

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	startQuality = 85
	minQuality   = 20
	qualityStep  = 10
)

type Options struct {
	MaxDimension int
	MaxSize      int
}

// Compress scales the image so its longer side is at most MaxDimension and
// re-encodes it as JPEG, lowering quality while the output exceeds MaxSize.
// Input that cannot be decoded is returned unchanged.
func Compress(data []byte, opts Options) []byte {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	img := flatten(scaleDown(src, opts.MaxDimension))

	quality := startQuality
	out, err := encode(img, quality)
	if err != nil {
		return data
	}
	for opts.MaxSize > 0 && len(out) > opts.MaxSize && quality > minQuality {
		quality -= qualityStep
		if out, err = encode(img, quality); err != nil {
			return data
		}
	}
	return out
}

func scaleDown(src image.Image, maxDimension int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if maxDimension <= 0 || longest <= maxDimension {
		return src
	}

	newW := max(1, w*maxDimension/longest)
	newH := max(1, h*maxDimension/longest)
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// flatten composes the image over white, since JPEG has no alpha channel.
func flatten(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
