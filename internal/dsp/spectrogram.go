package dsp

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
)

// RenderPNG writes spec as a grayscale PNG with mel bands on the vertical
// axis (low frequencies at the bottom) and time on the horizontal axis.
// Values are min-max scaled per image, which is enough for visual inspection
// of what the classifier saw.
func RenderPNG(w io.Writer, spec [][]float64) error {
	if len(spec) == 0 || len(spec[0]) == 0 {
		return png.Encode(w, image.NewGray(image.Rect(0, 0, 1, 1)))
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range spec {
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	scale := hi - lo
	if scale == 0 {
		scale = 1
	}

	height := len(spec)
	width := len(spec[0])
	img := image.NewGray(image.Rect(0, 0, width, height))
	for m, row := range spec {
		y := height - 1 - m
		for x, v := range row {
			img.SetGray(x, y, color.Gray{Y: uint8(255 * (v - lo) / scale)})
		}
	}
	return png.Encode(w, img)
}
