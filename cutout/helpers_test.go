package cutout

import (
	"image"
	"image/color"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	return newCanvas(w, h, c)
}

func grayMask(w, h int, fn func(x, y int) uint8) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Pix[y*m.Stride+x] = fn(x, y)
		}
	}
	return m
}

func constMask(w, h int, v uint8) *image.Gray {
	return grayMask(w, h, func(int, int) uint8 { return v })
}

func alphaAt(img *image.NRGBA, x, y int) uint8 {
	return img.NRGBAAt(x, y).A
}

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
)
