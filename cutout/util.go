package cutout

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// toNRGBA 转为原点在 (0,0) 的 NRGBA，已满足条件时直接返回
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// cloneNRGBA 复制一份独立的像素缓冲
func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
	for y := 0; y < dst.Rect.Dy(); y++ {
		si := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+dst.Rect.Dx()*4], img.Pix[si:si+dst.Rect.Dx()*4])
	}
	return dst
}

// newCanvas 生成纯色画布
func newCanvas(w, h int, c color.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if c == Transparent {
		return dst
	}
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = c.R
		dst.Pix[i+1] = c.G
		dst.Pix[i+2] = c.B
		dst.Pix[i+3] = c.A
	}
	return dst
}

// extractAlpha 取出 alpha 通道
func extractAlpha(img *image.NRGBA) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	alpha := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		for x := 0; x < w; x++ {
			alpha.Pix[y*alpha.Stride+x] = img.Pix[row+x*4+3]
		}
	}
	return alpha
}

func clamp8(v float64) uint8 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// div255 (v + 128) / 255 的整数近似，四舍五入
func div255(v int) uint8 {
	v += 128
	return uint8((v + (v >> 8)) >> 8)
}
