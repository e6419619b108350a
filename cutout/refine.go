package cutout

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ApplyMask 以源图 RGB 和掩码生成新的抠图缓冲，源图 alpha 被掩码替换
func ApplyMask(src image.Image, mask *image.Gray) (*image.NRGBA, error) {
	b := src.Bounds()
	if mask.Rect.Size() != b.Size() {
		return nil, fmt.Errorf("mask is %v, source is %v: %w", mask.Rect.Size(), b.Size(), ErrMaskSize)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		row := y * dst.Stride
		moff := mask.PixOffset(mask.Rect.Min.X, mask.Rect.Min.Y+y)
		for x := 0; x < w; x++ {
			dst.Pix[row+x*4+3] = mask.Pix[moff+x]
		}
	}
	return dst, nil
}

// SuppressNearWhite 把 RGB 三通道都不低于 threshold 的可见像素变为全透明，原地修改
func SuppressNearWhite(img *image.NRGBA, threshold uint8) *image.NRGBA {
	forEachPixel(img, func(p []uint8) {
		if p[3] > 0 && p[0] >= threshold && p[1] >= threshold && p[2] >= threshold {
			p[3] = 0
		}
	})
	return img
}

// DespillEdges 反推半透明边缘与原背景色的线性混合，去除背景色溢出，原地修改。
// alpha 为 0 或 255 的像素不处理
func DespillEdges(img *image.NRGBA, backdrop color.NRGBA) *image.NRGBA {
	bg := [3]float64{float64(backdrop.R), float64(backdrop.G), float64(backdrop.B)}
	forEachPixel(img, func(p []uint8) {
		a := p[3]
		if a == 0 || a == 255 {
			return
		}
		alpha := float64(a) / 255.0
		for c := 0; c < 3; c++ {
			v := float64(p[c])/alpha - bg[c]*(1-alpha)
			p[c] = clamp8(math.Trunc(v))
		}
	})
	return img
}

// BoostAlpha alpha 乘以 factor，截断取整后限制在 255 以内，原地修改。
// factor 为 +Inf 时所有非零 alpha 变为 255
func BoostAlpha(img *image.NRGBA, factor float64) *image.NRGBA {
	var lut [256]uint8
	for i := 1; i < len(lut); i++ {
		lut[i] = clamp8(math.Trunc(float64(i) * factor))
	}
	forEachPixel(img, func(p []uint8) {
		p[3] = lut[p[3]]
	})
	return img
}

// LightenAlpha 仅对 alpha 通道做小半径高斯模糊，RGB 不变
func LightenAlpha(img *image.NRGBA, radius float64) *image.NRGBA {
	return blurAlpha(img, radius)
}

// FeatherEdges 对 alpha 做较大半径的高斯模糊，柔化轮廓
func FeatherEdges(img *image.NRGBA, radius float64) *image.NRGBA {
	return blurAlpha(img, radius)
}

func blurAlpha(img *image.NRGBA, sigma float64) *image.NRGBA {
	blurred := imaging.Blur(extractAlpha(img), sigma)

	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		brow := y * blurred.Stride
		for x := 0; x < w; x++ {
			img.Pix[row+x*4+3] = blurred.Pix[brow+x*4]
		}
	}
	return img
}

// Refine 按固定顺序执行 alpha 修正：近白抑制始终执行，其余阶段按开关执行
func Refine(img *image.NRGBA, opts Options) *image.NRGBA {
	img = SuppressNearWhite(img, opts.WhiteThreshold)
	if opts.Despill.Enabled {
		img = DespillEdges(img, opts.Despill.Backdrop)
	}
	if opts.Boost.Enabled {
		img = BoostAlpha(img, opts.Boost.Factor)
	}
	if opts.Soften.Enabled {
		img = LightenAlpha(img, opts.Soften.Radius)
	}
	if opts.Feather.Enabled {
		img = FeatherEdges(img, opts.Feather.Radius)
	}
	return img
}

func forEachPixel(img *image.NRGBA, fn func(p []uint8)) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		for x := 0; x < w; x++ {
			i := row + x*4
			fn(img.Pix[i : i+4 : i+4])
		}
	}
}
