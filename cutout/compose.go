package cutout

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// paddings 单侧边距，percent 不大于 0 或不是有限值时为 0
func paddings(w, h int, percent float64) (int, int) {
	if !(percent > 0) || math.IsInf(percent, 0) {
		return 0, 0
	}
	return int(math.Floor(float64(w) * percent / 100)), int(math.Floor(float64(h) * percent / 100))
}

// PaddedSize 加边距后的尺寸
func PaddedSize(w, h int, percent float64) (int, int) {
	padW, padH := paddings(w, h, percent)
	return w + 2*padW, h + 2*padH
}

// AddPadding 四周各加 floor(边长*percent/100) 的透明边距，percent <= 0 时原样返回
func AddPadding(img *image.NRGBA, percent float64) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	padW, padH := paddings(w, h, percent)
	if padW == 0 && padH == 0 {
		return img
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w+2*padW, h+2*padH))
	rowBytes := w * 4
	for y := 0; y < h; y++ {
		si := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		di := dst.PixOffset(padW, padH+y)
		copy(dst.Pix[di:di+rowBytes], img.Pix[si:si+rowBytes])
	}
	return dst
}

// CleanEdges 按当前 alpha 把抠图混合到纯色不透明画布上，输出完全不透明
func CleanEdges(img *image.NRGBA, bg color.NRGBA) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	bgc := [3]int{int(bg.R), int(bg.G), int(bg.B)}

	for y := 0; y < h; y++ {
		si := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		di := y * dst.Stride
		for x := 0; x < w; x++ {
			s := img.Pix[si+x*4 : si+x*4+4 : si+x*4+4]
			d := dst.Pix[di+x*4 : di+x*4+4 : di+x*4+4]
			a := int(s[3])
			for c := 0; c < 3; c++ {
				d[c] = div255(bgc[c]*(255-a) + int(s[c])*a)
			}
			d[3] = 255
		}
	}
	return dst
}

// FitSize 等比缩放到不超过 w×h 的最大尺寸，受限的那条边恰好等于目标
func FitSize(srcW, srcH, w, h int) (int, int) {
	var fw, fh int
	if srcW*h > srcH*w {
		fw = w
		fh = int(float64(srcH) * float64(w) / float64(srcW))
	} else {
		fh = h
		fw = int(float64(srcW) * float64(h) / float64(srcH))
	}
	return max(1, min(fw, w)), max(1, min(fh, h))
}

// FitImage 等比缩放使图片完整放入 w×h。
// 在预乘 alpha 空间用 Lanczos3 重采样，避免透明边缘出现暗边
func FitImage(img *image.NRGBA, w, h int) *image.NRGBA {
	srcW, srcH := img.Rect.Dx(), img.Rect.Dy()
	fw, fh := FitSize(srcW, srcH, w, h)
	if fw == srcW && fh == srcH {
		return img
	}

	premul := image.NewRGBA(image.Rect(0, 0, srcW, srcH))
	draw.Draw(premul, premul.Bounds(), img, img.Rect.Min, draw.Src)

	resized := resize.Resize(uint(fw), uint(fh), premul, resize.Lanczos3)
	rgba, ok := resized.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, fw, fh))
		draw.Draw(rgba, rgba.Bounds(), resized, resized.Bounds().Min, draw.Src)
	}
	return unpremultiply(rgba)
}

func unpremultiply(src *image.RGBA) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		di := y * dst.Stride
		for x := 0; x < w; x++ {
			s := src.Pix[si+x*4 : si+x*4+4 : si+x*4+4]
			d := dst.Pix[di+x*4 : di+x*4+4 : di+x*4+4]
			a := s[3]
			d[3] = a
			switch a {
			case 0:
			case 255:
				d[0], d[1], d[2] = s[0], s[1], s[2]
			default:
				inv := 255.0 / float64(a)
				d[0] = clamp8(float64(s[0])*inv + 0.5)
				d[1] = clamp8(float64(s[1])*inv + 0.5)
				d[2] = clamp8(float64(s[2])*inv + 0.5)
			}
		}
	}
	return dst
}

// ComposeFinal 生成 w×h 的背景画布，把缩放后的图片居中并按其自身 alpha 贴上
func ComposeFinal(fitted *image.NRGBA, w, h int, bg color.NRGBA) *image.NRGBA {
	canvas := newCanvas(w, h, bg)
	x := (w - fitted.Rect.Dx()) / 2
	y := (h - fitted.Rect.Dy()) / 2
	r := image.Rect(x, y, x+fitted.Rect.Dx(), y+fitted.Rect.Dy())
	draw.Draw(canvas, r, fitted, fitted.Rect.Min, draw.Over)
	return canvas
}

// Flatten 丢弃 alpha 通道（RGB 保持不变，alpha 置 255），用于不支持透明的格式
func Flatten(img *image.NRGBA) *image.NRGBA {
	dst := cloneNRGBA(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 255
	}
	return dst
}

// Compositor 负责背景色选择与最终合成，主题色表在构造时注入
type Compositor struct {
	palette *Palette
}

func NewCompositor(palette *Palette) *Compositor {
	if palette == nil {
		palette = NewPalette(nil)
	}
	return &Compositor{palette: palette}
}

func (c *Compositor) Palette() *Palette {
	return c.palette
}

// SelectBackgroundColor 每张图片只选一次背景色
func (c *Compositor) SelectBackgroundColor(mode string, fixed color.NRGBA) color.NRGBA {
	switch {
	case mode == BackgroundRandom:
		return c.palette.RandomColor()
	case mode == BackgroundFixed:
		return fixed
	case c.palette.Has(mode):
		return c.palette.ThemeColor(mode)
	case mode == BackgroundTransparent:
		return Transparent
	default:
		return White
	}
}

// Compose 加边距、选背景、清理边缘、缩放、合成，opts.Opaque 时再去掉 alpha
func (c *Compositor) Compose(cutout *image.NRGBA, opts Options) (*image.NRGBA, color.NRGBA) {
	padded := AddPadding(cutout, opts.Padding)
	bg := c.SelectBackgroundColor(opts.Background, opts.FixedColor)

	// 透明背景没有可混合的目标色，保留原 alpha
	cleaned := padded
	if bg.A != 0 {
		cleaned = CleanEdges(padded, bg)
	}

	fitted := FitImage(cleaned, opts.Width, opts.Height)
	final := ComposeFinal(fitted, opts.Width, opts.Height, bg)
	if opts.Opaque {
		final = Flatten(final)
	}
	return final, bg
}
