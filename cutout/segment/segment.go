package segment

import (
	"context"
	"fmt"
	"image"
	"image/color"
)

// Segmenter 外部分割模型，对源图按模型名产出同尺寸的 alpha 掩码
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, model string) (*image.Gray, error)
}

// Func 让普通函数满足 Segmenter
type Func func(ctx context.Context, img image.Image, model string) (*image.Gray, error)

func (f Func) Segment(ctx context.Context, img image.Image, model string) (*image.Gray, error) {
	return f(ctx, img, model)
}

// Alpha 直接使用源图已有的 alpha 通道作为掩码，忽略模型名。
// 已经抠好的图片或完全不透明的图片（掩码全 255）走这里
type Alpha struct{}

func NewAlpha() *Alpha {
	return &Alpha{}
}

func (a *Alpha) Segment(ctx context.Context, img image.Image, _ string) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return MaskFromAlpha(img), nil
}

// MaskFromAlpha 取出图片的 alpha 通道
func MaskFromAlpha(img image.Image) *image.Gray {
	b := img.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			row := nrgba.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < b.Dx(); x++ {
				mask.Pix[y*mask.Stride+x] = nrgba.Pix[row+x*4+3]
			}
		}
		return mask
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			_, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			mask.SetGray(x, y, color.Gray{Y: uint8(a >> 8)})
		}
	}
	return mask
}

// Static 预先算好的掩码，按模型名查找
type Static map[string]*image.Gray

func (s Static) Segment(ctx context.Context, _ image.Image, model string) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mask, ok := s[model]
	if !ok {
		return nil, fmt.Errorf("no mask for model %q", model)
	}
	return mask, nil
}
