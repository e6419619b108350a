package cutout

import (
	"fmt"
	"image"
)

// MergeMasks 逐像素取最大值合并多个模型的 alpha 掩码，不修改输入
func MergeMasks(masks ...*image.Gray) (*image.Gray, error) {
	if len(masks) == 0 {
		return nil, ErrEmptyMaskSet
	}

	for _, m := range masks {
		if m == nil {
			return nil, ErrEmptyMaskSet
		}
	}

	size := masks[0].Rect.Size()
	for i, m := range masks[1:] {
		if m.Rect.Size() != size {
			return nil, fmt.Errorf("mask %d is %v, want %v: %w", i+1, m.Rect.Size(), size, ErrMaskSize)
		}
	}

	merged := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		dst := merged.Pix[y*merged.Stride : y*merged.Stride+size.X]
		for _, m := range masks {
			off := m.PixOffset(m.Rect.Min.X, m.Rect.Min.Y+y)
			src := m.Pix[off : off+size.X]
			for x, v := range src {
				if v > dst[x] {
					dst[x] = v
				}
			}
		}
	}
	return merged, nil
}
