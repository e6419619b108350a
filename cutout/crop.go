package cutout

import (
	"image"
)

// AlphaBounds 计算 alpha >= threshold 的像素的最小外接矩形（半开区间），
// 没有满足条件的像素时 ok 为 false
func AlphaBounds(img *image.NRGBA, threshold uint8) (bbox image.Rectangle, ok bool) {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	minX, minY := w, h
	maxX, maxY := -1, -1

	for y := 0; y < h; y++ {
		row := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		for x := 0; x < w; x++ {
			if img.Pix[row+x*4+3] < threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX || maxY < minY {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// AutoCrop 裁掉透明边缘。全透明图片原样返回，不会裁出空图
func AutoCrop(img *image.NRGBA, threshold uint8) *image.NRGBA {
	bbox, ok := AlphaBounds(img, threshold)
	if !ok {
		return img
	}
	if bbox.Min == (image.Point{}) && bbox.Size() == img.Rect.Size() {
		return img
	}

	dst := image.NewNRGBA(image.Rect(0, 0, bbox.Dx(), bbox.Dy()))
	rowBytes := bbox.Dx() * 4
	for y := 0; y < bbox.Dy(); y++ {
		si := img.PixOffset(img.Rect.Min.X+bbox.Min.X, img.Rect.Min.Y+bbox.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowBytes], img.Pix[si:si+rowBytes])
	}
	return dst
}
