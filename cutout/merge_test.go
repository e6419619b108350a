package cutout

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeMasks(t *testing.T) {
	t.Parallel()

	a := grayMask(4, 3, func(x, y int) uint8 { return uint8(x * 60) })
	b := grayMask(4, 3, func(x, y int) uint8 { return uint8(y * 100) })
	c := grayMask(4, 3, func(x, y int) uint8 { return uint8((x + y) * 20) })

	t.Run("逐像素取最大值", func(t *testing.T) {
		t.Parallel()
		got, err := MergeMasks(a, b, c)
		require.NoError(t, err)
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				want := max(a.GrayAt(x, y).Y, b.GrayAt(x, y).Y, c.GrayAt(x, y).Y)
				assert.Equal(t, want, got.GrayAt(x, y).Y, "(%d,%d)", x, y)
			}
		}
	})

	t.Run("单个掩码不变且不共享内存", func(t *testing.T) {
		t.Parallel()
		got, err := MergeMasks(a)
		require.NoError(t, err)
		assert.Equal(t, a.Pix, got.Pix)
		got.Pix[0] = 7
		assert.Equal(t, uint8(0), a.Pix[0])
	})

	t.Run("交换律与结合律", func(t *testing.T) {
		t.Parallel()
		ab, err := MergeMasks(a, b)
		require.NoError(t, err)
		ba, err := MergeMasks(b, a)
		require.NoError(t, err)
		assert.Equal(t, ab.Pix, ba.Pix)

		left, err := MergeMasks(ab, c)
		require.NoError(t, err)
		bc, err := MergeMasks(b, c)
		require.NoError(t, err)
		right, err := MergeMasks(a, bc)
		require.NoError(t, err)
		assert.Equal(t, left.Pix, right.Pix)
	})

	t.Run("空集合", func(t *testing.T) {
		t.Parallel()
		_, err := MergeMasks()
		assert.ErrorIs(t, err, ErrEmptyMaskSet)
	})

	t.Run("包含nil掩码", func(t *testing.T) {
		t.Parallel()
		_, err := MergeMasks(a, nil)
		assert.ErrorIs(t, err, ErrEmptyMaskSet)
	})

	t.Run("尺寸不一致", func(t *testing.T) {
		t.Parallel()
		_, err := MergeMasks(a, constMask(3, 4, 255))
		assert.ErrorIs(t, err, ErrMaskSize)
	})

	t.Run("子图像掩码按自身原点读取", func(t *testing.T) {
		t.Parallel()
		big := grayMask(8, 8, func(x, y int) uint8 { return uint8(x*10 + y) })
		sub := big.SubImage(image.Rect(2, 2, 6, 5)).(*image.Gray)
		got, err := MergeMasks(sub, constMask(4, 3, 0))
		require.NoError(t, err)
		assert.Equal(t, uint8(22), got.GrayAt(0, 0).Y)
		assert.Equal(t, uint8(54), got.GrayAt(3, 2).Y)
	})
}
