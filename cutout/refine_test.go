package cutout

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMask(t *testing.T) {
	t.Parallel()

	src := solid(3, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	mask := grayMask(3, 2, func(x, y int) uint8 { return uint8(x*100 + y) })

	got, err := ApplyMask(src, mask)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 201}, got.NRGBAAt(2, 1))
	assert.Equal(t, uint8(0), alphaAt(got, 0, 0))
	assert.Equal(t, uint8(255), alphaAt(src, 0, 0), "源图不应被修改")

	_, err = ApplyMask(src, constMask(2, 2, 255))
	assert.ErrorIs(t, err, ErrMaskSize)
}

func TestApplyMask_OffsetSource(t *testing.T) {
	t.Parallel()

	big := solid(10, 10, red)
	big.SetNRGBA(5, 5, green)
	sub := big.SubImage(image.Rect(5, 5, 7, 7))

	got, err := ApplyMask(sub, constMask(2, 2, 128))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), got.Rect)
	assert.Equal(t, color.NRGBA{G: 255, A: 128}, got.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, A: 128}, got.NRGBAAt(1, 1))
}

func TestSuppressNearWhite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		px        color.NRGBA
		threshold uint8
		wantA     uint8
	}{
		{name: "近白像素变透明", px: color.NRGBA{R: 250, G: 251, B: 252, A: 200}, threshold: 245, wantA: 0},
		{name: "等于阈值也变透明", px: color.NRGBA{R: 245, G: 245, B: 245, A: 255}, threshold: 245, wantA: 0},
		{name: "一个通道低于阈值保留", px: color.NRGBA{R: 250, G: 250, B: 244, A: 255}, threshold: 245, wantA: 255},
		{name: "深色像素保留", px: color.NRGBA{R: 10, G: 20, B: 30, A: 90}, threshold: 245, wantA: 90},
		{name: "已透明保持透明", px: color.NRGBA{R: 255, G: 255, B: 255, A: 0}, threshold: 245, wantA: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			img := solid(1, 1, tt.px)
			got := SuppressNearWhite(img, tt.threshold)
			assert.Same(t, img, got)
			assert.Equal(t, tt.wantA, alphaAt(got, 0, 0))
			assert.Equal(t, tt.px.R, got.Pix[0], "RGB 不变")
		})
	}
}

func TestDespillEdges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		px       color.NRGBA
		backdrop color.NRGBA
		want     color.NRGBA
	}{
		{
			name:     "alpha为255不变",
			px:       color.NRGBA{R: 12, G: 200, B: 77, A: 255},
			backdrop: White,
			want:     color.NRGBA{R: 12, G: 200, B: 77, A: 255},
		},
		{
			name:     "alpha为0不处理",
			px:       color.NRGBA{R: 12, G: 200, B: 77, A: 0},
			backdrop: White,
			want:     color.NRGBA{R: 12, G: 200, B: 77, A: 0},
		},
		{
			name:     "黑色背景只做除法",
			px:       color.NRGBA{R: 100, G: 50, B: 0, A: 128},
			backdrop: color.NRGBA{A: 255},
			want:     color.NRGBA{R: 199, G: 99, B: 0, A: 128},
		},
		{
			name:     "白色背景截断并限制范围",
			px:       color.NRGBA{R: 200, G: 150, B: 100, A: 128},
			backdrop: White,
			want:     color.NRGBA{R: 255, G: 171, B: 72, A: 128},
		},
		{
			name:     "结果为负时取0",
			px:       color.NRGBA{R: 10, G: 10, B: 10, A: 128},
			backdrop: White,
			want:     color.NRGBA{R: 0, G: 0, B: 0, A: 128},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DespillEdges(solid(1, 1, tt.px), tt.backdrop)
			assert.Equal(t, tt.want, got.NRGBAAt(0, 0))
		})
	}
}

func TestBoostAlpha(t *testing.T) {
	t.Parallel()

	alphas := []uint8{0, 3, 100, 170, 200, 255}

	t.Run("factor为1不变", func(t *testing.T) {
		t.Parallel()
		img := solid(len(alphas), 1, red)
		for i, a := range alphas {
			img.Pix[i*4+3] = a
		}
		BoostAlpha(img, 1.0)
		for i, a := range alphas {
			assert.Equal(t, a, img.Pix[i*4+3])
		}
	})

	t.Run("放大后截断并限制在255", func(t *testing.T) {
		t.Parallel()
		img := solid(len(alphas), 1, red)
		for i, a := range alphas {
			img.Pix[i*4+3] = a
		}
		BoostAlpha(img, 1.5)
		want := []uint8{0, 4, 150, 255, 255, 255}
		for i := range alphas {
			assert.Equal(t, want[i], img.Pix[i*4+3], "alpha %d", alphas[i])
		}
	})

	t.Run("255在任意放大系数下保持255", func(t *testing.T) {
		t.Parallel()
		for _, f := range []float64{1.01, 1.5, 2, 10, 1e10, 1e20, math.MaxFloat64, math.Inf(1)} {
			img := BoostAlpha(solid(1, 1, red), f)
			assert.Equal(t, uint8(255), alphaAt(img, 0, 0), "factor %g", f)
		}
	})

	t.Run("极大系数下0保持0其余变为255", func(t *testing.T) {
		t.Parallel()
		for _, f := range []float64{1e20, math.Inf(1)} {
			img := solid(len(alphas), 1, red)
			for i, a := range alphas {
				img.Pix[i*4+3] = a
			}
			BoostAlpha(img, f)
			want := []uint8{0, 255, 255, 255, 255, 255}
			for i := range alphas {
				assert.Equal(t, want[i], img.Pix[i*4+3], "factor %g alpha %d", f, alphas[i])
			}
		}
	})
}

func TestBlurAlpha(t *testing.T) {
	t.Parallel()

	t.Run("均匀alpha保持不变", func(t *testing.T) {
		t.Parallel()
		img := solid(8, 8, color.NRGBA{R: 1, G: 2, B: 3, A: 200})
		LightenAlpha(img, 1)
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 200}, img.NRGBAAt(x, y))
			}
		}
	})

	t.Run("硬边缘被柔化且RGB不变", func(t *testing.T) {
		t.Parallel()
		img := solid(20, 1, red)
		for x := 10; x < 20; x++ {
			img.Pix[x*4+3] = 0
		}
		FeatherEdges(img, 3)

		assert.Greater(t, alphaAt(img, 10, 0), uint8(0))
		assert.Less(t, alphaAt(img, 9, 0), uint8(255))
		assert.GreaterOrEqual(t, alphaAt(img, 5, 0), alphaAt(img, 9, 0))
		for x := 0; x < 20; x++ {
			c := img.NRGBAAt(x, 0)
			assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{c.R, c.G, c.B})
		}
	})
}

func TestRefine(t *testing.T) {
	t.Parallel()

	newImg := func() *image.NRGBA {
		img := solid(2, 1, color.NRGBA{R: 90, G: 50, B: 0, A: 100})
		img.SetNRGBA(1, 0, color.NRGBA{R: 250, G: 250, B: 250, A: 255})
		return img
	}

	t.Run("只执行近白抑制", func(t *testing.T) {
		t.Parallel()
		opts := Options{WhiteThreshold: 245}
		got := Refine(newImg(), opts)
		assert.Equal(t, color.NRGBA{R: 90, G: 50, B: 0, A: 100}, got.NRGBAAt(0, 0))
		assert.Equal(t, uint8(0), alphaAt(got, 1, 0))
	})

	t.Run("阈值255时只抑制纯白", func(t *testing.T) {
		t.Parallel()
		got := Refine(newImg(), Options{WhiteThreshold: 255})
		assert.Equal(t, uint8(255), alphaAt(got, 1, 0))
	})

	t.Run("去溢色在放大之前", func(t *testing.T) {
		t.Parallel()
		opts := Options{
			WhiteThreshold: 245,
			Despill:        Despill{Enabled: true, Backdrop: color.NRGBA{A: 255}},
			Boost:          NewBoost(2),
		}
		got := Refine(newImg(), opts)
		// 90/0.392=229.5 50/0.392=127.5
		assert.Equal(t, color.NRGBA{R: 229, G: 127, B: 0, A: 200}, got.NRGBAAt(0, 0))
	})

	t.Run("关闭的阶段不执行", func(t *testing.T) {
		t.Parallel()
		opts := Options{
			WhiteThreshold: 245,
			Despill:        Despill{Enabled: false, Backdrop: White},
			Boost:          NewBoost(0),
			Soften:         NewBlur(-1),
			Feather:        NewBlur(0),
		}
		assert.False(t, opts.Boost.Enabled)
		assert.False(t, opts.Soften.Enabled)
		got := Refine(newImg(), opts)
		assert.Equal(t, color.NRGBA{R: 90, G: 50, B: 0, A: 100}, got.NRGBAAt(0, 0))
	})
}
