package cutout

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/bgremove/cutout/segment"
)

func newTestPipeline(seg segment.Segmenter) *Pipeline {
	return NewPipeline(seg, NewCompositor(NewPalette(rand.New(rand.NewPCG(1, 2)))), nil)
}

func TestPipeline_EndToEnd(t *testing.T) {
	t.Parallel()

	src := solid(100, 100, red)
	p := newTestPipeline(segment.Static{DefaultModel: constMask(100, 100, 255)})

	opts := DefaultOptions()
	cut, err := p.RemoveBackground(context.Background(), "red.png", src, opts)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), cut.Rect)
	assert.Equal(t, src.Pix, cut.Pix, "不透明纯色图片处理后不变")

	opts.Background = BackgroundFixed
	opts.FixedColor = green
	opts.Padding = 10
	opts.Width, opts.Height = 200, 200

	final, err := p.FinalizeImage("red.png", cut, opts)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 200), final.Rect)
	assert.True(t, final.Opaque())

	// 120x120 放大到 200x200，红色区域约为 [16.7, 183.3)
	for _, pt := range []image.Point{{0, 0}, {10, 10}, {199, 0}, {0, 199}, {199, 199}, {100, 5}} {
		assert.Equal(t, green, final.NRGBAAt(pt.X, pt.Y), "背景 %v", pt)
	}
	for _, pt := range []image.Point{{30, 30}, {100, 100}, {170, 170}, {30, 170}} {
		assert.Equal(t, red, final.NRGBAAt(pt.X, pt.Y), "主体 %v", pt)
	}
}

func TestPipeline_MultiModel(t *testing.T) {
	t.Parallel()

	left := grayMask(20, 10, func(x, y int) uint8 {
		if x < 5 {
			return 255
		}
		return 0
	})
	right := grayMask(20, 10, func(x, y int) uint8 {
		if x >= 8 && x < 12 {
			return 255
		}
		return 0
	})
	p := newTestPipeline(segment.Static{"u2net": left, "silueta": right})

	opts := DefaultOptions()
	opts.Models = []string{"u2net", "silueta"}
	opts.Soften = NewBlur(0)

	cut, err := p.RemoveBackground(context.Background(), "a.png", solid(20, 10, red), opts)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 10), cut.Rect)
	assert.Equal(t, uint8(255), alphaAt(cut, 0, 0))
	assert.Equal(t, uint8(0), alphaAt(cut, 6, 5))
	assert.Equal(t, uint8(255), alphaAt(cut, 11, 9))
}

func TestPipeline_Process(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(segment.NewAlpha())
	opts := DefaultOptions()
	opts.Width, opts.Height = 64, 32
	opts.Background = "pastel"

	cut, final, err := p.Process(context.Background(), "p.png", solid(16, 16, red), opts)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), cut.Rect)
	assert.Equal(t, image.Rect(0, 0, 64, 32), final.Rect)

	pastel, _ := p.Compositor().Palette().Colors("pastel")
	assert.Contains(t, pastel, final.NRGBAAt(0, 0))
}

func TestPipeline_Errors(t *testing.T) {
	t.Parallel()

	src := solid(10, 10, red)
	segErr := errors.New("model offline")

	tests := []struct {
		name      string
		seg       segment.Segmenter
		src       image.Image
		opts      func(o *Options)
		ctx       func() context.Context
		wantStage string
		wantErr   error
	}{
		{
			name:      "模型列表为空",
			seg:       segment.NewAlpha(),
			src:       src,
			opts:      func(o *Options) { o.Models = nil },
			wantStage: StageValidate,
			wantErr:   ErrEmptyModelList,
		},
		{
			name:      "空图片",
			seg:       segment.NewAlpha(),
			src:       image.NewNRGBA(image.Rect(0, 0, 0, 0)),
			wantStage: StageValidate,
			wantErr:   ErrEmptySource,
		},
		{
			name:      "图片过大",
			seg:       segment.NewAlpha(),
			src:       src,
			opts:      func(o *Options) { o.MaxPixels = 99 },
			wantStage: StageValidate,
			wantErr:   ErrImageTooLarge,
		},
		{
			name: "分割失败",
			seg: segment.Func(func(context.Context, image.Image, string) (*image.Gray, error) {
				return nil, segErr
			}),
			src:       src,
			wantStage: StageSegment,
			wantErr:   segErr,
		},
		{
			name: "分割器返回空掩码",
			seg: segment.Func(func(context.Context, image.Image, string) (*image.Gray, error) {
				return nil, nil
			}),
			src:       src,
			wantStage: StageSegment,
			wantErr:   ErrEmptyMaskSet,
		},
		{
			name:      "模糊半径过大",
			seg:       segment.NewAlpha(),
			src:       src,
			opts:      func(o *Options) { o.Feather = NewBlur(1e9) },
			wantStage: StageValidate,
			wantErr:   ErrInvalidOption,
		},
		{
			name: "上下文已取消",
			seg:  segment.NewAlpha(),
			src:  src,
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantStage: StageSegment,
			wantErr:   context.Canceled,
		},
		{
			name:      "掩码尺寸不一致",
			seg:       segment.Static{DefaultModel: constMask(5, 5, 255)},
			src:       src,
			wantStage: StageApplyMask,
			wantErr:   ErrMaskSize,
		},
		{
			name: "多个掩码尺寸不一致",
			seg: segment.Static{
				"a": constMask(10, 10, 255),
				"b": constMask(10, 9, 255),
			},
			src:       src,
			opts:      func(o *Options) { o.Models = []string{"a", "b"} },
			wantStage: StageMerge,
			wantErr:   ErrMaskSize,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}

			_, err := newTestPipeline(tt.seg).RemoveBackground(ctx, "bad.png", tt.src, opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.wantStage, stageErr.Stage)
			assert.Equal(t, "bad.png", stageErr.Image)
		})
	}
}

func TestPipeline_FinalizeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    func(o *Options)
		wantErr error
	}{
		{
			name:    "输出尺寸为0",
			opts:    func(o *Options) { o.Width = 0 },
			wantErr: ErrInvalidSize,
		},
		{
			name:    "输出画布过大",
			opts:    func(o *Options) { o.Width, o.Height = 10000, 10000 },
			wantErr: ErrImageTooLarge,
		},
		{
			name: "加边距后超出像素上限",
			opts: func(o *Options) {
				o.Padding = 100
				o.Width, o.Height = 20, 20
				o.MaxPixels = 500
			},
			wantErr: ErrImageTooLarge,
		},
		{
			name:    "边距过大",
			opts:    func(o *Options) { o.Padding = 1e7 },
			wantErr: ErrInvalidOption,
		},
		{
			name:    "边距为NaN",
			opts:    func(o *Options) { o.Padding = math.NaN() },
			wantErr: ErrInvalidOption,
		},
		{
			name:    "边距为正无穷",
			opts:    func(o *Options) { o.Padding = math.Inf(1) },
			wantErr: ErrInvalidOption,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := DefaultOptions()
			tt.opts(&opts)

			final, err := newTestPipeline(nil).FinalizeImage("x.png", solid(10, 10, red), opts)
			assert.Nil(t, final)
			assert.ErrorIs(t, err, tt.wantErr)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, StageCompose, stageErr.Stage)
		})
	}

	t.Run("边距恰好在上限内", func(t *testing.T) {
		t.Parallel()
		opts := DefaultOptions()
		opts.Padding = 100
		opts.Width, opts.Height = 20, 20
		opts.MaxPixels = 900

		final, err := newTestPipeline(nil).FinalizeImage("x.png", solid(10, 10, red), opts)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 20, 20), final.Rect)
	})
}

func TestPipeline_AutoDespill(t *testing.T) {
	t.Parallel()

	src := solid(8, 8, color.NRGBA{G: 128, A: 255})
	mask := grayMask(8, 8, func(x, y int) uint8 {
		if x < 4 {
			return 255
		}
		return 128
	})
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetNRGBA(x, y, red)
		}
	}
	for y := 4; y < 8; y++ {
		for x := 0; x < 4; x++ {
			src.SetNRGBA(x, y, green)
		}
	}

	opts := DefaultOptions()
	opts.Despill = Despill{Enabled: true, Auto: true}
	opts.Boost = NewBoost(0)
	opts.Soften = NewBlur(0)

	bg := DominantColor(src)
	assert.Greater(t, bg.G, bg.R)

	cut, err := newTestPipeline(segment.Static{DefaultModel: mask}).RemoveBackground(context.Background(), "g.png", src, opts)
	require.NoError(t, err)
	// 半透明像素减去主色的贡献
	c := cut.NRGBAAt(6, 6)
	assert.Equal(t, uint8(128), c.A)
	assert.Less(t, c.G, uint8(255))
}
