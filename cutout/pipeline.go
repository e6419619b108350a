package cutout

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/cenkalti/dominantcolor"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremove/cutout/segment"
)

// Pipeline 单张图片的完整处理流程：分割掩码合并、alpha 修正、裁剪，以及最终合成。
// 不保存任何图片状态，可在多个 goroutine 中并发使用
type Pipeline struct {
	segmenter  segment.Segmenter
	compositor *Compositor
	logger     *zap.Logger
}

func NewPipeline(seg segment.Segmenter, compositor *Compositor, logger *zap.Logger) *Pipeline {
	if seg == nil {
		seg = segment.NewAlpha()
	}
	if compositor == nil {
		compositor = NewCompositor(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		segmenter:  seg,
		compositor: compositor,
		logger:     logger,
	}
}

func (p *Pipeline) Compositor() *Compositor {
	return p.compositor
}

// RemoveBackground 对每个模型调用一次分割器，合并掩码后修正 alpha 并裁掉透明边缘
func (p *Pipeline) RemoveBackground(ctx context.Context, name string, src image.Image, opts Options) (*image.NRGBA, error) {
	start := time.Now()
	if err := validateSource(src, opts); err != nil {
		return nil, stageErr(name, StageValidate, err)
	}

	masks := make([]*image.Gray, 0, len(opts.Models))
	for _, model := range opts.Models {
		if err := ctx.Err(); err != nil {
			return nil, stageErr(name, StageSegment, err)
		}
		mask, err := p.segmenter.Segment(ctx, src, model)
		if err != nil {
			return nil, stageErr(name, StageSegment, fmt.Errorf("model %s: %w", model, err))
		}
		if mask == nil {
			return nil, stageErr(name, StageSegment, fmt.Errorf("model %s returned no mask: %w", model, ErrEmptyMaskSet))
		}
		p.logger.Debug("mask generated",
			zap.String("image", name),
			zap.String("model", model),
			zap.Int("width", mask.Rect.Dx()),
			zap.Int("height", mask.Rect.Dy()))
		masks = append(masks, mask)
	}

	merged, err := MergeMasks(masks...)
	if err != nil {
		return nil, stageErr(name, StageMerge, err)
	}

	cutout, err := ApplyMask(src, merged)
	if err != nil {
		return nil, stageErr(name, StageApplyMask, err)
	}

	if opts.Despill.Enabled && opts.Despill.Auto {
		opts.Despill.Backdrop = DominantColor(src)
		p.logger.Debug("despill backdrop detected",
			zap.String("image", name),
			zap.Any("backdrop", opts.Despill.Backdrop))
	}

	cutout = Refine(cutout, opts)
	cropped := AutoCrop(cutout, opts.CropThreshold)

	p.logger.Debug("background removed",
		zap.String("image", name),
		zap.Int("models", len(opts.Models)),
		zap.Int("width", cropped.Rect.Dx()),
		zap.Int("height", cropped.Rect.Dy()),
		zap.Duration("cost", time.Since(start)))
	return cropped, nil
}

// FinalizeImage 加边距、选背景色并合成到目标尺寸的画布
func (p *Pipeline) FinalizeImage(name string, cutout *image.NRGBA, opts Options) (*image.NRGBA, error) {
	if err := validateOutput(cutout, opts); err != nil {
		return nil, stageErr(name, StageCompose, err)
	}

	final, bg := p.compositor.Compose(toNRGBA(cutout), opts)

	p.logger.Debug("image finalized",
		zap.String("image", name),
		zap.String("background", opts.Background),
		zap.Any("color", bg),
		zap.Int("width", final.Rect.Dx()),
		zap.Int("height", final.Rect.Dy()))
	return final, nil
}

// Process 依次执行 RemoveBackground 与 FinalizeImage
func (p *Pipeline) Process(ctx context.Context, name string, src image.Image, opts Options) (cutout, final *image.NRGBA, err error) {
	cutout, err = p.RemoveBackground(ctx, name, src, opts)
	if err != nil {
		return nil, nil, err
	}
	final, err = p.FinalizeImage(name, cutout, opts)
	if err != nil {
		return cutout, nil, err
	}
	return cutout, final, nil
}

func validateSource(src image.Image, opts Options) error {
	if len(opts.Models) == 0 {
		return ErrEmptyModelList
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if src == nil || src.Bounds().Empty() {
		return ErrEmptySource
	}
	b := src.Bounds()
	if opts.MaxPixels > 0 && b.Dx()*b.Dy() > opts.MaxPixels {
		return fmt.Errorf("%dx%d exceeds %d pixels: %w", b.Dx(), b.Dy(), opts.MaxPixels, ErrImageTooLarge)
	}
	return nil
}

func validateOutput(cutout *image.NRGBA, opts Options) error {
	if cutout == nil || cutout.Rect.Empty() {
		return ErrEmptySource
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("%dx%d: %w", opts.Width, opts.Height, ErrInvalidSize)
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.MaxPixels <= 0 {
		return nil
	}
	if opts.Width > opts.MaxPixels || opts.Height > opts.MaxPixels || opts.Width*opts.Height > opts.MaxPixels {
		return fmt.Errorf("output %dx%d exceeds %d pixels: %w", opts.Width, opts.Height, opts.MaxPixels, ErrImageTooLarge)
	}
	pw, ph := PaddedSize(cutout.Rect.Dx(), cutout.Rect.Dy(), opts.Padding)
	if pw*ph > opts.MaxPixels {
		return fmt.Errorf("padded %dx%d exceeds %d pixels: %w", pw, ph, opts.MaxPixels, ErrImageTooLarge)
	}
	return nil
}

// DominantColor 源图主色，作为未知背景时的去溢色参考
func DominantColor(img image.Image) color.NRGBA {
	c := dominantcolor.Find(img)
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
}
