package cutout

import (
	"fmt"
	"image/color"
	"math"
)

const (
	DefaultModel          = "isnet-general-use"
	DefaultWhiteThreshold = 245
	DefaultCropThreshold  = 10
	DefaultPadding        = 15
	DefaultSize           = 1200
	DefaultMaxPixels      = 40_000_000

	MaxPadding    = 100
	MaxBlurRadius = 50
)

// 背景模式，除此之外的取值按主题名处理
const (
	BackgroundRandom      = "random"
	BackgroundFixed       = "fixed"
	BackgroundTransparent = "transparent"
)

var (
	White       = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Transparent = color.NRGBA{}
)

// Despill 半透明边缘去色溢出。Auto 时以源图主色作为原背景色
type Despill struct {
	Enabled  bool
	Auto     bool
	Backdrop color.NRGBA
}

// Boost alpha 放大
type Boost struct {
	Enabled bool
	Factor  float64
}

// Blur alpha 通道高斯模糊
type Blur struct {
	Enabled bool
	Radius  float64
}

// NewBoost factor <= 0 表示关闭
func NewBoost(factor float64) Boost {
	return Boost{Enabled: factor > 0, Factor: factor}
}

// NewBlur radius <= 0 表示关闭
func NewBlur(radius float64) Blur {
	return Blur{Enabled: radius > 0, Radius: radius}
}

// Options 一次处理使用的全部参数，按值传递，处理过程中不修改
type Options struct {
	Models []string

	Despill        Despill
	WhiteThreshold uint8
	Boost          Boost
	Soften         Blur
	Feather        Blur
	CropThreshold  uint8

	Padding    float64
	Background string
	FixedColor color.NRGBA
	Width      int
	Height     int
	Opaque     bool

	MaxPixels int
}

// DefaultOptions 与原始界面的默认值一致
func DefaultOptions() Options {
	return Options{
		Models:         []string{DefaultModel},
		Despill:        Despill{Enabled: true, Backdrop: White},
		WhiteThreshold: DefaultWhiteThreshold,
		Boost:          NewBoost(1.5),
		Soften:         NewBlur(1),
		Feather:        NewBlur(0),
		CropThreshold:  DefaultCropThreshold,
		Padding:        DefaultPadding,
		Background:     BackgroundRandom,
		FixedColor:     White,
		Width:          DefaultSize,
		Height:         DefaultSize,
		MaxPixels:      DefaultMaxPixels,
	}
}

// Validate 检查数值参数是否有限且在允许范围内
func (o Options) Validate() error {
	if math.IsNaN(o.Padding) || o.Padding > MaxPadding {
		return fmt.Errorf("padding %v out of range (max %d): %w", o.Padding, MaxPadding, ErrInvalidOption)
	}
	if o.Boost.Enabled && math.IsNaN(o.Boost.Factor) {
		return fmt.Errorf("boost factor is NaN: %w", ErrInvalidOption)
	}
	for name, b := range map[string]Blur{"soften": o.Soften, "feather": o.Feather} {
		if b.Enabled && (math.IsNaN(b.Radius) || b.Radius > MaxBlurRadius) {
			return fmt.Errorf("%s radius %v out of range (max %d): %w", name, b.Radius, MaxBlurRadius, ErrInvalidOption)
		}
	}
	return nil
}
