package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chaos-io/bgremove/cutout"
	"github.com/chaos-io/bgremove/util"
)

const envPrefix = "BGREMOVE"

// BackdropAuto 去溢色参考色取源图主色
const BackdropAuto = "auto"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Segmenter SegmenterConfig `mapstructure:"segmenter"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Limits    LimitsConfig    `mapstructure:"limits"`
}

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
	MaxUpload     int64         `mapstructure:"max_upload"`
}

type SegmenterConfig struct {
	Kind      string        `mapstructure:"kind"` // alpha, rembg
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int64         `mapstructure:"cache_size"`
}

type PipelineConfig struct {
	Models         []string `mapstructure:"models"`
	OriginalBG     string   `mapstructure:"original_bg"`
	Despill        bool     `mapstructure:"despill"`
	WhiteThreshold int      `mapstructure:"white_threshold"`
	BoostAlpha     float64  `mapstructure:"boost_alpha"`
	LightenRadius  float64  `mapstructure:"lighten_radius"`
	FeatherRadius  float64  `mapstructure:"feather_radius"`
	CropThreshold  int      `mapstructure:"crop_threshold"`
	Padding        float64  `mapstructure:"padding"`
	Background     string   `mapstructure:"background"`
	FixedColor     string   `mapstructure:"fixed_color"`
	Width          int      `mapstructure:"width"`
	Height         int      `mapstructure:"height"`
	Format         string   `mapstructure:"format"`
	Opaque         bool     `mapstructure:"opaque"`
}

type BatchConfig struct {
	Workers   int    `mapstructure:"workers"`
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
	Schedule  string `mapstructure:"schedule"`
}

type LimitsConfig struct {
	MaxPixels int `mapstructure:"max_pixels"`
}

// Load 从 YAML 文件加载配置，环境变量 BGREMOVE_* 可覆盖文件中的值
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// New 使用默认配置路径加载配置，文件不存在时只使用默认值和环境变量
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		cfg, err = unmarshal(newViper())
		if err != nil {
			return getDefaultConfig()
		}
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := getDefaultConfig()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.max_concurrent", d.Server.MaxConcurrent)
	v.SetDefault("server.queue_timeout", d.Server.QueueTimeout)
	v.SetDefault("server.max_upload", d.Server.MaxUpload)

	v.SetDefault("segmenter.kind", d.Segmenter.Kind)
	v.SetDefault("segmenter.endpoint", d.Segmenter.Endpoint)
	v.SetDefault("segmenter.timeout", d.Segmenter.Timeout)
	v.SetDefault("segmenter.cache_size", d.Segmenter.CacheSize)

	v.SetDefault("pipeline.models", d.Pipeline.Models)
	v.SetDefault("pipeline.original_bg", d.Pipeline.OriginalBG)
	v.SetDefault("pipeline.despill", d.Pipeline.Despill)
	v.SetDefault("pipeline.white_threshold", d.Pipeline.WhiteThreshold)
	v.SetDefault("pipeline.boost_alpha", d.Pipeline.BoostAlpha)
	v.SetDefault("pipeline.lighten_radius", d.Pipeline.LightenRadius)
	v.SetDefault("pipeline.feather_radius", d.Pipeline.FeatherRadius)
	v.SetDefault("pipeline.crop_threshold", d.Pipeline.CropThreshold)
	v.SetDefault("pipeline.padding", d.Pipeline.Padding)
	v.SetDefault("pipeline.background", d.Pipeline.Background)
	v.SetDefault("pipeline.fixed_color", d.Pipeline.FixedColor)
	v.SetDefault("pipeline.width", d.Pipeline.Width)
	v.SetDefault("pipeline.height", d.Pipeline.Height)
	v.SetDefault("pipeline.format", d.Pipeline.Format)
	v.SetDefault("pipeline.opaque", d.Pipeline.Opaque)

	v.SetDefault("batch.workers", d.Batch.Workers)
	v.SetDefault("batch.input_dir", d.Batch.InputDir)
	v.SetDefault("batch.output_dir", d.Batch.OutputDir)
	v.SetDefault("batch.schedule", d.Batch.Schedule)

	v.SetDefault("limits.max_pixels", d.Limits.MaxPixels)
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          ":8080",
			Mode:          "debug",
			MaxConcurrent: 3,
			QueueTimeout:  30 * time.Second,
			MaxUpload:     20 * 1024 * 1024,
		},
		Segmenter: SegmenterConfig{
			Kind:      "alpha",
			Endpoint:  "http://localhost:7000",
			Timeout:   60 * time.Second,
			CacheSize: 256 * 1024 * 1024,
		},
		Pipeline: PipelineConfig{
			Models:         []string{cutout.DefaultModel},
			OriginalBG:     "#ffffff",
			Despill:        true,
			WhiteThreshold: cutout.DefaultWhiteThreshold,
			BoostAlpha:     1.5,
			LightenRadius:  1,
			FeatherRadius:  0,
			CropThreshold:  cutout.DefaultCropThreshold,
			Padding:        cutout.DefaultPadding,
			Background:     cutout.BackgroundRandom,
			FixedColor:     "#ffffff",
			Width:          cutout.DefaultSize,
			Height:         cutout.DefaultSize,
			Format:         string(util.FormatPNG),
			Opaque:         false,
		},
		Batch: BatchConfig{
			Workers:   runtime.NumCPU(),
			InputDir:  "./input",
			OutputDir: "./output",
			Schedule:  "",
		},
		Limits: LimitsConfig{
			MaxPixels: cutout.DefaultMaxPixels,
		},
	}
}

// Options 转换为处理参数。JPEG 输出必然去掉 alpha
func (p PipelineConfig) Options(maxPixels int) (cutout.Options, error) {
	opts := cutout.DefaultOptions()

	opts.Models = append([]string(nil), p.Models...)
	opts.Despill.Enabled = p.Despill
	if strings.EqualFold(p.OriginalBG, BackdropAuto) {
		opts.Despill.Auto = true
	} else {
		c, err := util.ParseHexColor(p.OriginalBG)
		if err != nil {
			return opts, fmt.Errorf("original_bg: %w", err)
		}
		opts.Despill.Backdrop = c
	}

	if p.WhiteThreshold < 0 || p.WhiteThreshold > 255 {
		return opts, fmt.Errorf("white_threshold %d out of range [0,255]", p.WhiteThreshold)
	}
	opts.WhiteThreshold = uint8(p.WhiteThreshold)
	if p.CropThreshold < 0 || p.CropThreshold > 255 {
		return opts, fmt.Errorf("crop_threshold %d out of range [0,255]", p.CropThreshold)
	}
	opts.CropThreshold = uint8(p.CropThreshold)

	opts.Boost = cutout.NewBoost(p.BoostAlpha)
	opts.Soften = cutout.NewBlur(p.LightenRadius)
	opts.Feather = cutout.NewBlur(p.FeatherRadius)

	opts.Padding = p.Padding
	opts.Background = p.Background
	fixed, err := util.ParseHexColor(p.FixedColor)
	if err != nil {
		return opts, fmt.Errorf("fixed_color: %w", err)
	}
	opts.FixedColor = fixed
	opts.Width = p.Width
	opts.Height = p.Height

	format, err := util.ParseFormat(p.Format)
	if err != nil {
		return opts, err
	}
	opts.Opaque = p.Opaque || !format.SupportsAlpha()
	opts.MaxPixels = maxPixels
	return opts, opts.Validate()
}

// OutputFormat 输出格式
func (p PipelineConfig) OutputFormat() util.Format {
	f, err := util.ParseFormat(p.Format)
	if err != nil {
		return util.FormatPNG
	}
	return f
}
