package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremove/batch"
	"github.com/chaos-io/bgremove/config"
	"github.com/chaos-io/bgremove/cutout"
	"github.com/chaos-io/bgremove/cutout/segment"
	"github.com/chaos-io/bgremove/handler"
	"github.com/chaos-io/bgremove/util"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径 (yaml)")
	serve := flag.Bool("serve", false, "启动 HTTP 服务")
	input := flag.String("input", "", "输入图片、目录或 http(s) 地址")
	output := flag.String("output", "", "输出目录")
	schedule := flag.String("schedule", "", "定时扫描输入目录的 cron 表达式，例如 \"@every 1m\"")
	format := flag.String("format", "", "输出格式 png|jpeg|webp")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		cfg.Batch.OutputDir = *output
	}
	if *schedule != "" {
		cfg.Batch.Schedule = *schedule
	}
	if *format != "" {
		cfg.Pipeline.Format = *format
	}

	if err := util.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	util.Logger.Info("starting bgremove",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	seg, closeSeg, err := newSegmenter(cfg.Segmenter)
	if err != nil {
		util.Logger.Fatal("failed to create segmenter", zap.Error(err))
	}
	defer closeSeg()

	pipeline := cutout.NewPipeline(seg, cutout.NewCompositor(nil), util.Logger.Named("pipeline"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *serve:
		runServer(cfg, pipeline)
	case cfg.Batch.Schedule != "":
		runScheduler(ctx, cfg, pipeline)
	default:
		if err := runBatch(ctx, cfg, pipeline, *input); err != nil {
			util.Logger.Error("batch failed", zap.Error(err))
			util.Sync()
			os.Exit(1)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.Load(path)
}

// newSegmenter 按配置创建分割器，rembg 结果经过进程内缓存
func newSegmenter(cfg config.SegmenterConfig) (segment.Segmenter, func(), error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "alpha":
		return segment.NewAlpha(), func() {}, nil
	case "rembg":
		remote := segment.NewRemBG(cfg.Endpoint, cfg.Timeout, util.Logger.Named("rembg"))
		if cfg.CacheSize <= 0 {
			return remote, func() {}, nil
		}
		cached, err := segment.NewCached(remote, cfg.CacheSize, util.Logger.Named("mask-cache"))
		if err != nil {
			return nil, nil, err
		}
		return cached, cached.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown segmenter kind %q", cfg.Kind)
	}
}

func newRunner(cfg *config.Config, pipeline *cutout.Pipeline) (*batch.Runner, error) {
	opts, err := cfg.Pipeline.Options(cfg.Limits.MaxPixels)
	if err != nil {
		return nil, err
	}
	return batch.NewRunner(pipeline, batch.Config{
		OutputDir: cfg.Batch.OutputDir,
		Format:    cfg.Pipeline.OutputFormat(),
		Options:   opts,
		Workers:   cfg.Batch.Workers,
	}, util.Logger.Named("batch")), nil
}

func runServer(cfg *config.Config, pipeline *cutout.Pipeline) {
	gin.SetMode(cfg.Server.Mode)

	r := handler.NewRouter(cfg, pipeline, handler.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
	})

	util.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := r.Run(cfg.Server.Port); err != nil {
		util.Logger.Fatal("failed to start server", zap.Error(err))
	}
}

func runScheduler(ctx context.Context, cfg *config.Config, pipeline *cutout.Pipeline) {
	runner, err := newRunner(cfg, pipeline)
	if err != nil {
		util.Logger.Fatal("invalid pipeline config", zap.Error(err))
	}

	scheduler := batch.NewScheduler(runner, cfg.Batch.InputDir, util.Logger.Named("scheduler"))
	if _, err := scheduler.Register(cfg.Batch.Schedule); err != nil {
		util.Logger.Fatal("failed to register schedule", zap.Error(err))
	}
	scheduler.Start()

	<-ctx.Done()
	util.Logger.Info("stopping scheduler")
	scheduler.Stop()
}

func runBatch(ctx context.Context, cfg *config.Config, pipeline *cutout.Pipeline, input string) error {
	defer util.Trace("batch")()

	runner, err := newRunner(cfg, pipeline)
	if err != nil {
		return err
	}

	if input == "" {
		input = cfg.Batch.InputDir
	}
	inputs := []string{input}
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		inputs, err = batch.ListImages(input)
		if err != nil {
			return err
		}
	}

	results := runner.Run(ctx, inputs)
	for _, r := range results {
		if r.Error == nil {
			util.Logger.Info("saved", zap.String("image", r.Name), zap.String("output", r.Output))
		}
	}
	return batch.Err(results)
}
