package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremove/cutout"
	"github.com/chaos-io/bgremove/util"
)

// Config 批处理共享参数
type Config struct {
	OutputDir string
	Format    util.Format
	Options   cutout.Options
	Workers   int
}

// Result 单张图片的处理结果
type Result struct {
	Name   string
	Output string
	Error  error
}

// Runner 以固定数量的 worker 处理一批图片，单张失败不影响其余图片
type Runner struct {
	pipeline *cutout.Pipeline
	cfg      Config
	logger   *zap.Logger
}

func NewRunner(pipeline *cutout.Pipeline, cfg Config, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Format == "" {
		cfg.Format = util.FormatPNG
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{pipeline: pipeline, cfg: cfg, logger: logger}
}

// Run 处理 inputs 中的所有图片，结果顺序与 inputs 一致
func (r *Runner) Run(ctx context.Context, inputs []string) []Result {
	runID := ksuid.New().String()
	logger := r.logger.With(zap.String("run_id", runID))

	total := len(inputs)
	results := make([]Result, total)
	if total == 0 {
		return results
	}

	if err := os.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		for i, in := range inputs {
			results[i] = Result{Name: in, Error: fmt.Errorf("create output dir: %w", err)}
		}
		return results
	}

	var processed atomic.Int64
	start := time.Now()

	itemChan := make(chan int, r.cfg.Workers*2)
	var wg sync.WaitGroup

	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range itemChan {
				results[idx] = r.processItem(ctx, inputs[idx])
				n := processed.Add(1)
				if results[idx].Error != nil {
					logger.Error("image failed",
						zap.String("image", inputs[idx]),
						zap.Error(results[idx].Error))
				} else {
					logger.Info("image processed",
						zap.String("image", inputs[idx]),
						zap.String("output", results[idx].Output),
						zap.Int64("done", n),
						zap.Int("total", total))
				}
			}
		}()
	}

	for i := range inputs {
		itemChan <- i
	}
	close(itemChan)
	wg.Wait()

	logger.Info("batch finished",
		zap.Int("total", total),
		zap.Int("failed", len(Failed(results))),
		zap.Duration("cost", time.Since(start)))
	return results
}

// StagePanic 处理单张图片时发生 panic
const StagePanic = "panic"

func (r *Runner) processItem(ctx context.Context, input string) (res Result) {
	res = Result{Name: input}
	defer func() {
		if p := recover(); p != nil {
			res = Result{Name: input, Error: &cutout.StageError{Image: input, Stage: StagePanic, Err: fmt.Errorf("%v", p)}}
		}
	}()

	src, err := util.LoadImage(input, r.cfg.Options.MaxPixels)
	if err != nil {
		res.Error = err
		return res
	}

	_, final, err := r.pipeline.Process(ctx, input, src, r.cfg.Options)
	if err != nil {
		res.Error = err
		return res
	}

	out := filepath.Join(r.cfg.OutputDir, util.OutputName(input, r.cfg.Format))
	if err := util.SaveImage(out, final, r.cfg.Format); err != nil {
		res.Error = &cutout.StageError{Image: input, Stage: cutout.StageExport, Err: err}
		return res
	}
	res.Output = out
	return res
}

// Failed 返回处理失败的结果
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Error != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err 汇总所有失败
func Err(results []Result) error {
	var errs []error
	for _, r := range Failed(results) {
		errs = append(errs, r.Error)
	}
	return errors.Join(errs...)
}

// ListImages 列出目录下的图片文件（不递归），按文件名排序
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if util.IsImageFile(path) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Scheduler 按 cron 表达式定时扫描输入目录，只处理上次扫描后新增或修改过的图片。
// 处理失败的图片在文件再次修改前不会重试
type Scheduler struct {
	runner   *Runner
	inputDir string
	cron     *cron.Cron
	logger   *zap.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewScheduler(runner *Runner, inputDir string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:   runner,
		inputDir: inputDir,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger,
		seen:     make(map[string]time.Time),
	}
}

// Register 注册扫描任务
func (s *Scheduler) Register(schedule string) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("sweep failed", zap.String("dir", s.inputDir), zap.Error(err))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	s.logger.Info("sweep scheduled", zap.String("schedule", schedule), zap.Int("entry", int(id)))
	return id, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的扫描结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep 处理一次输入目录中的新图片
func (s *Scheduler) Sweep(ctx context.Context) ([]Result, error) {
	files, err := ListImages(s.inputDir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var pending []string
	mtimes := make(map[string]time.Time, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		mtimes[f] = info.ModTime()
		if last, ok := s.seen[f]; ok && !info.ModTime().After(last) {
			continue
		}
		pending = append(pending, f)
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil, nil
	}

	results := s.runner.Run(ctx, pending)

	// 失败的图片同样记录，文件被修改后才重试
	s.mu.Lock()
	for _, r := range results {
		if r.Error != nil && (errors.Is(r.Error, context.Canceled) || errors.Is(r.Error, context.DeadlineExceeded)) {
			continue
		}
		s.seen[r.Name] = mtimes[r.Name]
	}
	s.mu.Unlock()
	return results, nil
}
