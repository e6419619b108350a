package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremove/config"
	"github.com/chaos-io/bgremove/cutout"
	"github.com/chaos-io/bgremove/middleware"
	"github.com/chaos-io/bgremove/model"
	"github.com/chaos-io/bgremove/util"
)

var errQueueFull = errors.New("processing queue is full")

type CutoutHandler struct {
	cfg          *config.Config
	pipeline     *cutout.Pipeline
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewCutoutHandler(cfg *config.Config, pipeline *cutout.Pipeline) *CutoutHandler {
	return &CutoutHandler{
		cfg:          cfg,
		pipeline:     pipeline,
		semaphore:    make(chan struct{}, max(1, cfg.Server.MaxConcurrent)),
		queueTimeout: cfg.Server.QueueTimeout,
	}
}

// Register 注册路由
func (h *CutoutHandler) Register(r gin.IRouter) {
	r.GET("/themes", h.Themes)
	r.POST("/remove", h.Remove)
	r.POST("/cutout", h.Cutout)
}

// Themes 列出主题及候选颜色
func (h *CutoutHandler) Themes(c *gin.Context) {
	palette := h.pipeline.Compositor().Palette()
	themes := make([]model.Theme, 0)
	for _, name := range palette.Names() {
		colors, _ := palette.Colors(name)
		theme := model.Theme{Name: name, Colors: make([]string, 0, len(colors)), Random: len(colors) == 0}
		for _, col := range colors {
			theme.Colors = append(theme.Colors, util.HexColor(col))
		}
		themes = append(themes, theme)
	}
	c.JSON(http.StatusOK, model.ThemesResponse{Success: true, Themes: themes})
}

// Remove 只去背景，返回裁剪后的透明 PNG
func (h *CutoutHandler) Remove(c *gin.Context) {
	h.handle(c, false)
}

// Cutout 去背景并合成到目标画布
func (h *CutoutHandler) Cutout(c *gin.Context) {
	h.handle(c, true)
}

func (h *CutoutHandler) handle(c *gin.Context, finalize bool) {
	name, src, ok := h.readImage(c)
	if !ok {
		return
	}

	pc, err := pipelineConfigFromForm(c, h.cfg.Pipeline)
	if err != nil {
		badRequest(c, "参数错误", err)
		return
	}
	opts, err := pc.Options(h.cfg.Limits.MaxPixels)
	if err != nil {
		badRequest(c, "参数错误", err)
		return
	}
	format := pc.OutputFormat()
	if !finalize {
		format = util.FormatPNG
	}

	release, err := h.acquire(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Success: false,
			Message: "处理队列已满，请稍后重试",
			Error:   err.Error(),
		})
		return
	}
	defer release()

	var out image.Image
	if finalize {
		_, out, err = h.pipeline.Process(c.Request.Context(), name, src, opts)
	} else {
		out, err = h.pipeline.RemoveBackground(c.Request.Context(), name, src, opts)
	}
	if err != nil {
		util.Logger.Error("failed to process image",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.String("image", name),
			zap.Error(err))
		c.JSON(statusFor(err), model.ErrorResponse{
			Success: false,
			Message: "图片处理失败",
			Error:   err.Error(),
		})
		return
	}

	var buf bytes.Buffer
	if err := util.Encode(&buf, out, format); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "编码失败",
			Error:   err.Error(),
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, util.OutputName(name, format)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *CutoutHandler) readImage(c *gin.Context) (string, image.Image, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "请上传图片文件", err)
		return "", nil, false
	}

	if h.cfg.Server.MaxUpload > 0 && file.Size > h.cfg.Server.MaxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Server.MaxUpload/(1024*1024)),
		})
		return "", nil, false
	}

	f, err := file.Open()
	if err != nil {
		badRequest(c, "读取文件失败", err)
		return "", nil, false
	}
	defer func() {
		_ = f.Close()
	}()

	src, _, err := util.DecodeImage(f, h.cfg.Limits.MaxPixels)
	if errors.Is(err, util.ErrImageTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{
			Success: false,
			Message: "图片像素数超过限制",
			Error:   err.Error(),
		})
		return "", nil, false
	}
	if err != nil {
		badRequest(c, "不支持的图片格式", err)
		return "", nil, false
	}
	return file.Filename, src, true
}

func (h *CutoutHandler) acquire(ctx context.Context) (func(), error) {
	if h.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queueTimeout)
		defer cancel()
	}

	select {
	case h.semaphore <- struct{}{}:
		return func() { <-h.semaphore }, nil
	case <-ctx.Done():
		return nil, errQueueFull
	}
}

// pipelineConfigFromForm 表单字段覆盖配置中的默认值
func pipelineConfigFromForm(c *gin.Context, pc config.PipelineConfig) (config.PipelineConfig, error) {
	if v, ok := c.GetPostForm("models"); ok {
		pc.Models = nil
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				pc.Models = append(pc.Models, m)
			}
		}
	}

	strFields := map[string]*string{
		"original_bg": &pc.OriginalBG,
		"background":  &pc.Background,
		"fixed_color": &pc.FixedColor,
		"format":      &pc.Format,
	}
	for key, dst := range strFields {
		if v, ok := c.GetPostForm(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	boolFields := map[string]*bool{
		"despill": &pc.Despill,
		"opaque":  &pc.Opaque,
	}
	for key, dst := range boolFields {
		if v, ok := c.GetPostForm(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return pc, fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	intFields := map[string]*int{
		"white_threshold": &pc.WhiteThreshold,
		"crop_threshold":  &pc.CropThreshold,
		"width":           &pc.Width,
		"height":          &pc.Height,
	}
	for key, dst := range intFields {
		if v, ok := c.GetPostForm(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return pc, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	floatFields := map[string]*float64{
		"boost":   &pc.BoostAlpha,
		"soften":  &pc.LightenRadius,
		"feather": &pc.FeatherRadius,
		"padding": &pc.Padding,
	}
	for key, dst := range floatFields {
		if v, ok := c.GetPostForm(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return pc, fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	return pc, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cutout.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, cutout.ErrEmptyModelList),
		errors.Is(err, cutout.ErrEmptySource),
		errors.Is(err, cutout.ErrMaskSize),
		errors.Is(err, cutout.ErrEmptyMaskSet),
		errors.Is(err, cutout.ErrInvalidSize),
		errors.Is(err, cutout.ErrInvalidOption):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string, err error) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Success: false,
		Message: msg,
		Error:   err.Error(),
	})
}
