package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremove/util"
	nhttp "github.com/chaos-io/bgremove/util/http"
)

// 常用的 rembg 模型
const (
	ModelISNetGeneral = "isnet-general-use"
	ModelU2Net        = "u2net"
	ModelSilueta      = "silueta"
)

const removePath = "/api/remove"

// RemBG 通过 HTTP 调用 rembg 服务（rembg s）获取掩码。
// 上传源图 PNG，返回的抠图 PNG 的 alpha 通道即为掩码
type RemBG struct {
	endpoint string
	timeout  time.Duration
	cli      nhttp.IClient
	logger   *zap.Logger
}

func NewRemBG(endpoint string, timeout time.Duration, logger *zap.Logger) *RemBG {
	return NewRemBGWithClient(endpoint, timeout, nhttp.NewHTTPClient(), logger)
}

func NewRemBGWithClient(endpoint string, timeout time.Duration, cli nhttp.IClient, logger *zap.Logger) *RemBG {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemBG{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
		cli:      cli,
		logger:   logger,
	}
}

/*
	curl -X POST "$BASE_URL/api/remove" \
	  -F "file=@my_image.png" \
	  -F "model=isnet-general-use"
*/
func (r *RemBG) Segment(ctx context.Context, img image.Image, model string) (*image.Gray, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", ksuid.New().String()+".png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	_ = writer.WriteField("model", model)
	_ = writer.Close()

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: r.endpoint + removePath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &data,
		Timeout:    r.timeout,
	}
	start := time.Now()
	if err := r.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	cut, _, err := util.DecodeImage(bytes.NewReader(data), img.Bounds().Dx()*img.Bounds().Dy())
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if cut.Bounds().Size() != img.Bounds().Size() {
		return nil, fmt.Errorf("mask is %v, source is %v", cut.Bounds().Size(), img.Bounds().Size())
	}

	r.logger.Debug("rembg segmented",
		zap.String("model", model),
		zap.Int("bytes", len(data)),
		zap.Duration("cost", time.Since(start)))
	return MaskFromAlpha(cut), nil
}
