package util

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
)

// Format 输出编码格式
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

const jpegQuality = 95

var ErrAlphaUnsupported = errors.New("format has no alpha channel, opaque export required")

// ParseFormat 解析格式名，空字符串为 png
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// SupportsAlpha 格式是否能保存透明度
func (f Format) SupportsAlpha() bool {
	return f != FormatJPEG
}

// Ext 文件扩展名
func (f Format) Ext() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// ContentType MIME 类型
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

type opaquer interface {
	Opaque() bool
}

// Encode 按格式编码图片。不支持透明的格式要求图片已经完全不透明
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatJPEG:
		if o, ok := img.(opaquer); ok && !o.Opaque() {
			return ErrAlphaUnsupported
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case FormatWebP:
		return nativewebp.Encode(w, img, nil)
	case FormatPNG, "":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// SaveImage 编码并写入文件，目录不存在时自动创建
func SaveImage(path string, img image.Image, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, img, format); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// OutputName 原始文件名加 _processed 后缀
func OutputName(src string, format Format) string {
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_processed" + format.Ext()
}

// IsImageFile 按扩展名判断是否为可解码的图片
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".tga":
		return true
	}
	return false
}

// LoadImage 本地路径或 http(s) 地址，maxPixels 见 DecodeImage
func LoadImage(path string, maxPixels int) (image.Image, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return DownloadImage(path, maxPixels)
	}
	return OpenImage(path, maxPixels)
}

// DownloadImage 下载图片
func DownloadImage(url string, maxPixels int) (image.Image, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status code %d", url, resp.StatusCode)
	}

	img, _, err := DecodeImage(resp.Body, maxPixels)
	return img, err
}

// OpenImage 打开本地图片
func OpenImage(path string, maxPixels int) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	img, _, err := DecodeImage(file, maxPixels)
	return img, err
}
