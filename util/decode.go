package util

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/webp"
)

var ErrImageTooLarge = errors.New("image too large")

type codec struct {
	name   string
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

var (
	pngCodec  = codec{"png", png.Decode, png.DecodeConfig}
	jpegCodec = codec{"jpeg", jpeg.Decode, jpeg.DecodeConfig}
	webpCodec = codec{"webp", webp.Decode, webp.DecodeConfig}
	tgaCodec  = codec{"tga", tga.Decode, tga.DecodeConfig}
)

// sniff 按文件头选择解码器。TGA 没有魔数，其余格式都不匹配时才按 TGA 解析
func sniff(head []byte) codec {
	switch {
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return pngCodec
	case bytes.HasPrefix(head, []byte("\xff\xd8")):
		return jpegCodec
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return webpCodec
	default:
		return tgaCodec
	}
}

// DecodeImage 解码 PNG、JPEG、WebP 或 TGA。
// maxPixels > 0 时先读取图片头，像素数超限直接返回 ErrImageTooLarge，不分配像素缓冲
func DecodeImage(r io.Reader, maxPixels int) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}
	c := sniff(data[:min(len(data), 12)])

	if maxPixels > 0 {
		cfg, err := c.config(bytes.NewReader(data))
		if err != nil {
			return nil, c.name, fmt.Errorf("decode %s header: %w", c.name, err)
		}
		if cfg.Width > maxPixels || cfg.Height > maxPixels || cfg.Width*cfg.Height > maxPixels {
			return nil, c.name, fmt.Errorf("%dx%d exceeds %d pixels: %w", cfg.Width, cfg.Height, maxPixels, ErrImageTooLarge)
		}
	}

	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return nil, c.name, fmt.Errorf("decode %s: %w", c.name, err)
	}
	return img, c.name, nil
}
