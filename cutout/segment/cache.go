package segment

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// Cached 进程内掩码缓存，键为源图像素的 MD5 加模型名。
// 同一张图片多次调整参数时不必重复调用分割模型
type Cached struct {
	next   Segmenter
	cache  *ristretto.Cache
	logger *zap.Logger
}

// NewCached maxBytes 为缓存掩码占用的最大字节数
func NewCached(next Segmenter, maxBytes int64, logger *zap.Logger) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: max(maxBytes/1024, 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: cache, logger: logger}, nil
}

func (c *Cached) Segment(ctx context.Context, img image.Image, model string) (*image.Gray, error) {
	key := ImageKey(img) + ":" + model
	if v, ok := c.cache.Get(key); ok {
		if mask, ok := v.(*image.Gray); ok {
			c.logger.Debug("mask cache hit", zap.String("key", key))
			return mask, nil
		}
	}

	mask, err := c.next.Segment(ctx, img, model)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, mask, int64(len(mask.Pix)))
	return mask, nil
}

// Wait 等待缓冲中的写入生效
func (c *Cached) Wait() {
	c.cache.Wait()
}

func (c *Cached) Close() {
	c.cache.Close()
}

// ImageKey 按像素内容计算 MD5，与编码格式无关
func ImageKey(img image.Image) string {
	b := img.Bounds()
	hash := md5.New()

	var size [16]byte
	binary.LittleEndian.PutUint64(size[:8], uint64(b.Dx()))
	binary.LittleEndian.PutUint64(size[8:], uint64(b.Dy()))
	hash.Write(size[:])

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := nrgba.PixOffset(b.Min.X, y)
			hash.Write(nrgba.Pix[off : off+b.Dx()*4])
		}
		return hex.EncodeToString(hash.Sum(nil))
	}

	var px [8]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			binary.LittleEndian.PutUint16(px[0:], uint16(r))
			binary.LittleEndian.PutUint16(px[2:], uint16(g))
			binary.LittleEndian.PutUint16(px[4:], uint16(bl))
			binary.LittleEndian.PutUint16(px[6:], uint16(a))
			hash.Write(px[:])
		}
	}
	return hex.EncodeToString(hash.Sum(nil))
}
