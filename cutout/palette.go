package cutout

import (
	"image/color"
	"math/rand/v2"
	"sort"
	"sync"
)

// ThemeRandom 没有固定色表，每个通道在 [100,255] 内独立均匀取值
const ThemeRandom = "random"

const (
	randomColorMin = 100
	randomColorMax = 255
)

func rgb(r, g, b uint8) color.NRGBA {
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

var builtinThemes = map[string][]color.NRGBA{
	"pastel": {
		rgb(255, 209, 220), rgb(174, 198, 207), rgb(202, 231, 225),
		rgb(255, 253, 208), rgb(255, 179, 186), rgb(186, 255, 201),
		rgb(241, 222, 232), rgb(221, 245, 255), rgb(255, 235, 205),
	},
	"neon": {
		rgb(57, 255, 20), rgb(255, 20, 147), rgb(0, 255, 255),
		rgb(255, 255, 0), rgb(255, 105, 180), rgb(0, 255, 127),
		rgb(255, 0, 255), rgb(0, 255, 180),
	},
	"brand": {
		rgb(40, 166, 222), rgb(0, 0, 0), rgb(255, 255, 255),
		rgb(255, 51, 102), rgb(102, 204, 255),
	},
	"grey": {
		rgb(240, 240, 240), rgb(200, 200, 200), rgb(220, 220, 220),
		rgb(180, 180, 180), rgb(160, 160, 160),
	},
	"earth": {
		rgb(189, 183, 107), rgb(139, 69, 19), rgb(107, 142, 35),
		rgb(205, 133, 63), rgb(222, 184, 135),
	},
	"retro": {
		rgb(255, 105, 97), rgb(255, 179, 71), rgb(253, 253, 150),
		rgb(119, 221, 119), rgb(119, 158, 203), rgb(203, 153, 201),
	},
	ThemeRandom: nil,
}

// Rand 随机源，*rand.Rand 满足该接口
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Palette 只读的主题色表
type Palette struct {
	themes map[string][]color.NRGBA

	mu  sync.Mutex
	rnd Rand
}

// NewPalette 使用内置主题，rnd 为 nil 时使用全局随机源
func NewPalette(rnd Rand) *Palette {
	themes := make(map[string][]color.NRGBA, len(builtinThemes))
	for name, colors := range builtinThemes {
		themes[name] = append([]color.NRGBA(nil), colors...)
	}
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Palette{themes: themes, rnd: rnd}
}

// Names 主题名，按字母排序
func (p *Palette) Names() []string {
	names := make([]string, 0, len(p.themes))
	for name := range p.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Colors 返回主题色表的副本
func (p *Palette) Colors(theme string) ([]color.NRGBA, bool) {
	colors, ok := p.themes[theme]
	if !ok {
		return nil, false
	}
	return append([]color.NRGBA(nil), colors...), true
}

// Has 是否为已知主题
func (p *Palette) Has(theme string) bool {
	_, ok := p.themes[theme]
	return ok
}

func (p *Palette) intN(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.IntN(n)
}

// RandomColor 每个通道在 [100,255] 内均匀取值
func (p *Palette) RandomColor() color.NRGBA {
	span := randomColorMax - randomColorMin + 1
	return rgb(
		uint8(randomColorMin+p.intN(span)),
		uint8(randomColorMin+p.intN(span)),
		uint8(randomColorMin+p.intN(span)),
	)
}

// ThemeColor 从主题色表中均匀抽取一个颜色；
// random 主题走 RandomColor，未知主题返回白色
func (p *Palette) ThemeColor(theme string) color.NRGBA {
	colors, ok := p.themes[theme]
	if !ok {
		return White
	}
	if len(colors) == 0 {
		return p.RandomColor()
	}
	return colors[p.intN(len(colors))]
}
