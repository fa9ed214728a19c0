package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"imwithroc.com/ensemble/ml"
	"imwithroc.com/ensemble/types"
)

func encodePNG(t *testing.T, w, h int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := fill
			c.R += uint8(x * 4)
			c.G += uint8(y * 4)
			c.B = uint8((x*7 + y*13) * 11 % 256)
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testDecoder(t *testing.T, fs afero.Fs) *Decoder {
	t.Helper()
	d, err := NewDecoder(fs, types.ImageConfig{Width: 16, Height: 16, Interpolation: types.InterpolationBilinear})
	require.NoError(t, err)
	return d
}

func TestDecoder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/cat/a.png", encodePNG(t, 40, 30, color.RGBA{10, 20, 30, 255}), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/cat/broken.png", []byte("not an image"), 0o644))
	d := testDecoder(t, fs)

	t.Run("resizes to target", func(t *testing.T) {
		tensor, err := d.Load("/data/cat/a.png")
		require.NoError(t, err)
		require.Equal(t, 3, tensor.Channels)
		require.Equal(t, 16, tensor.Height)
		require.Equal(t, 16, tensor.Width)
		require.Len(t, tensor.Data, 3*16*16)
		for _, v := range tensor.Data {
			require.True(t, v >= 0 && v <= 255)
		}
	})

	t.Run("corrupt file is an input error", func(t *testing.T) {
		_, err := d.Load("/data/cat/broken.png")
		var inputErr *ml.InputError
		require.True(t, errors.As(err, &inputErr))
		require.Equal(t, "/data/cat/broken.png", inputErr.Path)
	})

	t.Run("missing file is an input error", func(t *testing.T) {
		_, err := d.Load("/data/cat/missing.png")
		var inputErr *ml.InputError
		require.True(t, errors.As(err, &inputErr))
	})

	t.Run("unknown interpolation", func(t *testing.T) {
		_, err := NewDecoder(fs, types.ImageConfig{Width: 4, Height: 4, Interpolation: "lanczos"})
		require.Error(t, err)
	})
}

func TestRandomConvBackbone(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := testDecoder(t, fs)
	tensor, err := d.DecodeBytes("a.png", encodePNG(t, 20, 20, color.RGBA{50, 100, 150, 255}))
	require.NoError(t, err)

	b1, err := NewRandomConvBackbone(42, 4, 8)
	require.NoError(t, err)
	b2, err := NewRandomConvBackbone(42, 4, 8)
	require.NoError(t, err)
	b3, err := NewRandomConvBackbone(7, 4, 8)
	require.NoError(t, err)

	v1, err := b1.Forward(tensor)
	require.NoError(t, err)
	require.Len(t, v1, b1.Dim())
	require.Equal(t, 2*4+3*8, b1.Dim())

	t.Run("deterministic for a seed", func(t *testing.T) {
		v2, err := b2.Forward(tensor)
		require.NoError(t, err)
		require.Equal(t, v1, v2)

		again, err := b1.Forward(tensor)
		require.NoError(t, err)
		require.Equal(t, v1, again)
	})

	t.Run("seed changes filters", func(t *testing.T) {
		v3, err := b3.Forward(tensor)
		require.NoError(t, err)
		require.NotEqual(t, v1[:8], v3[:8])
		require.Equal(t, v1[8:], v3[8:])
	})

	t.Run("histogram is normalized", func(t *testing.T) {
		hist := v1[8:]
		for c := 0; c < 3; c++ {
			sum := 0.0
			for _, v := range hist[c*8 : (c+1)*8] {
				sum += v
			}
			require.InDelta(t, 1, sum, 1e-9)
		}
	})

	t.Run("pooled activations are non negative", func(t *testing.T) {
		for _, v := range v1[:8] {
			require.GreaterOrEqual(t, v, 0.0)
		}
	})

	t.Run("too small input", func(t *testing.T) {
		_, err := b1.Forward(NewTensor(3, 4, 4))
		require.Error(t, err)
	})

	t.Run("invalid construction", func(t *testing.T) {
		_, err := NewRandomConvBackbone(1, 0, 8)
		require.Error(t, err)
		_, err = NewRandomConvBackbone(1, 4, 0)
		require.Error(t, err)
	})
}

type slowBackbone struct {
	delay time.Duration
}

func (s slowBackbone) Name() string { return "slow" }
func (s slowBackbone) Dim() int     { return 1 }
func (s slowBackbone) Forward(t Tensor) ([]float64, error) {
	time.Sleep(s.delay)
	return []float64{float64(t.At(0, 0, 0))}, nil
}

type panicBackbone struct{}

func (panicBackbone) Name() string { return "panic" }
func (panicBackbone) Dim() int     { return 1 }
func (panicBackbone) Forward(Tensor) ([]float64, error) {
	panic("bad kernel")
}

type memoryCache struct {
	m    sync.Mutex
	data map[string][]float64
	gets int
}

func (c *memoryCache) GetVector(_ context.Context, key string) ([]float64, bool, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.gets++
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) SetVector(_ context.Context, key string, v []float64) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.data[key] = v
	return nil
}

func TestExtractor(t *testing.T) {
	fs := afero.NewMemMapFs()
	img := encodePNG(t, 16, 16, color.RGBA{1, 2, 3, 255})
	require.NoError(t, afero.WriteFile(fs, "/a.png", img, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/bad.png", []byte("x"), 0o644))
	backbone, err := NewRandomConvBackbone(1, 2, 4)
	require.NoError(t, err)

	t.Run("timeout is an input error", func(t *testing.T) {
		e := &Extractor{Decoder: testDecoder(t, fs), Backbone: slowBackbone{delay: time.Second}, Timeout: 10 * time.Millisecond}
		res := e.Extract(context.Background(), "/a.png")
		var inputErr *ml.InputError
		require.True(t, errors.As(res.Err, &inputErr))
		require.Nil(t, res.Vector)
	})

	t.Run("cancellation is not an input error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		e := &Extractor{Decoder: testDecoder(t, fs), Backbone: slowBackbone{delay: 100 * time.Millisecond}, Timeout: time.Second}
		res := e.Extract(ctx, "/a.png")
		require.ErrorIs(t, res.Err, context.Canceled)
	})

	t.Run("panic is an input error", func(t *testing.T) {
		e := &Extractor{Decoder: testDecoder(t, fs), Backbone: panicBackbone{}}
		res := e.Extract(context.Background(), "/a.png")
		var inputErr *ml.InputError
		require.True(t, errors.As(res.Err, &inputErr))
		require.Contains(t, res.Err.Error(), "bad kernel")
	})

	t.Run("results stay aligned", func(t *testing.T) {
		e := &Extractor{Decoder: testDecoder(t, fs), Backbone: backbone, Timeout: time.Second}
		items := []ml.Item{
			{Path: "/a.png", Label: "x"},
			{Path: "/bad.png", Label: "y"},
			{Path: "/missing.png", Label: "y"},
			{Path: "/a.png", Label: "z"},
		}
		results := e.ExtractAll(context.Background(), items, 3)
		require.Len(t, results, 4)
		require.NoError(t, results[0].Err)
		require.Error(t, results[1].Err)
		require.Error(t, results[2].Err)
		require.NoError(t, results[3].Err)
		require.Equal(t, results[0].Vector, results[3].Vector)
	})

	t.Run("cache hit skips the backbone", func(t *testing.T) {
		cache := &memoryCache{data: map[string][]float64{}}
		e := &Extractor{Decoder: testDecoder(t, fs), Backbone: backbone, Cache: cache}
		first := e.Extract(context.Background(), "/a.png")
		require.NoError(t, first.Err)
		require.Len(t, cache.data, 1)

		e.Backbone = cachedName{Backbone: panicBackbone{}, name: backbone.Name()}
		second := e.Extract(context.Background(), "/a.png")
		require.NoError(t, second.Err)
		require.Equal(t, first.Vector, second.Vector)
		require.Equal(t, 2, cache.gets)
	})

	t.Run("cache scope separates entries", func(t *testing.T) {
		cache := &memoryCache{data: map[string][]float64{}}
		e := &Extractor{Decoder: testDecoder(t, fs), Backbone: backbone, Cache: cache, CacheScope: 1}
		require.NoError(t, e.Extract(context.Background(), "/a.png").Err)
		e.CacheScope = 2
		require.NoError(t, e.Extract(context.Background(), "/a.png").Err)
		require.Len(t, cache.data, 2)
	})
}

// cachedName reports another backbone's name so its cache entries are visible.
type cachedName struct {
	Backbone
	name string
}

func (c cachedName) Name() string { return c.name }

func TestNewBackbone(t *testing.T) {
	b, err := NewBackbone(types.BackboneConfig{Kind: types.RandomConvBackbone, Seed: 3, Filters: 2, HistogramBins: 2})
	require.NoError(t, err)
	require.Equal(t, 10, b.Dim())

	_, err = NewBackbone(types.BackboneConfig{Kind: "vit"})
	require.Error(t, err)
}
