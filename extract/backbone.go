package extract

import (
	"fmt"
	"math"
	"math/rand"
)

// Backbone is a frozen feature transform: Forward never changes its parameters, so the same
// tensor always maps to the same vector.
type Backbone interface {
	Name() string
	Dim() int
	Forward(t Tensor) ([]float64, error)
}

type convLayer struct {
	in, out, size, stride int
	// weights[o][(i*size+ky)*size+kx]
	weights [][]float32
	bias    []float32
}

// RandomConvBackbone is a two stage convolutional network with seeded, never trained filters:
// a 3x3 stride 2 stage, a 5x5 stride 2 stage, ReLU after each, global average pooling of both
// stages, and a per-channel color histogram.
type RandomConvBackbone struct {
	seed    int64
	bins    int
	filters int
	stage1  convLayer
	stage2  convLayer
}

func NewRandomConvBackbone(seed int64, filters, bins int) (*RandomConvBackbone, error) {
	if filters < 1 {
		return nil, fmt.Errorf("random conv backbone needs at least one filter, got %d", filters)
	}
	if bins < 1 {
		return nil, fmt.Errorf("random conv backbone needs at least one histogram bin, got %d", bins)
	}
	rng := rand.New(rand.NewSource(seed))
	return &RandomConvBackbone{
		seed:    seed,
		bins:    bins,
		filters: filters,
		stage1:  newConvLayer(rng, 3, filters, 3, 2),
		stage2:  newConvLayer(rng, filters, filters, 5, 2),
	}, nil
}

// He-normal weights with zero-mean filters so flat regions give no response.
func newConvLayer(rng *rand.Rand, in, out, size, stride int) convLayer {
	fanIn := in * size * size
	std := math.Sqrt(2 / float64(fanIn))
	layer := convLayer{in: in, out: out, size: size, stride: stride, bias: make([]float32, out)}
	layer.weights = make([][]float32, out)
	for o := range layer.weights {
		w := make([]float32, fanIn)
		mean := 0.0
		for i := range w {
			v := rng.NormFloat64() * std
			w[i] = float32(v)
			mean += v
		}
		mean /= float64(fanIn)
		for i := range w {
			w[i] -= float32(mean)
		}
		layer.weights[o] = w
		layer.bias[o] = float32(rng.NormFloat64() * 0.01)
	}
	return layer
}

func (b *RandomConvBackbone) Name() string {
	return fmt.Sprintf("random_conv-%d-%d-%d", b.seed, b.filters, b.bins)
}

func (b *RandomConvBackbone) Dim() int {
	return 2*b.filters + 3*b.bins
}

func (b *RandomConvBackbone) Forward(t Tensor) ([]float64, error) {
	if t.Channels != 3 {
		return nil, fmt.Errorf("expected an RGB tensor, got %d channels", t.Channels)
	}
	in := NewTensor(t.Channels, t.Height, t.Width)
	for i, v := range t.Data {
		in.Data[i] = v/255 - 0.5
	}
	h1, err := b.stage1.forward(in)
	if err != nil {
		return nil, err
	}
	h2, err := b.stage2.forward(h1)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, b.Dim())
	out = append(out, globalAveragePool(h1)...)
	out = append(out, globalAveragePool(h2)...)
	out = append(out, colorHistogram(t, b.bins)...)
	return out, nil
}

// forward runs a valid (unpadded) convolution followed by ReLU.
func (l convLayer) forward(t Tensor) (Tensor, error) {
	if t.Channels != l.in {
		return Tensor{}, fmt.Errorf("conv layer expects %d channels, got %d", l.in, t.Channels)
	}
	oh := (t.Height-l.size)/l.stride + 1
	ow := (t.Width-l.size)/l.stride + 1
	if t.Height < l.size || t.Width < l.size || oh < 1 || ow < 1 {
		return Tensor{}, fmt.Errorf("input %dx%d is too small for a %dx%d kernel", t.Height, t.Width, l.size, l.size)
	}
	out := NewTensor(l.out, oh, ow)
	for o := 0; o < l.out; o++ {
		w := l.weights[o]
		plane := out.Plane(o)
		for y := 0; y < oh; y++ {
			for x := 0; x < ow; x++ {
				sum := l.bias[o]
				wi := 0
				for c := 0; c < l.in; c++ {
					for ky := 0; ky < l.size; ky++ {
						base := (c*t.Height+y*l.stride+ky)*t.Width + x*l.stride
						row := t.Data[base : base+l.size]
						for kx, v := range row {
							sum += w[wi+kx] * v
						}
						wi += l.size
					}
				}
				if sum > 0 {
					plane[y*ow+x] = sum
				}
			}
		}
	}
	return out, nil
}

func globalAveragePool(t Tensor) []float64 {
	out := make([]float64, t.Channels)
	n := float64(t.Height * t.Width)
	for c := range out {
		sum := 0.0
		for _, v := range t.Plane(c) {
			sum += float64(v)
		}
		out[c] = sum / n
	}
	return out
}

// colorHistogram gives, per channel, the fraction of pixels falling in each of bins equal
// intensity ranges.
func colorHistogram(t Tensor, bins int) []float64 {
	out := make([]float64, t.Channels*bins)
	n := float64(t.Height * t.Width)
	for c := 0; c < t.Channels; c++ {
		for _, v := range t.Plane(c) {
			bin := int(v) * bins / 256
			if bin >= bins {
				bin = bins - 1
			} else if bin < 0 {
				bin = 0
			}
			out[c*bins+bin]++
		}
	}
	for i := range out {
		out[i] /= n
	}
	return out
}
