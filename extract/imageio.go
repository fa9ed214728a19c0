package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"imwithroc.com/ensemble/ml"
	"imwithroc.com/ensemble/types"
)

// Decoder turns image files into fixed-size RGB tensors.
type Decoder struct {
	Fs     afero.Fs
	Width  int
	Height int
	Scaler draw.Scaler
}

func NewDecoder(fs afero.Fs, cfg types.ImageConfig) (*Decoder, error) {
	scaler, err := scalerFor(cfg.Interpolation)
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", cfg.Width, cfg.Height)
	}
	return &Decoder{Fs: fs, Width: cfg.Width, Height: cfg.Height, Scaler: scaler}, nil
}

func scalerFor(name string) (draw.Scaler, error) {
	switch name {
	case "", types.InterpolationCatmullRom:
		return draw.CatmullRom, nil
	case types.InterpolationBilinear:
		return draw.BiLinear, nil
	case types.InterpolationNearest:
		return draw.NearestNeighbor, nil
	}
	return nil, fmt.Errorf("unknown interpolation %q", name)
}

// ReadFile returns the raw bytes of path; failures are input errors.
func (d *Decoder) ReadFile(path string) ([]byte, error) {
	buf, err := afero.ReadFile(d.Fs, path)
	if err != nil {
		return nil, &ml.InputError{Path: path, Err: err}
	}
	return buf, nil
}

func (d *Decoder) Load(path string) (Tensor, error) {
	buf, err := d.ReadFile(path)
	if err != nil {
		return Tensor{}, err
	}
	return d.DecodeBytes(path, buf)
}

// DecodeBytes decodes an encoded image; path only labels the error.
func (d *Decoder) DecodeBytes(path string, buf []byte) (Tensor, error) {
	t, err := d.Decode(bytes.NewReader(buf))
	if err != nil {
		return Tensor{}, &ml.InputError{Path: path, Err: err}
	}
	return t, nil
}

func (d *Decoder) Decode(r io.Reader) (Tensor, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return Tensor{}, fmt.Errorf("decoding image: %w", err)
	}
	if src.Bounds().Empty() {
		return Tensor{}, fmt.Errorf("image has no pixels")
	}
	dst := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	d.Scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return rgbaToTensor(dst), nil
}

func rgbaToTensor(img *image.RGBA) Tensor {
	b := img.Bounds()
	t := NewTensor(3, b.Dy(), b.Dx())
	for y := 0; y < t.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < t.Width; x++ {
			p := row[4*x : 4*x+3]
			t.Set(0, y, x, float32(p[0]))
			t.Set(1, y, x, float32(p[1]))
			t.Set(2, y, x, float32(p[2]))
		}
	}
	return t
}
