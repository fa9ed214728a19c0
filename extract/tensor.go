package extract

// Tensor is a decoded image in channel-major order: Data[(c*Height+y)*Width+x]. Values are
// raw RGB intensities in [0, 255]; each backbone applies its own preprocessing.
type Tensor struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

func NewTensor(channels, height, width int) Tensor {
	return Tensor{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, channels*height*width),
	}
}

func (t Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.Height+y)*t.Width+x]
}

func (t Tensor) Set(c, y, x int, v float32) {
	t.Data[(c*t.Height+y)*t.Width+x] = v
}

// Plane is the Height*Width slice of channel c.
func (t Tensor) Plane(c int) []float32 {
	n := t.Height * t.Width
	return t.Data[c*n : (c+1)*n]
}
