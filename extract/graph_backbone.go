//go:build tensorflow

package extract

import (
	"fmt"
	"os"
	"sync"

	tf "github.com/kiteco/tensorflow/tensorflow/go"

	"imwithroc.com/ensemble/types"
)

// ImageNet channel means in BGR order, as subtracted by the "caffe" preprocessing ResNet50
// was trained with.
var caffeMeanBGR = [3]float32{103.939, 116.779, 123.68}

// GraphBackbone runs a frozen TensorFlow graph (variables folded into constants), for
// instance ResNet50 without its top and with average pooling.
type GraphBackbone struct {
	name   string
	dim    int
	graph  *tf.Graph
	sess   *tf.Session
	input  tf.Output
	output tf.Output
	m      sync.Mutex
}

func NewGraphBackbone(cfg types.BackboneConfig) (Backbone, error) {
	data, err := os.ReadFile(cfg.GraphPath)
	if err != nil {
		return nil, fmt.Errorf("reading graph definition: %w", err)
	}
	graph := tf.NewGraph()
	if err := graph.Import(data, ""); err != nil {
		return nil, fmt.Errorf("importing graph: %w", err)
	}
	sess, err := tf.NewSession(graph, nil)
	if err != nil {
		graph.Delete()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	b := &GraphBackbone{name: "graph:" + cfg.GraphPath, graph: graph, sess: sess}
	if b.input, err = b.op(cfg.InputNode); err != nil {
		b.Close()
		return nil, err
	}
	if b.output, err = b.op(cfg.OutputNode); err != nil {
		b.Close()
		return nil, err
	}
	shape := b.output.Shape()
	if n := shape.NumDimensions(); n > 0 {
		if size := shape.Size(n - 1); size > 0 {
			b.dim = int(size)
		}
	}
	return b, nil
}

func (b *GraphBackbone) op(name string) (tf.Output, error) {
	op := b.graph.Operation(name)
	if op == nil {
		return tf.Output{}, fmt.Errorf("could not find op with name: %s", name)
	}
	return op.Output(0), nil
}

func (b *GraphBackbone) Name() string {
	return b.name
}

// Dim is 0 when the graph leaves the feature width unknown.
func (b *GraphBackbone) Dim() int {
	return b.dim
}

func (b *GraphBackbone) Forward(t Tensor) ([]float64, error) {
	if t.Channels != 3 {
		return nil, fmt.Errorf("expected an RGB tensor, got %d channels", t.Channels)
	}
	batch := make([][][][]float32, 1)
	batch[0] = make([][][]float32, t.Height)
	for y := 0; y < t.Height; y++ {
		row := make([][]float32, t.Width)
		for x := 0; x < t.Width; x++ {
			row[x] = []float32{
				t.At(2, y, x) - caffeMeanBGR[0],
				t.At(1, y, x) - caffeMeanBGR[1],
				t.At(0, y, x) - caffeMeanBGR[2],
			}
		}
		batch[0][y] = row
	}
	in, err := tf.NewTensor(batch)
	if err != nil {
		return nil, fmt.Errorf("error creating tensor: %w", err)
	}
	defer in.Delete()

	b.m.Lock()
	res, err := b.sess.Run(map[tf.Output]*tf.Tensor{b.input: in}, []tf.Output{b.output}, nil)
	b.m.Unlock()
	if err != nil {
		return nil, fmt.Errorf("error running model: %w", err)
	}
	defer func() {
		for _, r := range res {
			r.Delete()
		}
	}()

	out, ok := res[0].Value().([][]float32)
	if !ok || len(out) != 1 {
		return nil, fmt.Errorf("unexpected output of type %T", res[0].Value())
	}
	vec := make([]float64, len(out[0]))
	for i, v := range out[0] {
		vec[i] = float64(v)
	}
	return vec, nil
}

func (b *GraphBackbone) Close() {
	if b.sess != nil {
		b.sess.Close()
	}
	if b.graph != nil {
		b.graph.Delete()
	}
}
