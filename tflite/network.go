// Package tflite runs TensorFlow Lite exports of the crop classifiers.
package tflite

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/krau/cropdoctor/model"
	"github.com/mattn/go-tflite"
)

type Network struct {
	mu     sync.Mutex
	model  *tflite.Model
	opts   *tflite.InterpreterOptions
	interp *tflite.Interpreter
	shape  model.Shape
}

func NewLoader(threads int) model.LoaderFunc {
	return func(path string) (model.Network, error) {
		return Load(path, threads)
	}
}

func Load(path string, threads int) (*Network, error) {
	m := tflite.NewModelFromFile(path)
	if m == nil {
		return nil, fmt.Errorf("cannot load tflite model %s", path)
	}
	opts := tflite.NewInterpreterOptions()
	if threads > 0 {
		opts.SetNumThread(threads)
	}
	interp := tflite.NewInterpreter(m, opts)
	if interp == nil {
		opts.Delete()
		m.Delete()
		return nil, fmt.Errorf("cannot create interpreter for %s", path)
	}
	n := &Network{model: m, opts: opts, interp: interp}

	if status := interp.AllocateTensors(); status != tflite.OK {
		n.Close()
		return nil, fmt.Errorf("allocate tensors failed for %s", path)
	}
	in := interp.GetInputTensor(0)
	if in.Type() != tflite.Float32 {
		n.Close()
		return nil, fmt.Errorf("input tensor of %s is %v, want float32", path, in.Type())
	}
	dims := make([]int64, in.NumDims())
	for i := range dims {
		dims[i] = int64(in.Dim(i))
	}
	shape, err := model.ShapeFromDims(dims)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("unsupported input of %s: %w", path, err)
	}
	n.shape = shape
	slog.Info("Loaded TFLite model",
		slog.String("path", path),
		slog.String("layout", shape.Layout.String()),
		slog.Int("height", shape.Height),
		slog.Int("width", shape.Width),
		slog.Int("channels", shape.Channels))
	return n, nil
}

func (n *Network) Input() model.Shape {
	return n.shape
}

// Layers is always empty: the flatbuffer keeps no Keras layer tree, so
// rescaling has to be declared in the crop config.
func (n *Network) Layers() []model.Layer {
	return nil
}

func (n *Network) Run(input []float32) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(input) != n.shape.Size() {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), n.shape.Size())
	}
	if status := n.interp.GetInputTensor(0).CopyFromBuffer(input); status != tflite.OK {
		return nil, fmt.Errorf("copy input failed")
	}
	if status := n.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("invoke failed")
	}
	data := n.interp.GetOutputTensor(0).Float32s()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func (n *Network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.interp != nil {
		n.interp.Delete()
		n.interp = nil
	}
	if n.opts != nil {
		n.opts.Delete()
		n.opts = nil
	}
	if n.model != nil {
		n.model.Delete()
		n.model = nil
	}
	return nil
}
