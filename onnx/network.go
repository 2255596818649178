package onnx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/krau/cropdoctor/model"
	ort "github.com/yalue/onnxruntime_go"
)

// LayersMetadataKey is the custom metadata entry that the export script fills
// with the Keras layer tree of the source model.
const LayersMetadataKey = "keras_layers"

// Network is an ONNX Runtime session with preallocated input and output
// tensors. Run is serialized because the tensors are shared.
type Network struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   model.Shape
	layers  []model.Layer
}

func NewLoader(threads int) model.LoaderFunc {
	return func(path string) (model.Network, error) {
		return Load(path, threads)
	}
}

func Load(path string, threads int) (*Network, error) {
	if err := Init(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model declares %d inputs and %d outputs", len(inputs), len(outputs))
	}
	// Multi-input graphs are driven through their first input.
	in, out := inputs[0], outputs[0]

	shape, err := model.ShapeFromDims(in.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("unsupported input %q: %w", in.Name, err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(shape.Dims()...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(fixedDims(out.Dimensions)...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{in.Name},
		[]string{out.Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}

	layers := readLayers(path)
	slog.Info("Loaded ONNX model",
		slog.String("path", path),
		slog.String("input", in.Name),
		slog.String("layout", shape.Layout.String()),
		slog.Int("height", shape.Height),
		slog.Int("width", shape.Width),
		slog.Int("channels", shape.Channels),
		slog.Bool("rescaling", model.HasRescaling(layers)))
	return &Network{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		shape:   shape,
		layers:  layers,
	}, nil
}

// fixedDims pins dynamic axes (batch) to 1.
func fixedDims(dims ort.Shape) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

func readLayers(path string) []model.Layer {
	meta, err := ort.GetModelMetadata(path)
	if err != nil {
		slog.Warn("Could not read model metadata", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	defer meta.Destroy()

	raw, ok, err := meta.LookupCustomMetadataMap(LayersMetadataKey)
	if err != nil || !ok {
		return nil
	}
	var layers []model.Layer
	if err := json.Unmarshal([]byte(raw), &layers); err != nil {
		slog.Warn("Invalid layer metadata", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	return layers
}

func (n *Network) Input() model.Shape {
	return n.shape
}

func (n *Network) Layers() []model.Layer {
	return n.layers
}

func (n *Network) Run(input []float32) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	dst := n.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)
	if err := n.session.Run(); err != nil {
		return nil, err
	}

	data := n.output.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func (n *Network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	if n.session != nil {
		err = n.session.Destroy()
		n.session = nil
	}
	if n.input != nil {
		n.input.Destroy()
		n.input = nil
	}
	if n.output != nil {
		n.output.Destroy()
		n.output = nil
	}
	return err
}
