package service

import (
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/krau/cropdoctor/metrics"
	"github.com/krau/cropdoctor/model"
)

// Models hands out loaded networks by model path. *model.Cache satisfies it.
type Models interface {
	Get(path string) (model.Network, error)
}

type Predictor struct {
	models Models
}

func NewPredictor(models Models) *Predictor {
	return &Predictor{models: models}
}

// Predict classifies the image at imagePath with the descriptor's model.
func (p *Predictor) Predict(imagePath string, d Descriptor) (Prediction, error) {
	pred, _, err := p.predictPath(imagePath, d)
	return pred, err
}

func (p *Predictor) predictPath(imagePath string, d Descriptor) (Prediction, image.Image, error) {
	if err := validate(imagePath, d); err != nil {
		return Prediction{}, nil, err
	}
	net, err := p.network(d)
	if err != nil {
		return Prediction{}, nil, err
	}
	img, err := LoadImage(imagePath)
	if err != nil {
		return Prediction{}, nil, err
	}
	pred, err := p.predictImage(img, d, net)
	if err != nil {
		return Prediction{}, nil, err
	}
	return pred, img, nil
}

// validate fails fast before any model load or decode.
func validate(imagePath string, d Descriptor) error {
	if len(d.Labels) == 0 {
		return fmt.Errorf("%w: crop %s", ErrNoClassNames, d.Crop)
	}
	if !fileExists(d.ModelPath) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, d.ModelPath)
	}
	if !fileExists(imagePath) {
		return fmt.Errorf("%w: %s", ErrImageNotFound, imagePath)
	}
	return nil
}

func (p *Predictor) network(d Descriptor) (model.Network, error) {
	net, err := p.models.Get(d.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrInference, d.ModelPath, err)
	}
	return net, nil
}

func (p *Predictor) predictImage(img image.Image, d Descriptor, net model.Network) (Prediction, error) {
	raw := builtInRescaling(d, net)
	tensor := Normalize(img, net.Input(), d.ChannelOrder, raw)

	start := time.Now()
	probs, err := net.Run(tensor.Data)
	metrics.InferenceDuration.WithLabelValues(d.Crop).Observe(time.Since(start).Seconds())
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %s: %w", ErrInference, d.Crop, err)
	}
	if len(probs) == 0 {
		return Prediction{}, fmt.Errorf("%w: %s: empty output", ErrInference, d.Crop)
	}
	if d.Logits {
		probs = Softmax(probs)
	}

	idx, best := argmax(probs)
	label := Unknown
	if idx < len(d.Labels) {
		label = d.Labels[idx]
	} else {
		slog.Warn("Predicted index out of range for class names",
			slog.String("crop", d.Crop), slog.Int("index", idx), slog.Int("classes", len(d.Labels)))
	}
	pred := Prediction{
		Label:      label,
		Index:      idx,
		Confidence: float64(best) * 100,
	}
	slog.Debug("Prediction",
		slog.String("crop", d.Crop), slog.String("label", pred.Label), slog.Float64("confidence", pred.Confidence))
	return pred, nil
}

func builtInRescaling(d Descriptor, net model.Network) bool {
	switch d.Scaling {
	case ScalingRaw:
		return true
	case ScalingUnit:
		return false
	}
	return model.HasRescaling(net.Layers())
}
