package service

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"

	"github.com/krau/cropdoctor/metrics"
)

// Selector picks the winning attempt. It returns false when no attempt
// succeeded.
type Selector interface {
	Select(attempts []Attempt) (int, bool)
}

// MaxConfidence keeps the successful attempt with the strictly highest raw
// confidence, so the earliest registered crop wins a tie. Confidences of
// independently trained models are not calibrated against each other; this is
// a heuristic for "which crop is this".
type MaxConfidence struct{}

func (MaxConfidence) Select(attempts []Attempt) (int, bool) {
	best := -1
	for i, a := range attempts {
		if !a.OK() {
			continue
		}
		if best < 0 || a.Prediction.Confidence > attempts[best].Prediction.Confidence {
			best = i
		}
	}
	return best, best >= 0
}

const riceHealthyBelow = 60.0

// calibrate applies the rice model's low-confidence override. The rice model
// has no Healthy class and over-predicts disease, so weak answers mean healthy.
func calibrate(crop string, p Prediction) Prediction {
	if strings.EqualFold(crop, "rice") && p.Confidence < riceHealthyBelow {
		p.Label = Healthy
	}
	return p
}

type Identifier struct {
	registry  Registry
	predictor *Predictor
	selector  Selector
	severity  SeverityEstimator
	stages    StageClassifier
}

type Option func(*Identifier)

func WithSelector(s Selector) Option {
	return func(id *Identifier) { id.selector = s }
}

func WithSeverityEstimator(e SeverityEstimator) Option {
	return func(id *Identifier) { id.severity = e }
}

func WithStageClassifier(c StageClassifier) Option {
	return func(id *Identifier) { id.stages = c }
}

func NewIdentifier(registry Registry, predictor *Predictor, opts ...Option) *Identifier {
	id := &Identifier{
		registry:  registry,
		predictor: predictor,
		selector:  MaxConfidence{},
		severity:  LesionEstimator{},
		stages:    DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(id)
	}
	return id
}

func (id *Identifier) Registry() Registry {
	return id.registry
}

// Identify runs every registered model in order against an image of unknown
// crop. A failing model is logged and skipped.
func (id *Identifier) Identify(ctx context.Context, imagePath string) (*Diagnosis, error) {
	// Decoded once and shared by every candidate.
	var (
		img    image.Image
		imgErr error
		loaded bool
	)
	attempts := make([]Attempt, 0, len(id.registry))
	for _, d := range id.registry {
		a := Attempt{Crop: d.Crop}
		a.Prediction, a.Err = func() (Prediction, error) {
			if err := ctx.Err(); err != nil {
				return Prediction{}, err
			}
			if err := validate(imagePath, d); err != nil {
				return Prediction{}, err
			}
			net, err := id.predictor.network(d)
			if err != nil {
				return Prediction{}, err
			}
			if !loaded {
				img, imgErr = LoadImage(imagePath)
				loaded = true
			}
			if imgErr != nil {
				return Prediction{}, imgErr
			}
			return id.predictor.predictImage(img, d, net)
		}()
		if a.Err != nil {
			slog.Warn("Skipping crop model",
				slog.String("crop", d.Crop), slog.String("error", a.Err.Error()))
			metrics.CandidateFailures.WithLabelValues(d.Crop).Inc()
		}
		attempts = append(attempts, a)
	}

	best, ok := id.selector.Select(attempts)
	if !ok {
		return nil, &IdentificationError{Attempts: attempts, Cause: imageCause(attempts)}
	}
	winner := attempts[best]
	metrics.Identified.WithLabelValues(winner.Crop).Inc()

	diag, err := id.finish(winner.Crop, winner.Prediction, img)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		if !a.OK() {
			diag.Skipped = append(diag.Skipped, Skipped{Crop: a.Crop, Reason: a.Err.Error()})
		}
	}
	return diag, nil
}

// Diagnose predicts with the model of a crop the caller already knows. Errors
// are returned as is; there is no fallback to other crops.
func (id *Identifier) Diagnose(ctx context.Context, imagePath, crop string) (*Diagnosis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := id.registry.Lookup(crop)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCrop, crop)
	}
	pred, img, err := id.predictor.predictPath(imagePath, d)
	if err != nil {
		return nil, err
	}
	return id.finish(d.Crop, calibrate(d.Crop, pred), img)
}

func (id *Identifier) finish(crop string, pred Prediction, img image.Image) (*Diagnosis, error) {
	severity, err := id.severity.EstimateSeverity(img)
	if err != nil {
		return nil, fmt.Errorf("severity estimation failed: %w", err)
	}
	stage := id.stages.Classify(severity)
	return &Diagnosis{
		Crop:            crop,
		Disease:         pred.Label,
		Confidence:      round2(pred.Confidence),
		SeverityPercent: severity,
		Stage:           stage,
		Advice:          Advise(pred.Label, stage),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
