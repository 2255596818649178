package service

import (
	"fmt"
	"strings"
)

const (
	Unknown = "Unknown"
	Healthy = "Healthy"
)

// Scaling says how pixel values reach the network.
type Scaling string

const (
	// ScalingAuto looks for a Rescaling layer in the network.
	ScalingAuto Scaling = "auto"
	// ScalingRaw passes 0..255 values; the network rescales itself.
	ScalingRaw Scaling = "raw"
	// ScalingUnit divides by 255.
	ScalingUnit Scaling = "unit"
)

type ChannelOrder string

const (
	RGB ChannelOrder = "rgb"
	BGR ChannelOrder = "bgr"
)

// Descriptor parameterizes one per-crop classifier.
type Descriptor struct {
	Crop         string
	ModelPath    string
	Labels       []string
	Scaling      Scaling
	ChannelOrder ChannelOrder
	// Logits marks networks that end without a softmax.
	Logits bool
}

func (d Descriptor) Validate() error {
	if d.Crop == "" {
		return fmt.Errorf("descriptor without crop name")
	}
	switch d.Scaling {
	case "", ScalingAuto, ScalingRaw, ScalingUnit:
	default:
		return fmt.Errorf("crop %s: unknown scaling %q", d.Crop, d.Scaling)
	}
	switch d.ChannelOrder {
	case "", RGB, BGR:
	default:
		return fmt.Errorf("crop %s: unknown channel order %q", d.Crop, d.ChannelOrder)
	}
	return nil
}

// Registry is the ordered set of crop classifiers. Order decides ties.
type Registry []Descriptor

func NewRegistry(ds ...Descriptor) (Registry, error) {
	seen := make(map[string]bool, len(ds))
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(d.Crop)
		if seen[key] {
			return nil, fmt.Errorf("crop %s registered twice", d.Crop)
		}
		seen[key] = true
	}
	return Registry(ds), nil
}

func (r Registry) Lookup(crop string) (Descriptor, bool) {
	for _, d := range r {
		if strings.EqualFold(d.Crop, crop) {
			return d, true
		}
	}
	return Descriptor{}, false
}

func (r Registry) Crops() []string {
	out := make([]string, 0, len(r))
	for _, d := range r {
		out = append(out, d.Crop)
	}
	return out
}

// Prediction is one model's answer for one image.
type Prediction struct {
	Label      string
	Index      int
	Confidence float64 // percent
}

type Skipped struct {
	Crop   string `json:"crop"`
	Reason string `json:"reason"`
}

type Diagnosis struct {
	Crop            string    `json:"crop"`
	Disease         string    `json:"disease"`
	Confidence      float64   `json:"confidence"`
	SeverityPercent float64   `json:"severity_percent"`
	Stage           string    `json:"stage"`
	Advice          *Advice   `json:"advice,omitempty"`
	Skipped         []Skipped `json:"skipped,omitempty"`
}
