package service

const (
	StageEarly  = "Early"
	StageMedium = "Medium"
	StageSevere = "Severe"
)

type StageClassifier interface {
	Classify(severity float64) string
}

// Thresholds buckets a severity percentage. Values below EarlyBelow are
// Early, below MediumBelow Medium, anything else Severe.
type Thresholds struct {
	EarlyBelow  float64
	MediumBelow float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{EarlyBelow: 30, MediumBelow: 60}
}

func (t Thresholds) Classify(severity float64) string {
	switch {
	case severity < t.EarlyBelow:
		return StageEarly
	case severity < t.MediumBelow:
		return StageMedium
	default:
		return StageSevere
	}
}
