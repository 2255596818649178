package service

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

type SeverityEstimator interface {
	EstimateSeverity(img image.Image) (float64, error)
}

// LesionEstimator measures the share of leaf tissue that looks diseased.
// Pixels are sorted in HSV space into background, green tissue and lesions
// (brown, yellow or reddish tissue); severity is lesions over all leaf pixels.
type LesionEstimator struct {
	// MaxSide bounds the working resolution. Zero means 256.
	MaxSide int
}

func (e LesionEstimator) EstimateSeverity(img image.Image) (float64, error) {
	if img == nil {
		return 0, errors.New("nil image")
	}
	side := e.MaxSide
	if side <= 0 {
		side = 256
	}
	small := imaging.Fit(img, side, side, imaging.Box)

	var healthy, lesion int
	b := small.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+4]
			switch classifyPixel(p[0], p[1], p[2]) {
			case pixelHealthy:
				healthy++
			case pixelLesion:
				lesion++
			}
		}
	}
	leaf := healthy + lesion
	if leaf == 0 {
		return 0, nil
	}
	return float64(lesion) / float64(leaf) * 100, nil
}

type pixelClass int

const (
	pixelBackground pixelClass = iota
	pixelHealthy
	pixelLesion
)

func classifyPixel(r, g, b uint8) pixelClass {
	h, s, v := hsv(r, g, b)
	switch {
	case s < 0.15 || v < 0.08:
		return pixelBackground
	case h >= 65 && h <= 170:
		if v < 0.15 {
			return pixelLesion
		}
		return pixelHealthy
	case h < 65 || h >= 330:
		return pixelLesion
	default:
		return pixelBackground
	}
}

// hsv returns hue in degrees and saturation, value in 0..1.
func hsv(r, g, b uint8) (h, s, v float64) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	maxc := math.Max(rf, math.Max(gf, bf))
	minc := math.Min(rf, math.Min(gf, bf))
	v = maxc
	d := maxc - minc
	if maxc == 0 || d == 0 {
		return 0, 0, v
	}
	s = d / maxc
	switch maxc {
	case rf:
		h = math.Mod((gf-bf)/d, 6)
	case gf:
		h = (bf-rf)/d + 2
	default:
		h = (rf-gf)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}
