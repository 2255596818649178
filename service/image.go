package service

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	_ "github.com/gen2brain/avif"
	"github.com/krau/cropdoctor/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Tensor is a single normalized image with its batch axis.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func LoadImage(path string) (image.Image, error) {
	if !fileExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageDecode, path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageDecode, path, err)
	}
	return img, nil
}

// Normalize resizes img to the network input with area averaging and lays the
// pixels out as the shape says. Values stay in 0..255 when raw is set and are
// divided by 255 otherwise.
func Normalize(img image.Image, shape model.Shape, order ChannelOrder, raw bool) Tensor {
	src := img
	if shape.Channels == 1 {
		src = imaging.Grayscale(img)
	}
	resized := imaging.Resize(src, shape.Width, shape.Height, imaging.Box)

	h, w, c := shape.Height, shape.Width, shape.Channels
	plane := h * w
	out := make([]float32, plane*c)
	var px [3]float32
	for y := range h {
		row := resized.Pix[y*resized.Stride:]
		for x := range w {
			p := row[x*4 : x*4+4]
			if c == 1 {
				px[0] = float32(p[0])
			} else if order == BGR {
				px[0], px[1], px[2] = float32(p[2]), float32(p[1]), float32(p[0])
			} else {
				px[0], px[1], px[2] = float32(p[0]), float32(p[1]), float32(p[2])
			}
			for ch := range c {
				v := px[ch]
				if !raw {
					v /= 255
				}
				if shape.Layout == model.LayoutNCHW {
					out[ch*plane+y*w+x] = v
				} else {
					out[(y*w+x)*c+ch] = v
				}
			}
		}
	}
	return Tensor{Shape: shape.Dims(), Data: out}
}

func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxv := logits[0]
	for _, v := range logits[1:] {
		if v > maxv {
			maxv = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxv))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// argmax returns the first index holding the largest value.
func argmax(v []float32) (int, float32) {
	idx, best := 0, v[0]
	for i, x := range v[1:] {
		if x > best {
			idx, best = i+1, x
		}
	}
	return idx, best
}

// ReadLines returns the non-blank lines of a label file.
func ReadLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(b), "\n")
	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}
