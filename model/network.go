// Package model holds the backend-neutral view of a loaded classifier network.
package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Layout int

const (
	LayoutNHWC Layout = iota
	LayoutNCHW
)

func (l Layout) String() string {
	if l == LayoutNCHW {
		return "NCHW"
	}
	return "NHWC"
}

// Shape is the spatial input signature of a network. The batch axis is always 1.
type Shape struct {
	Height   int
	Width    int
	Channels int
	Layout   Layout
}

// Dims returns the full tensor dimensions including the leading batch axis.
func (s Shape) Dims() []int64 {
	if s.Layout == LayoutNCHW {
		return []int64{1, int64(s.Channels), int64(s.Height), int64(s.Width)}
	}
	return []int64{1, int64(s.Height), int64(s.Width), int64(s.Channels)}
}

func (s Shape) Size() int {
	return s.Height * s.Width * s.Channels
}

// ShapeFromDims reads a declared 4D image input. Channels of 1 or 3 in the last
// axis mean NHWC, in the second axis NCHW.
func ShapeFromDims(dims []int64) (Shape, error) {
	if len(dims) != 4 {
		return Shape{}, fmt.Errorf("expected 4D input, got %dD", len(dims))
	}
	var s Shape
	switch {
	case isChannels(dims[3]):
		s = Shape{Height: int(dims[1]), Width: int(dims[2]), Channels: int(dims[3]), Layout: LayoutNHWC}
	case isChannels(dims[1]):
		s = Shape{Height: int(dims[2]), Width: int(dims[3]), Channels: int(dims[1]), Layout: LayoutNCHW}
	default:
		return Shape{}, fmt.Errorf("cannot find channel axis in input %v", dims)
	}
	if s.Height <= 0 || s.Width <= 0 {
		return Shape{}, fmt.Errorf("dynamic spatial dimensions in input %v", dims)
	}
	return s, nil
}

func isChannels(d int64) bool {
	return d == 1 || d == 3
}

// Layer is one node of a network's layer tree. Composite layers carry their
// inner layers.
type Layer struct {
	Class  string  `json:"class_name"`
	Name   string  `json:"name,omitempty"`
	Layers []Layer `json:"layers,omitempty"`
}

// HasRescaling reports whether a Rescaling layer appears anywhere in the tree.
func HasRescaling(layers []Layer) bool {
	for _, l := range layers {
		if strings.EqualFold(l.Class, "Rescaling") {
			return true
		}
		if HasRescaling(l.Layers) {
			return true
		}
	}
	return false
}

// Network is a loaded classifier. Run takes one normalized image laid out as
// Input describes and returns the raw output vector.
type Network interface {
	Input() Shape
	Layers() []Layer
	Run(input []float32) ([]float32, error)
	Close() error
}

type LoaderFunc func(path string) (Network, error)

// ExtLoader picks a loader by model file extension.
type ExtLoader map[string]LoaderFunc

func (l ExtLoader) Load(path string) (Network, error) {
	ext := strings.ToLower(filepath.Ext(path))
	load, ok := l[ext]
	if !ok {
		return nil, fmt.Errorf("no loader for model format %q", ext)
	}
	return load(path)
}
