package model

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestShapeFromDims(t *testing.T) {
	cases := []struct {
		dims    []int64
		want    Shape
		wantErr bool
	}{
		{dims: []int64{-1, 224, 224, 3}, want: Shape{224, 224, 3, LayoutNHWC}},
		{dims: []int64{1, 128, 96, 1}, want: Shape{128, 96, 1, LayoutNHWC}},
		{dims: []int64{1, 3, 299, 299}, want: Shape{299, 299, 3, LayoutNCHW}},
		{dims: []int64{1, 224, 224}, wantErr: true},
		{dims: []int64{1, 224, 224, 5}, wantErr: true},
		{dims: []int64{1, -1, -1, 3}, wantErr: true},
	}
	for _, c := range cases {
		got, err := ShapeFromDims(c.dims)
		if c.wantErr {
			if err == nil {
				t.Errorf("ShapeFromDims(%v): expected error", c.dims)
			}
			continue
		}
		if err != nil {
			t.Errorf("ShapeFromDims(%v): %v", c.dims, err)
			continue
		}
		if got != c.want {
			t.Errorf("ShapeFromDims(%v) = %+v, want %+v", c.dims, got, c.want)
		}
	}
}

func TestShapeDims(t *testing.T) {
	s := Shape{Height: 4, Width: 5, Channels: 3, Layout: LayoutNCHW}
	dims := s.Dims()
	want := []int64{1, 3, 4, 5}
	for i := range want {
		if dims[i] != want[i] {
			t.Fatalf("Dims() = %v, want %v", dims, want)
		}
	}
	if s.Size() != 60 {
		t.Errorf("Size() = %d, want 60", s.Size())
	}
	if s.Layout.String() != "NCHW" || LayoutNHWC.String() != "NHWC" {
		t.Errorf("layout names = %s, %s", s.Layout, LayoutNHWC)
	}
}

func TestHasRescaling(t *testing.T) {
	flat := []Layer{{Class: "InputLayer"}, {Class: "Rescaling"}, {Class: "Conv2D"}}
	if !HasRescaling(flat) {
		t.Error("expected rescaling in flat tree")
	}

	nested := []Layer{
		{Class: "InputLayer"},
		{Class: "Functional", Name: "vgg16", Layers: []Layer{
			{Class: "Sequential", Layers: []Layer{{Class: "rescaling"}}},
		}},
		{Class: "Dense"},
	}
	if !HasRescaling(nested) {
		t.Error("expected rescaling buried in nested block")
	}

	none := []Layer{{Class: "Conv2D"}, {Class: "Functional", Layers: []Layer{{Class: "Dense"}}}}
	if HasRescaling(none) {
		t.Error("unexpected rescaling")
	}
	if HasRescaling(nil) {
		t.Error("unexpected rescaling in empty tree")
	}
}

type stubNetwork struct{ closed atomic.Bool }

func (s *stubNetwork) Input() Shape                        { return Shape{Height: 1, Width: 1, Channels: 3} }
func (s *stubNetwork) Layers() []Layer                     { return nil }
func (s *stubNetwork) Run(in []float32) ([]float32, error) { return []float32{1}, nil }
func (s *stubNetwork) Close() error                        { s.closed.Store(true); return nil }

func TestCacheLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	net := &stubNetwork{}
	c := NewCache(func(path string) (Network, error) {
		loads.Add(1)
		return net, nil
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Get("models/rice.onnx")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			if got != net {
				t.Error("Get returned a different network")
			}
		}()
	}
	wg.Wait()

	if loads.Load() != 1 {
		t.Errorf("loader called %d times, want 1", loads.Load())
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !net.closed.Load() {
		t.Error("network not closed")
	}
	if c.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", c.Len())
	}
}

func TestCacheForgetsFailedLoad(t *testing.T) {
	fail := true
	c := NewCache(func(path string) (Network, error) {
		if fail {
			return nil, errors.New("broken")
		}
		return &stubNetwork{}, nil
	})
	if _, err := c.Get("m.onnx"); err == nil {
		t.Fatal("expected load error")
	}
	if c.Len() != 0 {
		t.Errorf("failed entry kept in cache")
	}
	fail = false
	if _, err := c.Get("m.onnx"); err != nil {
		t.Fatalf("second Get: %v", err)
	}
}

func TestExtLoader(t *testing.T) {
	l := ExtLoader{".onnx": func(path string) (Network, error) { return &stubNetwork{}, nil }}
	if _, err := l.Load("models/Grape.ONNX"); err != nil {
		t.Errorf("Load: %v", err)
	}
	if _, err := l.Load("models/grape.h5"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
