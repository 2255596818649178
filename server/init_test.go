package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/krau/cropdoctor/config"
	"github.com/krau/cropdoctor/service"
)

func TestBuildRegistry(t *testing.T) {
	dir := t.TempDir()
	labels := filepath.Join(dir, "wheat.txt")
	if err := os.WriteFile(labels, []byte("Healthy\nLeaf_rust\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := BuildRegistry([]config.Crop{
		{Name: "wheat", Model: "models/wheat.tflite", LabelsFile: labels, Scaling: "unit", ChannelOrder: "bgr"},
		{Name: "rice", Model: "models/rice.onnx", Labels: []string{"Blast"}, Logits: true},
	})
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	wheat, ok := reg.Lookup("Wheat")
	if !ok {
		t.Fatal("wheat not registered")
	}
	if len(wheat.Labels) != 2 || wheat.Labels[1] != "Leaf_rust" {
		t.Errorf("labels from file = %v", wheat.Labels)
	}
	if wheat.Scaling != service.ScalingUnit || wheat.ChannelOrder != service.BGR {
		t.Errorf("descriptor = %+v", wheat)
	}
	if rice, _ := reg.Lookup("rice"); !rice.Logits {
		t.Error("logits flag lost")
	}

	if _, err := BuildRegistry([]config.Crop{{Name: "x", LabelsFile: filepath.Join(dir, "missing.txt")}}); err == nil {
		t.Error("expected error for missing labels file")
	}
	if _, err := BuildRegistry([]config.Crop{{Name: "x", Scaling: "half"}}); err == nil {
		t.Error("expected error for unknown scaling")
	}
}
