package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/krau/cropdoctor/service"
)

func TestStartRuntimeFailureIsNotFatal(t *testing.T) {
	if startRuntime(func() error { return errors.New("libonnxruntime.so: not found") }) {
		t.Error("failed init reported as started")
	}
	if !startRuntime(func() error { return nil }) {
		t.Error("successful init reported as failed")
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteDiagnosis(t *testing.T) {
	diag := &service.Diagnosis{Crop: "tomato", Disease: "Early_blight", Confidence: 91.5}

	var buf bytes.Buffer
	if err := writeDiagnosis(&buf, diag); err != nil {
		t.Fatalf("writeDiagnosis: %v", err)
	}
	if !strings.Contains(buf.String(), "Early_blight") || !strings.Contains(buf.String(), "\n  ") {
		t.Errorf("output = %q", buf.String())
	}

	if err := writeDiagnosis(brokenWriter{}, diag); err == nil {
		t.Error("expected error from failing writer")
	}
}
