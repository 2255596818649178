package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krau/cropdoctor/config"
	"github.com/krau/cropdoctor/onnx"
	"github.com/krau/cropdoctor/server"
)

func main() {
	imagePath := flag.String("image", "", "diagnose one image, print the result and exit")
	crop := flag.String("crop", "", "crop of -image; identified automatically when empty")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	slog.Info("Starting CropDoctor")

	startRuntime(onnx.Init)
	defer onnx.Destroy()

	srv, err := server.Init(ctx)
	if err != nil {
		slog.Error("Failed to initialize server", slog.String("error", err.Error()))
		return
	}
	defer srv.Close()

	if *imagePath != "" {
		diag, err := srv.Diagnose(ctx, *imagePath, *crop)
		if err != nil {
			slog.Error("Diagnosis failed", slog.String("image", *imagePath), slog.String("error", err.Error()))
			return
		}
		if err := writeDiagnosis(os.Stdout, diag); err != nil {
			slog.Error("Failed to write diagnosis", slog.String("error", err.Error()))
		}
		return
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.MaxMultipartMemory = config.C().MaxUploadMB << 20
	srv.Routes(r)

	addr := config.C().Host + ":" + config.C().Port
	httpServer := &http.Server{Addr: addr, Handler: r}
	slog.Info("Listening on", slog.String("address", addr))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", slog.String("error", err.Error()))
	}
}

// startRuntime runs the ONNX Runtime init and reports whether it succeeded.
// TFLite-only registries run without it; .onnx crops retry the init when
// their model is first loaded.
func startRuntime(initRuntime func() error) bool {
	if err := initRuntime(); err != nil {
		slog.Warn("ONNX Runtime unavailable, .onnx models will fail to load", slog.String("error", err.Error()))
		return false
	}
	return true
}

func writeDiagnosis(w io.Writer, diag any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(diag)
}
