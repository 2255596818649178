package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/krau/cropdoctor/metrics"
	"github.com/krau/cropdoctor/service"
	"github.com/krau/cropdoctor/store"
	"github.com/krau/cropdoctor/translate"
)

const anonymousUser = "anonymous"

var (
	errUnauthorized = errors.New("unauthorized")
	errNoImage      = errors.New("no image uploaded")
	errTooLarge     = errors.New("image too large")
)

func authenticate(c *gin.Context, expectedToken string) error {
	auth := c.GetHeader("Authorization")

	if expectedToken == "" {
		return nil
	}
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}

	return nil
}

func (s *Server) requireAuth(c *gin.Context) {
	if err := authenticate(c, s.token); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	c.Next()
}

// Routes registers every endpoint on r. /health and /metrics stay open.
func (s *Server) Routes(r *gin.Engine) {
	r.Use(metrics.Middleware())
	r.GET("/health", s.HealthHandler)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/", s.requireAuth)
	api.POST("/diagnosis", s.limitBody, s.DiagnosisHandler)
	api.POST("/upload", s.limitBody, s.UploadHandler)
	api.GET("/crops", s.CropsHandler)
	api.GET("/history", s.HistoryHandler)
	api.GET("/history/latest", s.LatestHandler)
	api.GET("/languages", s.LanguagesHandler)
	api.GET("/translations/:lang", s.TranslationsHandler)
}

func userID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
		return id
	}
	return anonymousUser
}

// statusOf maps a diagnosis error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrImageNotFound), errors.Is(err, service.ErrUnknownCrop):
		return http.StatusNotFound
	case errors.Is(err, service.ErrImageDecode), errors.Is(err, errNoImage):
		return http.StatusBadRequest
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrIdentificationExhausted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// multipartOverhead leaves room for form fields and part headers around the
// image itself.
const multipartOverhead = 1 << 20

// limitBody caps the request body so oversize uploads fail while being read.
func (s *Server) limitBody(c *gin.Context) {
	if s.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+multipartOverhead)
	}
	c.Next()
}

// formImage returns the "image" form file. errNoImage means the request has
// none; errTooLarge that the body or the file exceeds the upload limit.
func (s *Server) formImage(c *gin.Context) (*multipart.FileHeader, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errTooLarge
		}
		return nil, errNoImage
	}
	if s.maxUpload > 0 && fileHeader.Size > s.maxUpload {
		return nil, errTooLarge
	}
	return fileHeader, nil
}

// saveUpload stores an uploaded file under a fresh name and returns its path.
func (s *Server) saveUpload(c *gin.Context, fileHeader *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	path := filepath.Join(s.uploadDir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(fileHeader, path); err != nil {
		return "", err
	}
	return path, nil
}

// imagePath resolves the image of a diagnosis request: a file in the request,
// or the name of an earlier upload.
func (s *Server) imagePath(c *gin.Context) (string, error) {
	fileHeader, err := s.formImage(c)
	switch {
	case err == nil:
		return s.saveUpload(c, fileHeader)
	case errors.Is(err, errTooLarge):
		return "", err
	}
	if name := c.PostForm("filename"); name != "" {
		return filepath.Join(s.uploadDir, filepath.Base(name)), nil
	}
	return "", errNoImage
}

// Diagnose identifies the crop when crop is empty, otherwise uses that crop's
// model directly.
func (s *Server) Diagnose(ctx context.Context, imagePath, crop string) (*service.Diagnosis, error) {
	if crop == "" {
		return s.diagnoser.Identify(ctx, imagePath)
	}
	return s.diagnoser.Diagnose(ctx, imagePath, crop)
}

type diagnosisResponse struct {
	ID        string `json:"id,omitempty"`
	ImagePath string `json:"image_path"`
	translate.Localized
}

func (s *Server) DiagnosisHandler(c *gin.Context) {
	lang, ok := translate.Normalize(c.PostForm("lang"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported language"})
		return
	}

	path, err := s.imagePath(c)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	crop := strings.TrimSpace(c.PostForm("crop"))
	diag, err := s.Diagnose(c.Request.Context(), path, crop)
	if err != nil {
		status := statusOf(err)
		resp := gin.H{"error": err.Error()}
		var idErr *service.IdentificationError
		if errors.As(err, &idErr) {
			resp["attempts"] = attemptsOf(idErr)
		}
		if idErr != nil || status >= http.StatusInternalServerError {
			slog.Error("Diagnosis failed", slog.String("crop", crop), slog.String("error", err.Error()))
		}
		c.JSON(status, resp)
		return
	}

	slog.Info("Diagnosis complete",
		slog.String("crop", diag.Crop),
		slog.String("disease", diag.Disease),
		slog.Float64("confidence", diag.Confidence),
		slog.String("stage", diag.Stage))
	resp := diagnosisResponse{
		ImagePath: filepath.Base(path),
		Localized: s.translator.LocalizeDiagnosis(c.Request.Context(), *diag, lang),
	}
	rec, err := s.history.Add(store.Record{
		UserID:    userID(c),
		ImagePath: path,
		Language:  lang,
		Diagnosis: *diag,
	})
	if err != nil {
		slog.Warn("Failed to save diagnosis", slog.String("error", err.Error()))
	} else {
		resp.ID = rec.ID
	}
	c.JSON(http.StatusOK, resp)
}

func attemptsOf(e *service.IdentificationError) []gin.H {
	out := make([]gin.H, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, gin.H{"crop": a.Crop, "error": a.Reason()})
	}
	return out
}

func (s *Server) UploadHandler(c *gin.Context) {
	fileHeader, err := s.formImage(c)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	path, err := s.saveUpload(c, fileHeader)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": filepath.Base(path)})
}

func (s *Server) CropsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"crops": s.diagnoser.Registry().Crops()})
}

func (s *Server) HistoryHandler(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	records, err := s.history.List(userID(c), limit)
	if err != nil {
		slog.Error("Failed to read history", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (s *Server) LatestHandler(c *gin.Context) {
	rec, ok, err := s.history.Latest(userID(c))
	if err != nil {
		slog.Error("Failed to read history", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no diagnosis yet"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) LanguagesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": translate.Languages()})
}

func (s *Server) TranslationsHandler(c *gin.Context) {
	lang, ok := translate.Normalize(c.Param("lang"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unsupported language"})
		return
	}
	if key := c.Query("key"); key != "" {
		c.JSON(http.StatusOK, gin.H{"language": lang, "key": key, "text": s.translator.UIText(key, lang)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"language":     lang,
		"translations": s.translator.AllUI(c.Request.Context(), lang),
	})
}

func (s *Server) HealthHandler(c *gin.Context) {
	resp := gin.H{"status": "healthy", "crops": len(s.diagnoser.Registry())}
	if s.models != nil {
		resp["models_loaded"] = s.models.Len()
	}
	c.JSON(http.StatusOK, resp)
}
