package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoctor_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cropdoctor_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"},
	)
	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cropdoctor_inference_duration_seconds",
			Help:    "Duration of a single forward pass per crop model",
			Buckets: prometheus.DefBuckets,
		}, []string{"crop"},
	)
	CandidateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoctor_candidate_failures_total",
			Help: "Crop models skipped during identification",
		}, []string{"crop"},
	)
	Identified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoctor_identified_total",
			Help: "Winning crop of each identification",
		}, []string{"crop"},
	)
)

func init() {
	prometheus.MustRegister(RequestCount, RequestDuration, InferenceDuration, CandidateFailures, Identified)
}

func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RequestCount.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
