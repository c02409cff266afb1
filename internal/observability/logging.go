package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the process logger and installs it as the zerolog global.
func NewLogger(level string, pretty bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, err
	}

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(lvl)
	zerolog.SetGlobalLevel(lvl)
	log.Logger = logger
	return logger, nil
}

// LoggingMiddleware logs HTTP requests with OpenTelemetry trace context.
func LoggingMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		statusCode := c.Writer.Status()
		event := logger.Info()
		if statusCode >= 500 {
			event = logger.Error()
		} else if statusCode >= 400 {
			event = logger.Warn()
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.SpanContext().IsValid() {
			event = event.
				Str("trace_id", span.SpanContext().TraceID().String()).
				Str("span_id", span.SpanContext().SpanID().String())
		}
		if requestID := c.GetString(RequestIDKey); requestID != "" {
			event = event.Str("request_id", requestID)
		}
		user := c.GetString(UsernameKey)
		if user == "" {
			user = "anonymous"
		}

		event.
			Str("client_ip", c.ClientIP()).
			Str("user", user).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", time.Since(start)).
			Msg(c.Errors.ByType(gin.ErrorTypePrivate).String())
	}
}
