package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"

	"fundsphere/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := observability.Tracer
	observability.Tracer = tp.Tracer("test")
	t.Cleanup(func() { observability.Tracer = prev })
	return rec
}

func TestTracingMiddleware_NamesSpanByRoute(t *testing.T) {
	rec := withRecorder(t)

	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/campaigns/:id", func(c *fiber.Ctx) error {
		c.Locals(LocalUserID, "u-1")
		return c.SendString(c.Locals(LocalTraceID).(string))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/campaigns/c-42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /campaigns/:id", spans[0].Name())
	assert.Equal(t, resp.Header.Get("X-Trace-ID"), spans[0].SpanContext().TraceID().String())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "u-1", attrs["user.id"])
	assert.Equal(t, "200", attrs["http.status_code"])
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestTracingMiddleware_RecordsErrors(t *testing.T) {
	rec := withRecorder(t)

	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("store unavailable") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "store unavailable", spans[0].Status().Description)
}
