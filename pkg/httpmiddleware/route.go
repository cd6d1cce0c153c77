package httpmiddleware

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type routeKey struct{}

type routeHolder struct {
	pattern string
}

func withRouteHolder(ctx context.Context) (context.Context, *routeHolder) {
	h := &routeHolder{}
	return context.WithValue(ctx, routeKey{}, h), h
}

// RouteFromContext returns the pattern recorded by Route, if any.
func RouteFromContext(ctx context.Context) string {
	if h, ok := ctx.Value(routeKey{}).(*routeHolder); ok {
		return h.pattern
	}
	return ""
}

// Route labels the request with its mux pattern: the span is renamed, the
// otelhttp metrics get an http.route attribute and LogRequests picks it up.
func Route(pattern string, next http.Handler) http.Handler {
	attr := attribute.String("http.route", pattern)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h, ok := ctx.Value(routeKey{}).(*routeHolder); ok {
			h.pattern = pattern
		}
		if labeler, ok := otelhttp.LabelerFromContext(ctx); ok {
			labeler.Add(attr)
		}
		span := trace.SpanFromContext(ctx)
		span.SetName(pattern)
		span.SetAttributes(attr)

		next.ServeHTTP(w, r)
	})
}
