// Package metadata records caller network details for access logs.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type (
	clientIPKey  struct{}
	userAgentKey struct{}
	clientKey    struct{}
)

// Client is the parsed form of a User-Agent header.
type Client struct {
	Browser        string
	BrowserVersion string
	OS             string
	Mobile         bool
	Bot            bool
}

// ParseClient parses a raw User-Agent. An empty header yields the zero Client.
func ParseClient(raw string) Client {
	if raw == "" {
		return Client{}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return Client{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
}

// ClientMetadata stores the caller's IP, raw User-Agent and parsed client in
// the request context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.UserAgent()
		ctx := WithClientMetadata(r.Context(), ClientIPFromRequest(r), raw)
		ctx = context.WithValue(ctx, clientKey{}, ParseClient(raw))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClient returns the parsed client set by ClientMetadata.
func GetClient(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func GetUserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the connection's remote address.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
