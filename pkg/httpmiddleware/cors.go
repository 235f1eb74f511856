package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSConfig lists the allowed cross-origin callers. An empty Origins list
// allows any origin.
type CORSConfig struct {
	Origins          []string
	Headers          []string
	AllowCredentials bool
	MaxAge           int
}

// CORS answers preflight requests and decorates actual requests with the
// Access-Control-* headers.
func CORS(cfg CORSConfig) Middleware {
	origins := cfg.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	headers := cfg.Headers
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Request-ID"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
