package httpserver

import "net/http"

// Routes groups the small support surface of the settlement service.
type Routes struct {
	Health     http.HandlerFunc
	Settlement http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()

	register := func(pattern, verb string, handler http.HandlerFunc) {
		if handler != nil {
			mux.Handle(pattern, method(verb, handler))
		}
	}

	register("/health", http.MethodGet, routes.Health)
	register("/internal/settlements", http.MethodGet, routes.Settlement)

	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
