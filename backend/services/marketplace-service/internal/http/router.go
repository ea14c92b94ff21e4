package httpserver

import "net/http"

// Routes groups handlers. Authed routes are wrapped with the auth middleware
// by the caller before registration.
type Routes struct {
	Signup http.HandlerFunc
	Login  http.HandlerFunc
	Health http.HandlerFunc

	StationsNearby    http.HandlerFunc
	StationsCreate    http.HandlerFunc
	StationsMine      http.HandlerFunc
	StationsSetActive http.HandlerFunc

	StartNavigation  http.HandlerFunc
	CancelNavigation http.HandlerFunc
	StartCharge      http.HandlerFunc
	EndCharge        http.HandlerFunc
	ReportLocation   http.HandlerFunc
	SessionsMe       http.HandlerFunc

	SetPaymentMethod http.HandlerFunc
	SetPayoutAccount http.HandlerFunc
	Wallet           http.HandlerFunc

	StationFeed http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()

	register := func(pattern, verb string, handler http.HandlerFunc) {
		if handler != nil {
			mux.Handle(pattern, method(verb, handler))
		}
	}

	register("/auth/signup", http.MethodPost, routes.Signup)
	register("/auth/login", http.MethodPost, routes.Login)
	register("/health", http.MethodGet, routes.Health)

	register("/stations/nearby", http.MethodGet, routes.StationsNearby)
	register("/stations", http.MethodPost, routes.StationsCreate)
	register("/stations/mine", http.MethodGet, routes.StationsMine)
	register("/stations/active", http.MethodPost, routes.StationsSetActive)

	register("/charge/navigate", http.MethodPost, routes.StartNavigation)
	register("/charge/cancel", http.MethodPost, routes.CancelNavigation)
	register("/charge/start", http.MethodPost, routes.StartCharge)
	register("/charge/end", http.MethodPost, routes.EndCharge)
	register("/charge/location", http.MethodPost, routes.ReportLocation)
	register("/sessions/me", http.MethodGet, routes.SessionsMe)

	register("/billing/payment-method", http.MethodPost, routes.SetPaymentMethod)
	register("/billing/payout-account", http.MethodPost, routes.SetPayoutAccount)
	register("/billing/wallet", http.MethodGet, routes.Wallet)

	register("/ws/stations", http.MethodGet, routes.StationFeed)

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
