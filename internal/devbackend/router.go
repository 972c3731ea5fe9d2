package devbackend

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"touradmin/internal/resource"
	"touradmin/pkg/config"
	"touradmin/pkg/logging"
)

// DefaultGatewaySecret signs test payments when RAZORPAY_KEY_SECRET is unset.
const DefaultGatewaySecret = "dev_gateway_secret"

type Dependencies struct {
	Cfg    config.Config
	Store  *Store
	Logger *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// GatewaySecret returns the secret used to verify payment signatures.
func GatewaySecret(cfg config.Config) string {
	if cfg.Gateway.KeySecret != "" {
		return cfg.Gateway.KeySecret
	}
	return DefaultGatewaySecret
}

func NewRouter(deps Dependencies) http.Handler {
	log := logging.OrNop(deps.Logger)
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authHandlers := AuthHandlers{
		Store:        deps.Store,
		Secret:       deps.Cfg.Dev.JWTSecret,
		SecureCookie: !deps.Cfg.IsDevelopment(),
		Log:          log,
		Now:          now,
	}
	bookingHandlers := BookingHandlers{
		Store:         deps.Store,
		GatewaySecret: GatewaySecret(deps.Cfg),
		Currency:      deps.Cfg.Gateway.Currency,
		Log:           log,
	}
	userHandlers := UserHandlers{Store: deps.Store}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandlers.Register)
		r.Post("/auth/login", authHandlers.Login)
		r.Get("/auth/logout", authHandlers.Logout)
		r.Post("/auth/logout", authHandlers.Logout)

		r.Group(func(r chi.Router) {
			r.Use(SessionAuth(deps.Cfg.Dev.JWTSecret, deps.Store, now))

			r.Get("/auth/me", authHandlers.Me)

			r.Get("/bookings", bookingHandlers.List)
			r.Post("/bookings", bookingHandlers.Create)
			r.Get("/bookings/{id}", bookingHandlers.Get)
			r.Delete("/bookings/{id}", bookingHandlers.Delete)
			// Without payments the client sees 404 and reports the backend as not ready.
			if deps.Cfg.Dev.PaymentsEnabled {
				r.Post("/bookings/{id}/create-order", bookingHandlers.CreateOrder)
				r.Post("/bookings/verify-payment", bookingHandlers.VerifyPayment)
			}

			for _, name := range []resource.Name{resource.Hotels, resource.Places, resource.SubPlaces, resource.Packages, resource.Ratings} {
				h := CollectionHandlers{Store: deps.Store, Name: name}
				r.Route("/"+string(name), func(r chi.Router) {
					r.Get("/", h.List)
					r.Post("/", h.Create)
					r.Get("/{id}", h.Get)
					r.Put("/{id}", h.Update)
					r.Delete("/{id}", h.Delete)
				})
			}

			r.Route("/users", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", userHandlers.List)
				r.Get("/{id}", userHandlers.Get)
				r.Delete("/{id}", userHandlers.Delete)
			})
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.Cfg.Dev.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler(r)
}
