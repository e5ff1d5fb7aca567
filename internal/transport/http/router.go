package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"roaia/internal/handler"
	"roaia/internal/httputil"
	"roaia/internal/metrics"
	"roaia/internal/model"
	authmw "roaia/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	AuthHandler         *handler.AuthHandler
	DashboardHandler    *handler.DashboardHandler
	AccountHandler      *handler.AccountHandler
	NotificationHandler *handler.NotificationHandler
	GPSHandler          *handler.GPSHandler
	AssistantHandler    *handler.AssistantHandler
	Tokens              *authmw.TokenValidator
	// AuthRateLimit wraps /api/auth; nil disables it.
	AuthRateLimit func(http.Handler) http.Handler
	Metrics             *metrics.Metrics
	Logger              *zap.Logger
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmw.RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	auth := authmw.AuthMiddleware(cfg.Tokens)
	admin := authmw.RequireRole(model.RoleAdmin, model.RoleSuperAdmin)

	r.With(authmw.HubAuthMiddleware(cfg.Tokens)).Get("/hubs/gps", cfg.GPSHandler.Stream)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimit != nil {
				r.Use(cfg.AuthRateLimit)
			}
			r.Post("/register", cfg.AuthHandler.Register)
			r.Post("/login", cfg.AuthHandler.Login)
			r.Post("/refresh-token", cfg.AuthHandler.RefreshToken)
			r.Post("/revoke-token", cfg.AuthHandler.RevokeToken)
			r.Post("/send-otp", cfg.AuthHandler.SendOTP)
			r.Post("/verify-otp", cfg.AuthHandler.VerifyOTP)
			r.Post("/reset-password", cfg.AuthHandler.ResetPassword)
			r.Post("/unsubscribe-mail-news/{email}", cfg.DashboardHandler.UnsubscribeMailNews)

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Put("/modify-user", cfg.AuthHandler.ModifyUser)
				r.Put("/change-password", cfg.AuthHandler.ChangePassword)
				r.Get("/users/{id}", cfg.AuthHandler.GetUser)

				r.With(admin).Post("/add-role", cfg.AuthHandler.AddRole)
				r.With(admin).Get("/users", cfg.AuthHandler.ListUsers)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(auth, admin)
			r.Get("/users", cfg.AuthHandler.ListUsers)
			r.Post("/users", cfg.DashboardHandler.CreateUser)
			r.Put("/users/{id}", cfg.DashboardHandler.EditUser)
			r.Post("/users/{id}/toggle-status", cfg.DashboardHandler.ToggleStatus)
			r.Post("/users/{id}/reset-password", cfg.DashboardHandler.ResetPassword)
			r.Post("/users/{id}/unlock", cfg.DashboardHandler.Unlock)
			r.Post("/mail-news", cfg.DashboardHandler.SendMailNews)
		})

		r.Route("/account", func(r chi.Router) {
			r.Use(auth)
			r.Get("/user-info", cfg.AuthHandler.UserInfo)
			r.Delete("/{userId}", cfg.AuthHandler.DeleteAccount)
		})

		r.Route("/glasses", func(r chi.Router) {
			// Called by the glasses themselves, which hold no user session.
			r.Post("/gps", cfg.GPSHandler.Ingest)
			r.Post("/{id}/notifications", cfg.NotificationHandler.Send)
			r.Get("/{id}/contacts/images", cfg.AccountHandler.ListContactImages)

			r.Group(func(r chi.Router) {
				r.Use(auth)

				r.With(admin).Post("/", cfg.AccountHandler.GenerateGlassesID)
				r.With(admin).Put("/{id}/subscription", cfg.AccountHandler.SetSubscription)

				r.Get("/{id}", cfg.AccountHandler.GetGlasses)
				r.Put("/{id}", cfg.AccountHandler.ModifyGlasses)
				r.Get("/{id}/location", cfg.GPSHandler.LastLocation)

				r.Get("/{id}/contacts", cfg.AccountHandler.ListContacts)
				r.Post("/{id}/contacts", cfg.AccountHandler.AddContact)
				r.Put("/{id}/contacts/{contactId}", cfg.AccountHandler.ModifyContact)
				r.Delete("/{id}/contacts/{contactId}", cfg.AccountHandler.DeleteContact)

				r.Get("/{id}/notifications", cfg.NotificationHandler.List)
				r.Delete("/{id}/notifications", cfg.NotificationHandler.DeleteAll)
				r.Get("/{id}/notifications/unread-count", cfg.NotificationHandler.UnreadCount)
				r.Post("/{id}/notifications/read-all", cfg.NotificationHandler.MarkAllRead)
				r.Delete("/{id}/notifications/{nid}", cfg.NotificationHandler.Delete)
				r.Patch("/{id}/notifications/{nid}/read", cfg.NotificationHandler.ToggleRead)
			})
		})

		r.Route("/service", func(r chi.Router) {
			r.Post("/process-audio", cfg.AssistantHandler.ProcessAudio)
			r.Post("/ask-chat", cfg.AssistantHandler.AskChat)
		})
	})

	return r
}
