package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/chatdesk/internal/middleware"
	"github.com/chatdesk/internal/repository"
	"github.com/chatdesk/internal/storage"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth    *AuthHandler
	Users   *UserHandler
	Chats   *ChatHandler
	Msgs    *MessageHandler
	Labels  *LabelHandler
	Files   *FileHandler
	Push    *PushHandler
	WS      *WSHandler
	Sess    *repository.SessionRepo
	Store   storage.SessionStore
	Origins []string
}

// NewRouter assembles the HTTP surface. Everything under /api except the
// auth endpoints requires a signed session.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Session-Id", "X-Timestamp", "X-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authLimiter := middleware.NewRateLimiter(30, time.Minute)
	auth := middleware.SessionAuth(h.Store, h.Sess)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/auth/signup", h.Auth.SignUp)
			r.Get("/auth/verify", h.Auth.Verify)
			r.Post("/auth/login", h.Auth.SignIn)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/auth/logout", h.Auth.SignOut)
			r.Get("/auth/me", h.Auth.Me)
			r.Put("/auth/me", h.Users.UpdateProfile)

			r.Get("/users", h.Users.List)

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", h.Chats.List)
				r.Post("/direct", h.Chats.CreateDirect)
				r.Post("/group", h.Chats.CreateGroup)

				r.Route("/{chatID}", func(r chi.Router) {
					r.Get("/", h.Chats.Get)
					r.Delete("/", h.Chats.Delete)

					r.Get("/members", h.Chats.ListMembers)
					r.Post("/members", h.Chats.AddMember)
					r.Delete("/members/{userID}", h.Chats.RemoveMember)
					r.Put("/members/{userID}/role", h.Chats.UpdateRole)

					r.Get("/labels", h.Chats.ListLabels)
					r.Post("/labels", h.Chats.AttachLabel)
					r.Delete("/labels/{labelID}", h.Chats.DetachLabel)

					r.Get("/messages", h.Msgs.List)
					r.Post("/messages", h.Msgs.Send)
					r.Post("/read", h.Msgs.MarkRead)

					r.Post("/attachments", h.Files.Upload)
				})
			})

			r.Get("/labels", h.Labels.List)
			r.Post("/labels", h.Labels.Create)
			r.Delete("/labels/{labelID}", h.Labels.Delete)

			r.Get("/config/push", h.Push.Key)
			r.Post("/push/subscribe", h.Push.Subscribe)
			r.Delete("/push/subscribe", h.Push.Unsubscribe)

			r.Get("/files/*", h.Files.Serve)
		})
	})

	r.Get("/ws", h.WS.Connect)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}
