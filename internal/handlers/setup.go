package handlers

import (
	"fmt"
	"kiselgram-backend/internal/attachments"
	"kiselgram-backend/internal/conversations"
	"kiselgram-backend/internal/identity"
	"kiselgram-backend/internal/keyValue"
	"kiselgram-backend/internal/membership"
	"kiselgram-backend/internal/messages"
	"kiselgram-backend/internal/models"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Server struct {
	cfg           *models.ConfigFile
	sugar         *zap.SugaredLogger
	users         *identity.Store
	ledger        *membership.Ledger
	messages      *messages.Store
	conversations *conversations.Resolver
	files         *attachments.Manager
	cache         *keyValue.Store
	validate      *validator.Validate
}

type Services struct {
	Users         *identity.Store
	Ledger        *membership.Ledger
	Messages      *messages.Store
	Conversations *conversations.Resolver
	Files         *attachments.Manager
	Cache         *keyValue.Store
}

func NewServer(cfg *models.ConfigFile, sugar *zap.SugaredLogger, services Services) *Server {
	return &Server{
		cfg:           cfg,
		sugar:         sugar,
		users:         services.Users,
		ledger:        services.Ledger,
		messages:      services.Messages,
		conversations: services.Conversations,
		files:         services.Files,
		cache:         services.Cache,
		validate:      newValidator(),
	}
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)

	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.Health)

	r.Post("/login", s.Login)
	r.Get("/logout", s.Logout)

	r.Group(func(r chi.Router) {
		r.Use(s.UserVerifier)

		r.Post("/upload_file", s.UploadFile)
		r.Get("/uploads/*", s.ServeUpload)

		r.Get("/create_group", s.CreateGroupForm)
		r.Post("/create_group", s.CreateGroup)
		r.Get("/join_group/{invite}", s.JoinGroup)
		r.Get("/leave_group/{id}", s.LeaveGroup)

		r.Get("/create_channel", s.CreateChannelForm)
		r.Post("/create_channel", s.CreateChannel)
		r.Get("/join_channel/{invite}", s.JoinChannel)
		r.Get("/leave_channel/{id}", s.LeaveChannel)

		r.Route("/api", func(api chi.Router) {
			api.Get("/messages/{id}", s.GetDirectMessages)
			api.Get("/group_messages/{id}", s.GetGroupMessages)
			api.Get("/channel_messages/{id}", s.GetChannelMessages)

			api.Post("/send_message", s.SendMessage)
			api.Post("/send_group_message", s.SendGroupMessage)
			api.Post("/send_channel_message", s.SendChannelMessage)

			api.Delete("/delete_message/{id}", s.DeleteMessage)
			api.Post("/mark_read/{id}", s.MarkRead)

			api.Get("/chat_list", s.ChatList)
			api.Get("/search", s.Search)
			api.Get("/search_messages", s.SearchMessages)

			api.Get("/group_info/{id}", s.GroupInfo)
			api.Get("/channel_info/{id}", s.ChannelInfo)

			api.Get("/users", s.GetUsers)
			api.Get("/user_status/{id}", s.UserStatus)
			api.Get("/bots", s.GetBots)
		})
	})

	return r
}

func (s *Server) IsHttps() bool {
	return s.cfg.TlsCert != "" && s.cfg.TlsKey != ""
}

func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.cfg.Address, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe blocks until srv stops. Shutdown makes it return
// http.ErrServerClosed.
func (s *Server) ListenAndServe(srv *http.Server) error {
	if s.IsHttps() {
		return srv.ListenAndServeTLS(s.cfg.TlsCert, s.cfg.TlsKey)
	}
	return srv.ListenAndServe()
}
