package handlers

import (
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/identity"
	"kiselgram-backend/internal/jwt"
	"net/http"
)

// Login signs a user in, registering the handle on first use. On success the
// session cookie is set and the client is redirected to the chat list.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, apperr.Wrap(apperr.KindInvalidInput, "Invalid form", err))
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		s.fail(w, apperr.InvalidInput("Username and password are required"))
		return
	}

	userID, outcome, err := s.users.RegisterOrAuthenticate(r.Context(), username, password)
	if err != nil {
		s.fail(w, err)
		return
	}

	switch outcome {
	case identity.InvalidCredential:
		s.fail(w, apperr.New(apperr.KindUnauthenticated, "Invalid password"))
		return
	case identity.HandleInUse:
		s.fail(w, apperr.Conflict("Username already exists"))
		return
	}

	rememberMe := r.PostForm.Get("remember") == "on" || r.PostForm.Get("remember") == "true"
	cookie, err := jwt.CreateToken(rememberMe, userID)
	if err != nil {
		s.fail(w, apperr.Internal("creating session", err))
		return
	}

	s.sugar.Infof("User ID [%d] logged in [%s]", userID, outcome)

	http.SetCookie(w, &cookie)
	http.Redirect(w, r, "/chat_list", http.StatusSeeOther)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, jwt.DeleteCookie())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
