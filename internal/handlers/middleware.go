package handlers

import (
	"context"
	"errors"
	"fmt"
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/jwt"
	"net/http"
	"time"
)

type UserIDKeyType struct{}

// userExistsTTL bounds how long a positive existence check is cached.
const userExistsTTL = 15 * time.Minute

func userIDFrom(ctx context.Context) int64 {
	return ctx.Value(UserIDKeyType{}).(int64)
}

func (s *Server) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionCookie, err := r.Cookie(jwt.CookieName)
		if err != nil {
			s.sugar.Debug(err)
			if errors.Is(err, http.ErrNoCookie) {
				s.fail(w, apperr.New(apperr.KindUnauthenticated, "Not authenticated"))
			} else {
				s.fail(w, apperr.Wrap(apperr.KindInvalidInput, "Couldn't read session cookie", err))
			}
			return
		}

		userToken, err := jwt.VerifyToken(sessionCookie.Value)
		if err != nil {
			s.sugar.Debug(err)
			http.SetCookie(w, jwt.DeleteCookie())
			s.fail(w, apperr.New(apperr.KindUnauthenticated, "Login expired"))
			return
		}

		userFound, err := s.userExists(r.Context(), userToken.UserID)
		if err != nil {
			s.fail(w, err)
			return
		}

		// the account behind a still valid token is gone
		if !userFound {
			s.sugar.Warnf("User ID [%d] from session was not found in database", userToken.UserID)
			http.SetCookie(w, jwt.DeleteCookie())
			s.fail(w, apperr.New(apperr.KindUnauthenticated, "Not authenticated"))
			return
		}

		if jwt.NeedsRenewal(userToken, time.Now()) {
			updatedCookie, err := jwt.CreateToken(userToken.Remember, userToken.UserID)
			if err != nil {
				s.fail(w, apperr.Internal("renewing session", err))
				return
			}

			http.SetCookie(w, &updatedCookie)
		}

		ctx := context.WithValue(r.Context(), UserIDKeyType{}, userToken.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) userExists(ctx context.Context, userID int64) (bool, error) {
	key := fmt.Sprintf("user_exists:%d", userID)

	value, err := s.cache.Get(ctx, key)
	if err != nil {
		return false, apperr.Internal("reading user cache", err)
	}
	if value != "" {
		s.sugar.Debugf("User ID [%d] was found in cache", userID)
		return true, nil
	}

	found, err := s.users.Exists(ctx, userID)
	if err != nil {
		return false, err
	}

	if found {
		if err := s.cache.Set(ctx, key, "y", userExistsTTL); err != nil {
			return false, apperr.Internal("writing user cache", err)
		}
		s.sugar.Debugf("User ID [%d] was found in database and was cached", userID)
	}

	return found, nil
}
