package handlers

import (
	"encoding/json"
	"errors"
	"kiselgram-backend/internal/apperr"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.sugar.Error(err)
	}
}

// fail writes err as {"error": ...} with the status matching its kind.
// Internal failures are logged and their details hidden.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	switch {
	case status >= http.StatusInternalServerError:
		s.sugar.Error(err)
	case status == http.StatusForbidden:
		s.sugar.Warn(err)
	default:
		s.sugar.Debug(err)
	}
	s.respond(w, status, errorResponse{Error: apperr.PublicMessage(err)})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput("Invalid " + name)
	}
	return id, nil
}

// queryID parses an optional numeric query parameter; absent means zero.
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, apperr.InvalidInput("Invalid " + name)
	}
	return id, nil
}

func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "Invalid request body", err)
	}

	if err := s.validate.Struct(dst); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) && len(validateErrs) > 0 {
			e := validateErrs[0]
			return apperr.Wrap(apperr.KindInvalidInput, "Invalid "+e.Field()+": "+e.Tag(), err)
		}
		return apperr.Internal("validating request", err)
	}
	return nil
}
