package handlers

import (
	"errors"
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/attachments"
	"kiselgram-backend/internal/models"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// multipartOverhead leaves room for the form fields around the file.
const multipartOverhead = 1 << 20

// uploadDestination reads exactly one of receiver_id, group_id and
// channel_id from the form.
func uploadDestination(r *http.Request) (models.Destination, error) {
	fields := []struct {
		name string
		kind models.DestinationKind
	}{
		{"receiver_id", models.Direct},
		{"group_id", models.GroupChat},
		{"channel_id", models.ChannelFeed},
	}

	var dest models.Destination
	found := 0
	for _, field := range fields {
		raw := r.FormValue(field.name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return dest, apperr.InvalidInput("Invalid " + field.name)
		}
		dest = models.Destination{Kind: field.kind, ID: id}
		found++
	}

	switch found {
	case 0:
		return dest, apperr.InvalidInput("No destination specified")
	case 1:
		return dest, nil
	default:
		return dest, apperr.InvalidInput("Only one destination can be specified")
	}
}

func (s *Server) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.files.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, apperr.Wrap(apperr.KindInvalidInput, "File is larger than "+attachments.FormatSize(s.files.MaxBytes()), err))
		} else {
			s.fail(w, apperr.Wrap(apperr.KindInvalidInput, "Invalid upload", err))
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	dest, err := uploadDestination(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, apperr.Wrap(apperr.KindInvalidInput, "No file provided", err))
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.fail(w, apperr.InvalidInput("No file selected"))
		return
	}

	msg, err := s.messages.Upload(ctx, userID, dest, file, header.Filename, r.FormValue("message"))
	if err != nil {
		s.fail(w, err)
		return
	}

	s.sugar.Infof("User ID [%d] uploaded [%s] to %s [%d]", userID, msg.Attachment.Path, dest.Kind, dest.ID)
	s.respond(w, http.StatusOK, sentResponse{Success: true, Message: messageView(msg, userID)})
}

// ServeUpload streams a stored file to a member of the conversation it was
// sent to. The original file goes out with the type detected at upload.
func (s *Server) ServeUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)
	rel := strings.TrimPrefix(chi.URLParam(r, "*"), "/")

	fullPath, err := s.files.Resolve(rel)
	if err != nil {
		s.fail(w, err)
		return
	}

	att, err := s.messages.AttachmentAt(ctx, userID, rel)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthorized) {
			s.sugar.Warnf("User ID [%d] tried to download [%s] without access", userID, rel)
		}
		s.fail(w, err)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		s.fail(w, apperr.NotFound("File not found"))
		return
	}

	if rel == att.Path && att.MimeType != "" {
		w.Header().Set("Content-Type", att.MimeType)
	}
	http.ServeFile(w, r, fullPath)
}
