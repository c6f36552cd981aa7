package handlers

import (
	"kiselgram-backend/internal/models"
	"net/http"
)

type messagesResponse struct {
	Messages []MessageView `json:"messages"`
}

type sentResponse struct {
	Success bool        `json:"success"`
	Message MessageView `json:"message"`
}

func (s *Server) fetchMessages(w http.ResponseWriter, r *http.Request, kind models.DestinationKind) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	convID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}

	after, err := queryID(r, "after")
	if err != nil {
		s.fail(w, err)
		return
	}

	conv := models.Destination{Kind: kind, ID: convID}
	msgs, err := s.messages.FetchSince(ctx, userID, conv, after)
	if err != nil {
		s.fail(w, err)
		return
	}

	// opening a direct chat from the start reads it
	if kind == models.Direct && after == 0 {
		if _, err := s.messages.MarkRead(ctx, userID, convID); err != nil {
			s.fail(w, err)
			return
		}
	}

	s.respond(w, http.StatusOK, messagesResponse{Messages: messageViews(msgs, userID)})
}

func (s *Server) GetDirectMessages(w http.ResponseWriter, r *http.Request) {
	s.fetchMessages(w, r, models.Direct)
}

func (s *Server) GetGroupMessages(w http.ResponseWriter, r *http.Request) {
	s.fetchMessages(w, r, models.GroupChat)
}

func (s *Server) GetChannelMessages(w http.ResponseWriter, r *http.Request) {
	s.fetchMessages(w, r, models.ChannelFeed)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, dest models.Destination, content string) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	msg, err := s.messages.Append(ctx, userID, dest, models.Payload{Content: content})
	if err != nil {
		s.fail(w, err)
		return
	}

	s.sugar.Debugf("User ID [%d] sent message ID [%d] to %s [%d]", userID, msg.ID, dest.Kind, dest.ID)
	s.respond(w, http.StatusOK, sentResponse{Success: true, Message: messageView(msg, userID)})
}

func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiverID int64  `json:"receiver_id" validate:"gt=0"`
		Content    string `json:"content" validate:"required,max=4096"`
	}
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.send(w, r, models.ToUser(req.ReceiverID), req.Content)
}

func (s *Server) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID int64  `json:"group_id" validate:"gt=0"`
		Content string `json:"content" validate:"required,max=4096"`
	}
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.send(w, r, models.ToGroup(req.GroupID), req.Content)
}

func (s *Server) SendChannelMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID int64  `json:"channel_id" validate:"gt=0"`
		Content   string `json:"content" validate:"required,max=4096"`
	}
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.send(w, r, models.ToChannel(req.ChannelID), req.Content)
}

func (s *Server) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	messageID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.messages.Delete(ctx, messageID, userID); err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	peerID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}

	changed, err := s.messages.MarkRead(ctx, userID, peerID)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.sugar.Debugf("User ID [%d] read %d messages from user ID [%d]", userID, changed, peerID)
	s.respond(w, http.StatusOK, successResponse{Success: true})
}
