package handlers

import (
	"kiselgram-backend/internal/apperr"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) CreateChannelForm(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, conversationForm{})
}

func (s *Server) CreateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	in, err := readConversationForm(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	channel, err := s.ledger.CreateChannel(ctx, userID, in)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.sugar.Infof("User ID [%d] created channel ID [%d]", userID, channel.ID)
	s.respond(w, http.StatusCreated, channelResponse{Success: true, Channel: channelView(channel, true)})
}

func (s *Server) JoinChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	channel, err := s.ledger.JoinChannelByInvite(ctx, userID, chi.URLParam(r, "invite"))
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, channelResponse{Success: true, Channel: channelView(channel, true)})
}

func (s *Server) LeaveChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	channelID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.ledger.Unsubscribe(ctx, userID, channelID); err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, successResponse{Success: true})
}

// ChannelInfo shows a channel with its subscribers. Only subscribers may look.
func (s *Server) ChannelInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	channelID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}

	channel, err := s.ledger.Channel(ctx, channelID)
	if err != nil {
		s.fail(w, err)
		return
	}

	isSubscriber, err := s.ledger.IsSubscriber(ctx, userID, channelID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !isSubscriber {
		s.fail(w, apperr.Unauthorized("Access denied"))
		return
	}

	subscribers, err := s.ledger.ChannelSubscribers(ctx, channelID)
	if err != nil {
		s.fail(w, err)
		return
	}

	views := make([]MemberView, 0, len(subscribers))
	for _, sub := range subscribers {
		views = append(views, MemberView{UserID: sub.UserID, UserName: sub.UserName, JoinedAt: sub.SubscribedAt})
	}

	s.respond(w, http.StatusOK, struct {
		Channel          GroupView    `json:"channel"`
		SubscribersCount int          `json:"subscribers_count"`
		Subscribers      []MemberView `json:"subscribers"`
		IsOwner          bool         `json:"is_owner"`
	}{Channel: channelView(channel, true), SubscribersCount: len(views), Subscribers: views, IsOwner: channel.OwnerID == userID})
}
