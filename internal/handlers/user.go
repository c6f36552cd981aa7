package handlers

import (
	"net/http"
)

type botView struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GetUsers lists everyone except the caller, with the bot accounts
// separately.
func (s *Server) GetUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	users, err := s.users.List(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}

	bots, err := s.users.ActiveBots(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}

	botUsers := make(map[int64]bool, len(bots))
	botViews := make([]botView, 0, len(bots))
	for _, bot := range bots {
		botUsers[bot.UserID] = true
		botViews = append(botViews, botView{ID: bot.ID, UserID: bot.UserID, Name: bot.Name, Description: bot.Description})
	}

	userViews := make([]UserView, 0, len(users))
	for _, user := range users {
		if user.ID == userID {
			continue
		}
		kind := "user"
		if botUsers[user.ID] {
			kind = "bot"
		}
		userViews = append(userViews, UserView{ID: user.ID, UserName: user.UserName, Type: kind})
	}

	s.respond(w, http.StatusOK, struct {
		Users []UserView `json:"users"`
		Bots  []botView  `json:"bots"`
	}{Users: userViews, Bots: botViews})
}

func (s *Server) GetBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.users.ActiveBots(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	views := make([]botView, 0, len(bots))
	for _, bot := range bots {
		views = append(views, botView{ID: bot.ID, UserID: bot.UserID, Name: bot.Name, Description: bot.Description})
	}

	s.respond(w, http.StatusOK, map[string][]botView{"bots": views})
}

// UserStatus reports every existing user as online; presence isn't tracked.
func (s *Server) UserStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestedID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}

	user, err := s.users.Get(ctx, requestedID)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, struct {
		UserID   int64   `json:"user_id"`
		UserName string  `json:"username"`
		IsOnline bool    `json:"is_online"`
		LastSeen *string `json:"last_seen"`
	}{UserID: user.ID, UserName: user.UserName, IsOnline: true})
}
