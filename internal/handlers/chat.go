package handlers

import (
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/messages"
	"kiselgram-backend/internal/validator"
	"net/http"
)

// directoryLimit caps each kind of result in the directory search.
const directoryLimit = 10

func (s *Server) ChatList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	summaries, err := s.conversations.List(ctx, userID)
	if err != nil {
		s.fail(w, err)
		return
	}

	chats := make([]ChatView, 0, len(summaries))
	for _, summary := range summaries {
		chats = append(chats, chatView(summary))
	}

	s.respond(w, http.StatusOK, map[string][]ChatView{"chats": chats})
}

type directoryHit struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Type             string `json:"type"`
	MembersCount     *int   `json:"members_count,omitempty"`
	IsMember         *bool  `json:"is_member,omitempty"`
	SubscribersCount *int   `json:"subscribers_count,omitempty"`
	IsSubscribed     *bool  `json:"is_subscribed,omitempty"`
}

type searchResults struct {
	Users    []UserView     `json:"users"`
	Groups   []directoryHit `json:"groups"`
	Channels []directoryHit `json:"channels"`
}

// Search looks up users, groups and channels by name.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	query := r.URL.Query().Get("q")
	searchType := r.URL.Query().Get("type")
	if searchType == "" {
		searchType = "all"
	}

	switch searchType {
	case "all", "users", "groups", "channels":
	default:
		s.fail(w, apperr.InvalidInput("Unknown search type"))
		return
	}

	results := searchResults{Users: []UserView{}, Groups: []directoryHit{}, Channels: []directoryHit{}}
	if validator.Query(query) != nil {
		s.respond(w, http.StatusOK, map[string]searchResults{"results": results})
		return
	}

	if searchType == "all" || searchType == "users" {
		users, err := s.users.Search(ctx, query, userID, directoryLimit)
		if err != nil {
			s.fail(w, err)
			return
		}
		for _, user := range users {
			results.Users = append(results.Users, UserView{ID: user.ID, UserName: user.UserName, Type: "user"})
		}
	}

	if searchType == "all" || searchType == "groups" {
		groups, err := s.ledger.SearchGroups(ctx, userID, query, directoryLimit)
		if err != nil {
			s.fail(w, err)
			return
		}
		for _, hit := range groups {
			results.Groups = append(results.Groups, directoryHit{
				ID:           hit.ID,
				Name:         hit.Name,
				Description:  hit.Description,
				Type:         "group",
				MembersCount: &hit.MemberCount,
				IsMember:     &hit.IsMember,
			})
		}
	}

	if searchType == "all" || searchType == "channels" {
		channels, err := s.ledger.SearchChannels(ctx, userID, query, directoryLimit)
		if err != nil {
			s.fail(w, err)
			return
		}
		for _, hit := range channels {
			results.Channels = append(results.Channels, directoryHit{
				ID:               hit.ID,
				Name:             hit.Name,
				Description:      hit.Description,
				Type:             "channel",
				SubscribersCount: &hit.SubscriberCount,
				IsSubscribed:     &hit.IsSubscribed,
			})
		}
	}

	s.respond(w, http.StatusOK, map[string]searchResults{"results": results})
}

func (s *Server) SearchMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	scope, err := messages.ParseScope(r.URL.Query().Get("chat_type"))
	if err != nil {
		s.fail(w, err)
		return
	}

	chatID, err := queryID(r, "chat_id")
	if err != nil {
		s.fail(w, err)
		return
	}

	hits, err := s.messages.Search(ctx, userID, r.URL.Query().Get("q"), scope, chatID)
	if err != nil {
		s.fail(w, err)
		return
	}

	views := make([]SearchHitView, 0, len(hits))
	for _, hit := range hits {
		views = append(views, searchHitView(hit))
	}

	s.respond(w, http.StatusOK, map[string][]SearchHitView{"messages": views})
}
