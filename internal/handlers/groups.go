package handlers

import (
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/membership"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type conversationForm struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

// readConversationForm accepts the url-encoded or multipart form of the
// create pages. Checkboxes send "on".
func readConversationForm(r *http.Request) (membership.NewConversation, error) {
	if err := r.ParseForm(); err != nil {
		return membership.NewConversation{}, apperr.Wrap(apperr.KindInvalidInput, "Invalid form", err)
	}

	isPublic := r.FormValue("is_public")
	return membership.NewConversation{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		IsPublic:    isPublic == "on" || isPublic == "true",
	}, nil
}

type groupResponse struct {
	Success bool      `json:"success"`
	Group   GroupView `json:"group"`
}

type channelResponse struct {
	Success bool      `json:"success"`
	Channel GroupView `json:"channel"`
}

// CreateGroupForm returns the defaults of the create group form.
func (s *Server) CreateGroupForm(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, conversationForm{})
}

func (s *Server) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	in, err := readConversationForm(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	group, err := s.ledger.CreateGroup(ctx, userID, in)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.sugar.Infof("User ID [%d] created group ID [%d]", userID, group.ID)
	s.respond(w, http.StatusCreated, groupResponse{Success: true, Group: groupView(group, true)})
}

func (s *Server) JoinGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	group, err := s.ledger.JoinGroupByInvite(ctx, userID, chi.URLParam(r, "invite"))
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, groupResponse{Success: true, Group: groupView(group, true)})
}

func (s *Server) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	groupID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}

	deleted, err := s.ledger.LeaveGroup(ctx, userID, groupID)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Deleted bool `json:"deleted"`
	}{Success: true, Deleted: deleted})
}

// GroupInfo lists the members of a group. Only members may look.
func (s *Server) GroupInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	groupID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}

	group, err := s.ledger.Group(ctx, groupID)
	if err != nil {
		s.fail(w, err)
		return
	}

	isMember, err := s.ledger.IsMember(ctx, userID, groupID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !isMember {
		s.fail(w, apperr.Unauthorized("Access denied"))
		return
	}

	members, err := s.ledger.GroupMembers(ctx, groupID)
	if err != nil {
		s.fail(w, err)
		return
	}

	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, MemberView{UserID: m.UserID, UserName: m.UserName, Role: string(m.Role), JoinedAt: m.JoinedAt})
	}

	s.respond(w, http.StatusOK, struct {
		Group        GroupView    `json:"group"`
		MembersCount int          `json:"members_count"`
		Members      []MemberView `json:"members"`
		IsOwner      bool         `json:"is_owner"`
	}{Group: groupView(group, true), MembersCount: len(views), Members: views, IsOwner: group.OwnerID == userID})
}
