package handlers

import (
	"kiselgram-backend/internal/attachments"
	"kiselgram-backend/internal/conversations"
	"kiselgram-backend/internal/messages"
	"kiselgram-backend/internal/models"
	"time"
)

type MessageView struct {
	ID            int64   `json:"id"`
	Content       string  `json:"content"`
	SenderName    string  `json:"sender_name"`
	Timestamp     string  `json:"timestamp"`
	IsRead        bool    `json:"is_read"`
	IsOwn         bool    `json:"is_own"`
	IsBot         bool    `json:"is_bot"`
	HasAttachment bool    `json:"has_attachment"`
	FileType      string  `json:"file_type,omitempty"`
	FileName      string  `json:"file_name,omitempty"`
	FileSize      string  `json:"file_size,omitempty"`
	FileURL       string  `json:"file_url,omitempty"`
	ThumbnailURL  *string `json:"thumbnail_url,omitempty"`
}

func messageView(msg models.Message, viewerID int64) MessageView {
	view := MessageView{
		ID:         msg.ID,
		Content:    msg.Content,
		SenderName: msg.SenderName,
		Timestamp:  msg.CreatedAt.UTC().Format("15:04"),
		IsRead:     msg.IsRead,
		IsOwn:      msg.SenderID == viewerID,
		IsBot:      msg.IsSynthetic,
	}

	if att := msg.Attachment; att != nil {
		view.HasAttachment = true
		view.FileType = string(att.Type)
		view.FileName = att.Name
		view.FileSize = attachments.FormatSize(att.Size)
		view.FileURL = attachments.URL(att.Path)
		if att.ThumbnailPath != "" {
			thumb := attachments.URL(att.ThumbnailPath)
			view.ThumbnailURL = &thumb
		}
	}

	return view
}

func messageViews(msgs []models.Message, viewerID int64) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, messageView(msg, viewerID))
	}
	return views
}

type ChatView struct {
	Type        string `json:"type"`
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	LastMessage string `json:"last_message"`
	UnreadCount int    `json:"unread_count"`
	Timestamp   string `json:"timestamp"`
	Bucket      string `json:"bucket"`
	IsOwner     bool   `json:"is_owner"`
}

func chatView(summary models.ConversationSummary) ChatView {
	view := ChatView{
		Type:        summary.Kind.String(),
		ID:          summary.ID,
		Name:        summary.Name,
		UnreadCount: summary.UnreadCount,
		Bucket:      string(summary.Bucket),
		IsOwner:     summary.IsOwner,
	}

	if last := summary.LastMessage; last != nil {
		view.LastMessage = last.Content
		if view.LastMessage == "" && last.Attachment != nil {
			view.LastMessage = "📎 " + last.Attachment.Name
		}
		view.Timestamp = conversations.Label(last.CreatedAt, summary.Bucket)
	}

	return view
}

type SearchHitView struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	SenderName string `json:"sender_name"`
	Timestamp  string `json:"timestamp"`
	Context    string `json:"context"`
	ChatName   string `json:"chat_name"`
	ChatID     int64  `json:"chat_id"`
	ChatType   string `json:"chat_type"`
}

var hitContexts = map[models.DestinationKind]string{
	models.Direct:      "Personal",
	models.GroupChat:   "Group",
	models.ChannelFeed: "Channel",
}

func searchHitView(hit messages.Hit) SearchHitView {
	return SearchHitView{
		ID:         hit.ID,
		Content:    hit.Content,
		SenderName: hit.SenderName,
		Timestamp:  hit.CreatedAt.UTC().Format("2006-01-02 15:04"),
		Context:    hitContexts[hit.Destination.Kind],
		ChatName:   hit.ChatName,
		ChatID:     hit.ChatID,
		ChatType:   hit.Destination.Kind.String(),
	}
}

type UserView struct {
	ID       int64  `json:"id"`
	UserName string `json:"username"`
	Type     string `json:"type"`
}

type GroupView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     int64     `json:"owner_id"`
	IsPublic    bool      `json:"is_public"`
	InviteLink  string    `json:"invite_link,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Type        string    `json:"type"`
}

// groupView shows the invite link to members only.
func groupView(group models.Group, showInvite bool) GroupView {
	view := GroupView{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		OwnerID:     group.OwnerID,
		IsPublic:    group.IsPublic,
		CreatedAt:   group.CreatedAt,
		Type:        models.GroupChat.String(),
	}
	if showInvite {
		view.InviteLink = group.InviteLink
	}
	return view
}

func channelView(channel models.Channel, showInvite bool) GroupView {
	view := groupView(models.Group(channel), showInvite)
	view.Type = models.ChannelFeed.String()
	return view
}

type MemberView struct {
	UserID   int64     `json:"user_id"`
	UserName string    `json:"username"`
	Role     string    `json:"role,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}
