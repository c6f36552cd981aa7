package models

import "time"

type User struct {
	ID               int64     `db:"id" json:"id"`
	UserName         string    `db:"username" json:"username"`
	PasswordHash     []byte    `db:"password_hash" json:"-"`
	TelegramChatID   *int64    `db:"telegram_chat_id" json:"telegramChatID,omitempty"`
	TelegramUserName *string   `db:"telegram_username" json:"telegramUsername,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// Bot binds a user identity to a responder.
type Bot struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"userID"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type Group struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	OwnerID     int64     `db:"owner_id" json:"ownerID"`
	IsPublic    bool      `db:"is_public" json:"isPublic"`
	InviteLink  string    `db:"invite_link" json:"inviteLink"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type Channel struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	OwnerID     int64     `db:"owner_id" json:"ownerID"`
	IsPublic    bool      `db:"is_public" json:"isPublic"`
	InviteLink  string    `db:"invite_link" json:"inviteLink"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type GroupMember struct {
	GroupID  int64     `db:"group_id" json:"groupID"`
	UserID   int64     `db:"user_id" json:"userID"`
	UserName string    `db:"username" json:"username"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

type ChannelSubscriber struct {
	ChannelID    int64     `db:"channel_id" json:"channelID"`
	UserID       int64     `db:"user_id" json:"userID"`
	UserName     string    `db:"username" json:"username"`
	SubscribedAt time.Time `db:"subscribed_at" json:"subscribedAt"`
}

type DestinationKind int

const (
	Direct DestinationKind = iota
	GroupChat
	ChannelFeed
)

func (k DestinationKind) String() string {
	switch k {
	case Direct:
		return "personal"
	case GroupChat:
		return "group"
	case ChannelFeed:
		return "channel"
	default:
		return "unknown"
	}
}

// Destination is where a message is addressed. ID is the receiving user for
// Direct, otherwise the group or channel id.
type Destination struct {
	Kind DestinationKind
	ID   int64
}

func ToUser(userID int64) Destination { return Destination{Kind: Direct, ID: userID} }
func ToGroup(groupID int64) Destination { return Destination{Kind: GroupChat, ID: groupID} }
func ToChannel(channelID int64) Destination { return Destination{Kind: ChannelFeed, ID: channelID} }

type FileType string

const (
	FileImage    FileType = "image"
	FileVideo    FileType = "video"
	FileAudio    FileType = "audio"
	FileDocument FileType = "document"
	FileArchive  FileType = "archive"
)

// Attachment describes a stored upload. Paths are relative to the upload root.
type Attachment struct {
	Type          FileType `json:"fileType"`
	Name          string   `json:"fileName"`
	Path          string   `json:"filePath"`
	Size          int64    `json:"fileSize"`
	MimeType      string   `json:"mimeType"`
	ThumbnailPath string   `json:"thumbnailPath,omitempty"`
}

type Message struct {
	ID          int64       `json:"id"`
	Content     string      `json:"content"`
	SenderID    int64       `json:"senderID"`
	SenderName  string      `json:"senderName"`
	Destination Destination `json:"-"`
	CreatedAt   time.Time   `json:"createdAt"`
	IsRead      bool        `json:"isRead"`
	IsSynthetic bool        `json:"isSynthetic"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

// Payload is the body of a message about to be appended. Synthetic marks
// messages produced by bots.
type Payload struct {
	Content    string
	Attachment *Attachment
	Synthetic  bool
}

type Bucket string

const (
	Today     Bucket = "today"
	Yesterday Bucket = "yesterday"
	ThisWeek  Bucket = "this_week"
	Older     Bucket = "older"
	NoBucket  Bucket = ""
)

type ConversationSummary struct {
	Kind        DestinationKind
	ID          int64
	Name        string
	LastMessage *Message
	UnreadCount int
	Bucket      Bucket
	IsOwner     bool
}

type ConfigFile struct {
	Address           string `validate:"required"`
	Port              string `validate:"required,numeric"`
	TlsCert           string `validate:"required_with=TlsKey"`
	TlsKey            string `validate:"required_with=TlsCert"`
	PrintHttpRequests bool
	LogToFile         bool
	LogLevel          string `validate:"oneof=debug info warn error"`
	JwtSecret         string `validate:"required,min=16"`
	SelfContained     bool
	SqlitePath        string `validate:"required_if=SelfContained true"`
	DbUser            string `validate:"required_if=SelfContained false"`
	DbPassword        string
	DbAddress         string `validate:"required_if=SelfContained false"`
	DbPort            string `validate:"required_if=SelfContained false"`
	DbDatabase        string `validate:"required_if=SelfContained false"`
	RedisAddress      string `validate:"required_if=SelfContained false"`
	RedisPassword     string
	RedisDB           int           `validate:"min=0"`
	UploadRoot        string        `validate:"required"`
	MaxUploadBytes    int64         `validate:"gt=0"`
	ThumbnailSize     int           `validate:"gt=0"`
	BotInterval       time.Duration `validate:"gt=0"`
	BotBackoff        time.Duration `validate:"gt=0"`
}
