// Package membership keeps group memberships and channel subscriptions.
package membership

import (
	"context"
	"database/sql"
	"errors"
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/database"
	"kiselgram-backend/internal/models"
	"kiselgram-backend/internal/validator"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Reclaimer removes the files behind an attachment.
type Reclaimer interface {
	Reclaim(att models.Attachment) error
}

type Ledger struct {
	db    *sqlx.DB
	sugar *zap.SugaredLogger
	files Reclaimer
}

func NewLedger(db *sqlx.DB, sugar *zap.SugaredLogger, files Reclaimer) *Ledger {
	return &Ledger{db: db, sugar: sugar, files: files}
}

type NewConversation struct {
	Name        string
	Description string
	IsPublic    bool
}

func newInviteLink() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

const groupColumns = "id, name, description, owner_id, is_public, invite_link, created_at"
const channelColumns = groupColumns

func (l *Ledger) CreateGroup(ctx context.Context, ownerID int64, in NewConversation) (models.Group, error) {
	if err := validator.Title(in.Name); err != nil {
		return models.Group{}, apperr.InvalidInput(err.Error())
	}

	group := models.Group{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		OwnerID:     ownerID,
		IsPublic:    in.IsPublic,
		InviteLink:  newInviteLink(),
		CreatedAt:   time.Now().UTC(),
	}

	err := database.Transaction(l.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO chat_groups (name, description, owner_id, is_public, invite_link, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			group.Name, group.Description, group.OwnerID, group.IsPublic, group.InviteLink, group.CreatedAt)
		if err != nil {
			return err
		}
		if group.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
			group.ID, ownerID, models.RoleOwner, group.CreatedAt)
		return err
	})
	if err != nil {
		return models.Group{}, apperr.Internal("creating group", err)
	}

	l.sugar.Infof("User ID [%d] created group ID [%d]", ownerID, group.ID)
	return group, nil
}

func (l *Ledger) CreateChannel(ctx context.Context, ownerID int64, in NewConversation) (models.Channel, error) {
	if err := validator.Title(in.Name); err != nil {
		return models.Channel{}, apperr.InvalidInput(err.Error())
	}

	channel := models.Channel{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		OwnerID:     ownerID,
		IsPublic:    in.IsPublic,
		InviteLink:  newInviteLink(),
		CreatedAt:   time.Now().UTC(),
	}

	err := database.Transaction(l.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO channels (name, description, owner_id, is_public, invite_link, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			channel.Name, channel.Description, channel.OwnerID, channel.IsPublic, channel.InviteLink, channel.CreatedAt)
		if err != nil {
			return err
		}
		if channel.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		// the owner reads their own channel like everyone else
		_, err = tx.ExecContext(ctx, "INSERT INTO channel_subscribers (channel_id, user_id, subscribed_at) VALUES (?, ?, ?)",
			channel.ID, ownerID, channel.CreatedAt)
		return err
	})
	if err != nil {
		return models.Channel{}, apperr.Internal("creating channel", err)
	}

	l.sugar.Infof("User ID [%d] created channel ID [%d]", ownerID, channel.ID)
	return channel, nil
}

func (l *Ledger) Group(ctx context.Context, groupID int64) (models.Group, error) {
	var group models.Group
	err := l.db.GetContext(ctx, &group, "SELECT "+groupColumns+" FROM chat_groups WHERE id = ?", groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return group, apperr.NotFound("Group not found")
	} else if err != nil {
		return group, apperr.Internal("fetching group", err)
	}
	return group, nil
}

func (l *Ledger) Channel(ctx context.Context, channelID int64) (models.Channel, error) {
	var channel models.Channel
	err := l.db.GetContext(ctx, &channel, "SELECT "+channelColumns+" FROM channels WHERE id = ?", channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return channel, apperr.NotFound("Channel not found")
	} else if err != nil {
		return channel, apperr.Internal("fetching channel", err)
	}
	return channel, nil
}

func (l *Ledger) IsMember(ctx context.Context, userID int64, groupID int64) (bool, error) {
	var isMember bool
	err := l.db.GetContext(ctx, &isMember, "SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?)", groupID, userID)
	if err != nil {
		return false, apperr.Internal("checking membership", err)
	}
	return isMember, nil
}

func (l *Ledger) IsSubscriber(ctx context.Context, userID int64, channelID int64) (bool, error) {
	var isSubscriber bool
	err := l.db.GetContext(ctx, &isSubscriber, "SELECT EXISTS(SELECT 1 FROM channel_subscribers WHERE channel_id = ? AND user_id = ?)", channelID, userID)
	if err != nil {
		return false, apperr.Internal("checking subscription", err)
	}
	return isSubscriber, nil
}

func (l *Ledger) IsChannelOwner(ctx context.Context, userID int64, channelID int64) (bool, error) {
	var ownsChannel bool
	err := l.db.GetContext(ctx, &ownsChannel, "SELECT EXISTS(SELECT 1 FROM channels WHERE id = ? AND owner_id = ?)", channelID, userID)
	if err != nil {
		return false, apperr.Internal("checking channel owner", err)
	}
	return ownsChannel, nil
}

// JoinGroup adds userID to the group with the given role. Joining twice is
// not an error and keeps the first membership.
func (l *Ledger) JoinGroup(ctx context.Context, userID int64, groupID int64, role models.Role) error {
	_, err := l.db.ExecContext(ctx, "INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		groupID, userID, role, time.Now().UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			l.sugar.Debugf("User ID [%d] is already a member of group ID [%d]", userID, groupID)
			return nil
		}
		return apperr.Internal("joining group", err)
	}

	l.sugar.Infof("User ID [%d] joined group ID [%d] as %s", userID, groupID, role)
	return nil
}

func (l *Ledger) Subscribe(ctx context.Context, userID int64, channelID int64) error {
	_, err := l.db.ExecContext(ctx, "INSERT INTO channel_subscribers (channel_id, user_id, subscribed_at) VALUES (?, ?, ?)",
		channelID, userID, time.Now().UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			l.sugar.Debugf("User ID [%d] is already subscribed to channel ID [%d]", userID, channelID)
			return nil
		}
		return apperr.Internal("subscribing to channel", err)
	}

	l.sugar.Infof("User ID [%d] subscribed to channel ID [%d]", userID, channelID)
	return nil
}

func (l *Ledger) JoinGroupByInvite(ctx context.Context, userID int64, invite string) (models.Group, error) {
	var group models.Group
	err := l.db.GetContext(ctx, &group, "SELECT "+groupColumns+" FROM chat_groups WHERE invite_link = ?", invite)
	if errors.Is(err, sql.ErrNoRows) {
		return group, apperr.NotFound("Invalid invite link")
	} else if err != nil {
		return group, apperr.Internal("resolving invite", err)
	}

	return group, l.JoinGroup(ctx, userID, group.ID, models.RoleMember)
}

func (l *Ledger) JoinChannelByInvite(ctx context.Context, userID int64, invite string) (models.Channel, error) {
	var channel models.Channel
	err := l.db.GetContext(ctx, &channel, "SELECT "+channelColumns+" FROM channels WHERE invite_link = ?", invite)
	if errors.Is(err, sql.ErrNoRows) {
		return channel, apperr.NotFound("Invalid invite link")
	} else if err != nil {
		return channel, apperr.Internal("resolving invite", err)
	}

	return channel, l.Subscribe(ctx, userID, channel.ID)
}

// LeaveGroup removes userID from the group. When the owner leaves, the group
// is deleted along with its messages and memberships in one transaction, and
// the files of the deleted messages are reclaimed after commit.
func (l *Ledger) LeaveGroup(ctx context.Context, userID int64, groupID int64) (bool, error) {
	group, err := l.Group(ctx, groupID)
	if err != nil {
		return false, err
	}

	if group.OwnerID != userID {
		res, err := l.db.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID)
		if err != nil {
			return false, apperr.Internal("leaving group", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return false, apperr.NotFound("You are not a member of this group")
		}
		l.sugar.Infof("User ID [%d] left group ID [%d]", userID, groupID)
		return false, nil
	}

	var orphaned []attachmentRow
	err = database.Transaction(l.db, func(tx *sqlx.Tx) error {
		err := tx.SelectContext(ctx, &orphaned, "SELECT file_type, file_name, file_path, file_size, mime_type, thumbnail_path FROM messages WHERE group_id = ? AND file_path IS NOT NULL", groupID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE group_id = ?", groupID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ?", groupID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM chat_groups WHERE id = ?", groupID)
		return err
	})
	if err != nil {
		return false, apperr.Internal("deleting group", err)
	}

	l.sugar.Infof("Owner ID [%d] left group ID [%d], group deleted", userID, groupID)

	for _, row := range orphaned {
		if l.files == nil {
			break
		}
		if err := l.files.Reclaim(row.attachment()); err != nil {
			l.sugar.Error(err)
		}
	}

	return true, nil
}

// Unsubscribe removes userID from the channel. Owners cannot leave their own
// channel since channels are never deleted.
func (l *Ledger) Unsubscribe(ctx context.Context, userID int64, channelID int64) error {
	channel, err := l.Channel(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.OwnerID == userID {
		return apperr.InvalidInput("Channel owner cannot leave the channel")
	}

	res, err := l.db.ExecContext(ctx, "DELETE FROM channel_subscribers WHERE channel_id = ? AND user_id = ?", channelID, userID)
	if err != nil {
		return apperr.Internal("leaving channel", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperr.NotFound("You are not subscribed to this channel")
	}

	l.sugar.Infof("User ID [%d] left channel ID [%d]", userID, channelID)
	return nil
}

func (l *Ledger) GroupMembers(ctx context.Context, groupID int64) ([]models.GroupMember, error) {
	members := []models.GroupMember{}
	err := l.db.SelectContext(ctx, &members, `
		SELECT m.group_id, m.user_id, u.username, m.role, m.joined_at
		FROM group_members m JOIN users u ON u.id = m.user_id
		WHERE m.group_id = ? ORDER BY m.joined_at, m.user_id`, groupID)
	if err != nil {
		return nil, apperr.Internal("listing group members", err)
	}
	return members, nil
}

func (l *Ledger) ChannelSubscribers(ctx context.Context, channelID int64) ([]models.ChannelSubscriber, error) {
	subscribers := []models.ChannelSubscriber{}
	err := l.db.SelectContext(ctx, &subscribers, `
		SELECT s.channel_id, s.user_id, u.username, s.subscribed_at
		FROM channel_subscribers s JOIN users u ON u.id = s.user_id
		WHERE s.channel_id = ? ORDER BY s.subscribed_at, s.user_id`, channelID)
	if err != nil {
		return nil, apperr.Internal("listing channel subscribers", err)
	}
	return subscribers, nil
}

// GroupsOf returns the groups userID belongs to in the order they were joined.
func (l *Ledger) GroupsOf(ctx context.Context, userID int64) ([]models.Group, error) {
	groups := []models.Group{}
	err := l.db.SelectContext(ctx, &groups, `
		SELECT g.id, g.name, g.description, g.owner_id, g.is_public, g.invite_link, g.created_at
		FROM chat_groups g JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ? ORDER BY m.joined_at, g.id`, userID)
	if err != nil {
		return nil, apperr.Internal("listing groups", err)
	}
	return groups, nil
}

func (l *Ledger) ChannelsOf(ctx context.Context, userID int64) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := l.db.SelectContext(ctx, &channels, `
		SELECT c.id, c.name, c.description, c.owner_id, c.is_public, c.invite_link, c.created_at
		FROM channels c JOIN channel_subscribers s ON s.channel_id = c.id
		WHERE s.user_id = ? ORDER BY s.subscribed_at, c.id`, userID)
	if err != nil {
		return nil, apperr.Internal("listing channels", err)
	}
	return channels, nil
}

type GroupHit struct {
	models.Group
	MemberCount int  `db:"member_count"`
	IsMember    bool `db:"is_member"`
}

type ChannelHit struct {
	models.Channel
	SubscriberCount int  `db:"subscriber_count"`
	IsSubscribed    bool `db:"is_subscribed"`
}

// SearchGroups finds groups by name that are public or that userID is in.
func (l *Ledger) SearchGroups(ctx context.Context, userID int64, query string, limit int) ([]GroupHit, error) {
	hits := []GroupHit{}
	err := l.db.SelectContext(ctx, &hits, `
		SELECT g.id, g.name, g.description, g.owner_id, g.is_public, g.invite_link, g.created_at,
			(SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id) AS member_count,
			EXISTS(SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = ?) AS is_member
		FROM chat_groups g
		WHERE LOWER(g.name) LIKE LOWER(?) ESCAPE '!'
			AND (g.is_public = 1 OR EXISTS(SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = ?))
		ORDER BY g.name, g.id LIMIT ?`, userID, database.LikePattern(query), userID, limit)
	if err != nil {
		return nil, apperr.Internal("searching groups", err)
	}
	return hits, nil
}

func (l *Ledger) SearchChannels(ctx context.Context, userID int64, query string, limit int) ([]ChannelHit, error) {
	hits := []ChannelHit{}
	err := l.db.SelectContext(ctx, &hits, `
		SELECT c.id, c.name, c.description, c.owner_id, c.is_public, c.invite_link, c.created_at,
			(SELECT COUNT(*) FROM channel_subscribers n WHERE n.channel_id = c.id) AS subscriber_count,
			EXISTS(SELECT 1 FROM channel_subscribers s WHERE s.channel_id = c.id AND s.user_id = ?) AS is_subscribed
		FROM channels c
		WHERE LOWER(c.name) LIKE LOWER(?) ESCAPE '!'
			AND (c.is_public = 1 OR EXISTS(SELECT 1 FROM channel_subscribers s WHERE s.channel_id = c.id AND s.user_id = ?))
		ORDER BY c.name, c.id LIMIT ?`, userID, database.LikePattern(query), userID, limit)
	if err != nil {
		return nil, apperr.Internal("searching channels", err)
	}
	return hits, nil
}

type attachmentRow struct {
	FileType      sql.NullString `db:"file_type"`
	FileName      sql.NullString `db:"file_name"`
	FilePath      sql.NullString `db:"file_path"`
	FileSize      sql.NullInt64  `db:"file_size"`
	MimeType      sql.NullString `db:"mime_type"`
	ThumbnailPath sql.NullString `db:"thumbnail_path"`
}

func (r attachmentRow) attachment() models.Attachment {
	return models.Attachment{
		Type:          models.FileType(r.FileType.String),
		Name:          r.FileName.String,
		Path:          r.FilePath.String,
		Size:          r.FileSize.Int64,
		MimeType:      r.MimeType.String,
		ThumbnailPath: r.ThumbnailPath.String,
	}
}
