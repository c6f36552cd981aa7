// Package messages is the single writer of the messages table: appending,
// read state, incremental fetching, deletion and search.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"kiselgram-backend/internal/access"
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/database"
	"kiselgram-backend/internal/models"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// PageSize bounds how many rows one FetchSince call returns.
const PageSize = 500

type Checker interface {
	Check(ctx context.Context, userID int64, conv models.Destination, mode access.Mode) error
}

type Files interface {
	Store(r io.Reader, originalName string) (models.Attachment, error)
	Reclaim(att models.Attachment) error
}

type Store struct {
	db     *sqlx.DB
	sugar  *zap.SugaredLogger
	access Checker
	files  Files
}

func NewStore(db *sqlx.DB, sugar *zap.SugaredLogger, checker Checker, files Files) *Store {
	return &Store{db: db, sugar: sugar, access: checker, files: files}
}

type messageRow struct {
	ID            int64          `db:"id"`
	Content       string         `db:"content"`
	SenderID      int64          `db:"sender_id"`
	SenderName    string         `db:"sender_name"`
	ReceiverID    sql.NullInt64  `db:"receiver_id"`
	GroupID       sql.NullInt64  `db:"group_id"`
	ChannelID     sql.NullInt64  `db:"channel_id"`
	CreatedAt     time.Time      `db:"created_at"`
	IsRead        bool           `db:"is_read"`
	IsSynthetic   bool           `db:"is_synthetic"`
	FileType      sql.NullString `db:"file_type"`
	FileName      sql.NullString `db:"file_name"`
	FilePath      sql.NullString `db:"file_path"`
	FileSize      sql.NullInt64  `db:"file_size"`
	MimeType      sql.NullString `db:"mime_type"`
	ThumbnailPath sql.NullString `db:"thumbnail_path"`
}

func (r messageRow) message() models.Message {
	msg := models.Message{
		ID:          r.ID,
		Content:     r.Content,
		SenderID:    r.SenderID,
		SenderName:  r.SenderName,
		CreatedAt:   r.CreatedAt,
		IsRead:      r.IsRead,
		IsSynthetic: r.IsSynthetic,
	}

	switch {
	case r.GroupID.Valid:
		msg.Destination = models.ToGroup(r.GroupID.Int64)
	case r.ChannelID.Valid:
		msg.Destination = models.ToChannel(r.ChannelID.Int64)
	default:
		msg.Destination = models.ToUser(r.ReceiverID.Int64)
	}

	if r.FilePath.Valid {
		msg.Attachment = &models.Attachment{
			Type:          models.FileType(r.FileType.String),
			Name:          r.FileName.String,
			Path:          r.FilePath.String,
			Size:          r.FileSize.Int64,
			MimeType:      r.MimeType.String,
			ThumbnailPath: r.ThumbnailPath.String,
		}
	}

	return msg
}

func toMessages(rows []messageRow) []models.Message {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.message())
	}
	return msgs
}

const selectMessages = `
	SELECT m.id, m.content, m.sender_id, u.username AS sender_name, m.receiver_id, m.group_id, m.channel_id,
		m.created_at, m.is_read, m.is_synthetic, m.file_type, m.file_name, m.file_path, m.file_size,
		m.mime_type, m.thumbnail_path
	FROM messages m JOIN users u ON u.id = m.sender_id`

// destinationColumns returns the values of receiver_id, group_id and
// channel_id for dest. Exactly one of them is set.
func destinationColumns(dest models.Destination) (receiverID, groupID, channelID any) {
	switch dest.Kind {
	case models.GroupChat:
		return nil, dest.ID, nil
	case models.ChannelFeed:
		return nil, nil, dest.ID
	default:
		return dest.ID, nil, nil
	}
}

// Append stores a message from senderID after checking write access to dest.
// A message needs text or an attachment. If the insert fails the attachment
// files are reclaimed.
func (s *Store) Append(ctx context.Context, senderID int64, dest models.Destination, payload models.Payload) (models.Message, error) {
	payload.Content = strings.TrimSpace(payload.Content)
	if payload.Content == "" && payload.Attachment == nil {
		return models.Message{}, apperr.InvalidInput("Message cannot be empty")
	}

	if err := s.access.Check(ctx, senderID, dest, access.Write); err != nil {
		return models.Message{}, err
	}

	msg, err := s.insert(ctx, senderID, dest, payload)
	if err != nil {
		if payload.Attachment != nil {
			if reclaimErr := s.files.Reclaim(*payload.Attachment); reclaimErr != nil {
				s.sugar.Error(reclaimErr)
			}
		}
		return models.Message{}, err
	}

	return msg, nil
}

func (s *Store) insert(ctx context.Context, senderID int64, dest models.Destination, payload models.Payload) (models.Message, error) {
	id, err := insertRow(ctx, s.db, senderID, dest, payload)
	if err != nil {
		return models.Message{}, apperr.Internal("storing message", err)
	}
	return s.Get(ctx, id)
}

// insertRow writes one message row through ext, the database or an open
// transaction, and returns its id.
func insertRow(ctx context.Context, ext sqlx.ExecerContext, senderID int64, dest models.Destination, payload models.Payload) (int64, error) {
	receiverID, groupID, channelID := destinationColumns(dest)

	var fileType, fileName, filePath, fileSize, mimeType, thumbnailPath any
	if att := payload.Attachment; att != nil {
		fileType, fileName, filePath, fileSize, mimeType = string(att.Type), att.Name, att.Path, att.Size, att.MimeType
		if att.ThumbnailPath != "" {
			thumbnailPath = att.ThumbnailPath
		}
	}

	res, err := ext.ExecContext(ctx, `
		INSERT INTO messages (content, sender_id, receiver_id, group_id, channel_id, created_at, is_read, is_synthetic,
			file_type, file_name, file_path, file_size, mime_type, thumbnail_path)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		payload.Content, senderID, receiverID, groupID, channelID, time.Now().UTC(), payload.Synthetic,
		fileType, fileName, filePath, fileSize, mimeType, thumbnailPath)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// Upload stores the file of an upload and appends it as a message. Access is
// checked before anything is written to disk.
func (s *Store) Upload(ctx context.Context, senderID int64, dest models.Destination, r io.Reader, fileName string, caption string) (models.Message, error) {
	if err := s.access.Check(ctx, senderID, dest, access.Write); err != nil {
		return models.Message{}, err
	}

	att, err := s.files.Store(r, fileName)
	if err != nil {
		return models.Message{}, err
	}

	return s.Append(ctx, senderID, dest, models.Payload{Content: caption, Attachment: &att})
}

func (s *Store) Get(ctx context.Context, messageID int64) (models.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, selectMessages+" WHERE m.id = ?", messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, apperr.NotFound("Message not found")
	} else if err != nil {
		return models.Message{}, apperr.Internal("fetching message", err)
	}
	return row.message(), nil
}

// MarkRead marks every unread direct message from peerID to readerID as
// read and returns how many changed.
func (s *Store) MarkRead(ctx context.Context, readerID int64, peerID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET is_read = 1 WHERE receiver_id = ? AND sender_id = ? AND is_read = 0", readerID, peerID)
	if err != nil {
		return 0, apperr.Internal("marking messages read", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Internal("marking messages read", err)
	}
	return changed, nil
}

// Answer marks msg read and stores the reply of responderID to its sender in
// one transaction, so a failed reply leaves msg unread. It reports false
// without writing anything when msg was already read.
func (s *Store) Answer(ctx context.Context, msg models.Message, responderID int64, payload models.Payload) (models.Message, bool, error) {
	payload.Content = strings.TrimSpace(payload.Content)
	if payload.Content == "" {
		return models.Message{}, false, apperr.InvalidInput("Message cannot be empty")
	}

	dest := models.ToUser(msg.SenderID)
	if err := s.access.Check(ctx, responderID, dest, access.Write); err != nil {
		return models.Message{}, false, err
	}

	var replyID int64
	claimed := false
	err := database.Transaction(s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE messages SET is_read = 1 WHERE id = ? AND receiver_id = ? AND is_read = 0", msg.ID, responderID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil || affected == 0 {
			return err
		}

		claimed = true
		replyID, err = insertRow(ctx, tx, responderID, dest, payload)
		return err
	})
	if err != nil {
		return models.Message{}, false, apperr.Internal("answering message", err)
	}
	if !claimed {
		return models.Message{}, false, nil
	}

	reply, err := s.Get(ctx, replyID)
	if err != nil {
		return models.Message{}, false, err
	}
	return reply, true, nil
}

// AttachmentAt finds the attachment stored at rel, either the file itself or
// its thumbnail, and checks that viewerID may read the conversation it was
// sent to.
func (s *Store) AttachmentAt(ctx context.Context, viewerID int64, rel string) (models.Attachment, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, selectMessages+" WHERE m.file_path = ? OR m.thumbnail_path = ? LIMIT 1", rel, rel)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Attachment{}, apperr.NotFound("File not found")
	} else if err != nil {
		return models.Attachment{}, apperr.Internal("looking up attachment", err)
	}

	msg := row.message()
	if msg.Destination.Kind == models.Direct {
		if viewerID != msg.SenderID && viewerID != msg.Destination.ID {
			return models.Attachment{}, access.ErrUnauthorized
		}
	} else if err := s.access.Check(ctx, viewerID, msg.Destination, access.Read); err != nil {
		return models.Attachment{}, err
	}

	return *msg.Attachment, nil
}

// UnreadFor returns the unread direct messages addressed to userID, oldest
// first.
func (s *Store) UnreadFor(ctx context.Context, userID int64) ([]models.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, selectMessages+" WHERE m.receiver_id = ? AND m.is_read = 0 ORDER BY m.id", userID)
	if err != nil {
		return nil, apperr.Internal("fetching unread messages", err)
	}
	return toMessages(rows), nil
}

// UnreadCount counts the unread direct messages from peerID to userID.
func (s *Store) UnreadCount(ctx context.Context, userID int64, peerID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND sender_id = ? AND is_read = 0", userID, peerID)
	if err != nil {
		return 0, apperr.Internal("counting unread messages", err)
	}
	return count, nil
}

func conversationFilter(viewerID int64, conv models.Destination) (string, []any) {
	switch conv.Kind {
	case models.GroupChat:
		return "m.group_id = ?", []any{conv.ID}
	case models.ChannelFeed:
		return "m.channel_id = ?", []any{conv.ID}
	default:
		return "((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))",
			[]any{viewerID, conv.ID, conv.ID, viewerID}
	}
}

// FetchSince returns the messages of a conversation with an id above cursor
// in ascending id order, at most PageSize of them.
func (s *Store) FetchSince(ctx context.Context, viewerID int64, conv models.Destination, cursor int64) ([]models.Message, error) {
	if err := s.access.Check(ctx, viewerID, conv, access.Read); err != nil {
		return nil, err
	}

	filter, args := conversationFilter(viewerID, conv)
	args = append(args, cursor, PageSize)

	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, selectMessages+" WHERE "+filter+" AND m.id > ? ORDER BY m.id ASC LIMIT ?", args...)
	if err != nil {
		return nil, apperr.Internal("fetching messages", err)
	}
	return toMessages(rows), nil
}

// Last returns the newest message of a conversation, or nil when it has none.
// It does not check access.
func (s *Store) Last(ctx context.Context, viewerID int64, conv models.Destination) (*models.Message, error) {
	filter, args := conversationFilter(viewerID, conv)

	var row messageRow
	err := s.db.GetContext(ctx, &row, selectMessages+" WHERE "+filter+" ORDER BY m.id DESC LIMIT 1", args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, apperr.Internal("fetching last message", err)
	}

	msg := row.message()
	return &msg, nil
}

// DirectPeers returns everyone userID has exchanged direct messages with,
// excluding userID.
func (s *Store) DirectPeers(ctx context.Context, userID int64) ([]int64, error) {
	peers := []int64{}
	err := s.db.SelectContext(ctx, &peers, `
		SELECT peer FROM (
			SELECT receiver_id AS peer, MAX(id) AS last_id FROM messages WHERE sender_id = ? AND receiver_id IS NOT NULL GROUP BY receiver_id
			UNION ALL
			SELECT sender_id AS peer, MAX(id) AS last_id FROM messages WHERE receiver_id = ? GROUP BY sender_id
		) p
		WHERE peer != ?
		GROUP BY peer
		ORDER BY MAX(last_id) DESC`, userID, userID, userID)
	if err != nil {
		return nil, apperr.Internal("listing direct peers", err)
	}
	return peers, nil
}

// Delete removes a message sent by requesterID and reclaims its files.
// Deleting a message that is already gone reports NotFound.
func (s *Store) Delete(ctx context.Context, messageID int64, requesterID int64) error {
	var removed models.Message
	err := database.Transaction(s.db, func(tx *sqlx.Tx) error {
		var row messageRow
		err := tx.GetContext(ctx, &row, selectMessages+" WHERE m.id = ?", messageID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("Message not found")
		} else if err != nil {
			return apperr.Internal("fetching message", err)
		}

		if row.SenderID != requesterID {
			return apperr.Unauthorized("You can only delete your own messages")
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID)
		if err != nil {
			return apperr.Internal("deleting message", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return apperr.NotFound("Message not found")
		}

		removed = row.message()
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Internal("committing message delete", err)
	}

	s.sugar.Infof("User ID [%d] deleted message ID [%d]", requesterID, messageID)

	if removed.Attachment != nil {
		if err := s.files.Reclaim(*removed.Attachment); err != nil {
			s.sugar.Error(err)
		}
	}

	return nil
}
