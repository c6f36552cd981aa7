package messages

import (
	"context"
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/database"
	"kiselgram-backend/internal/models"
	"kiselgram-backend/internal/validator"
	"sort"
)

// SearchLimit caps the hits per conversation kind and the merged result.
const SearchLimit = 50

type Scope string

const (
	ScopeAll      Scope = "all"
	ScopePersonal Scope = "personal"
	ScopeGroup    Scope = "group"
	ScopeChannel  Scope = "channel"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopePersonal, ScopeGroup, ScopeChannel:
		return Scope(s), nil
	default:
		return "", apperr.InvalidInput("Unknown chat type")
	}
}

func (s Scope) includes(kind Scope) bool {
	return s == ScopeAll || s == kind
}

type Hit struct {
	models.Message
	ChatName string
	ChatID   int64
}

type hitRow struct {
	messageRow
	ChatName string `db:"chat_name"`
}

// Search finds messages containing query in the conversations viewerID can
// read. chatID, when not zero, narrows each searched kind to one
// conversation: the peer for personal chats, otherwise the group or channel.
func (s *Store) Search(ctx context.Context, viewerID int64, query string, scope Scope, chatID int64) ([]Hit, error) {
	if err := validator.Query(query); err != nil {
		return []Hit{}, nil
	}
	pattern := database.LikePattern(query)

	var rows []hitRow

	if scope.includes(ScopePersonal) {
		q := selectHits("p.username") + `
			JOIN users p ON p.id = CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END
			WHERE m.receiver_id IS NOT NULL AND (m.sender_id = ? OR m.receiver_id = ?)
				AND LOWER(m.content) LIKE LOWER(?) ESCAPE '!'`
		args := []any{viewerID, viewerID, viewerID, pattern}
		if chatID != 0 {
			q += " AND p.id = ?"
			args = append(args, chatID)
		}
		if err := s.selectHits(ctx, &rows, q, args); err != nil {
			return nil, err
		}
	}

	if scope.includes(ScopeGroup) {
		q := selectHits("g.name") + `
			JOIN chat_groups g ON g.id = m.group_id
			JOIN group_members gm ON gm.group_id = m.group_id AND gm.user_id = ?
			WHERE LOWER(m.content) LIKE LOWER(?) ESCAPE '!'`
		args := []any{viewerID, pattern}
		if chatID != 0 {
			q += " AND m.group_id = ?"
			args = append(args, chatID)
		}
		if err := s.selectHits(ctx, &rows, q, args); err != nil {
			return nil, err
		}
	}

	if scope.includes(ScopeChannel) {
		q := selectHits("c.name") + `
			JOIN channels c ON c.id = m.channel_id
			JOIN channel_subscribers cs ON cs.channel_id = m.channel_id AND cs.user_id = ?
			WHERE LOWER(m.content) LIKE LOWER(?) ESCAPE '!'`
		args := []any{viewerID, pattern}
		if chatID != 0 {
			q += " AND m.channel_id = ?"
			args = append(args, chatID)
		}
		if err := s.selectHits(ctx, &rows, q, args); err != nil {
			return nil, err
		}
	}

	seen := make(map[int64]bool, len(rows))
	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		if seen[row.ID] {
			continue
		}
		seen[row.ID] = true

		msg := row.message()
		convID := msg.Destination.ID
		if msg.Destination.Kind == models.Direct && convID == viewerID {
			convID = msg.SenderID
		}
		hits = append(hits, Hit{Message: msg, ChatName: row.ChatName, ChatID: convID})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].ID > hits[j].ID })
	if len(hits) > SearchLimit {
		hits = hits[:SearchLimit]
	}

	return hits, nil
}

func selectHits(chatNameColumn string) string {
	return `
	SELECT m.id, m.content, m.sender_id, u.username AS sender_name, m.receiver_id, m.group_id, m.channel_id,
		m.created_at, m.is_read, m.is_synthetic, m.file_type, m.file_name, m.file_path, m.file_size,
		m.mime_type, m.thumbnail_path, ` + chatNameColumn + ` AS chat_name
	FROM messages m JOIN users u ON u.id = m.sender_id`
}

func (s *Store) selectHits(ctx context.Context, rows *[]hitRow, query string, args []any) error {
	var found []hitRow
	err := s.db.SelectContext(ctx, &found, query+" ORDER BY m.id DESC LIMIT ?", append(args, SearchLimit)...)
	if err != nil {
		return apperr.Internal("searching messages", err)
	}
	*rows = append(*rows, found...)
	return nil
}
