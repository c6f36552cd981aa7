// Package conversations builds the chat list of a user out of direct chats,
// groups and channels.
package conversations

import (
	"context"
	"kiselgram-backend/internal/models"
	"sort"
	"time"
)

type Messages interface {
	DirectPeers(ctx context.Context, userID int64) ([]int64, error)
	Last(ctx context.Context, viewerID int64, conv models.Destination) (*models.Message, error)
	UnreadCount(ctx context.Context, userID int64, peerID int64) (int, error)
}

type Ledger interface {
	GroupsOf(ctx context.Context, userID int64) ([]models.Group, error)
	ChannelsOf(ctx context.Context, userID int64) ([]models.Channel, error)
}

type Users interface {
	Get(ctx context.Context, userID int64) (models.User, error)
}

type Resolver struct {
	messages Messages
	ledger   Ledger
	users    Users
	now      func() time.Time
}

func NewResolver(messages Messages, ledger Ledger, users Users) *Resolver {
	return &Resolver{messages: messages, ledger: ledger, users: users, now: time.Now}
}

// List returns every conversation userID can read, newest activity first.
// Conversations without messages come last in the order they were found.
// Unread counts are only tracked for direct chats.
func (r *Resolver) List(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	now := r.now().UTC()
	summaries := []models.ConversationSummary{}

	peers, err := r.messages.DirectPeers(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, peerID := range peers {
		peer, err := r.users.Get(ctx, peerID)
		if err != nil {
			return nil, err
		}

		summary, err := r.summarize(ctx, userID, models.ToUser(peerID), peer.UserName, now)
		if err != nil {
			return nil, err
		}

		summary.UnreadCount, err = r.messages.UnreadCount(ctx, userID, peerID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	groups, err := r.ledger.GroupsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		summary, err := r.summarize(ctx, userID, models.ToGroup(group.ID), group.Name, now)
		if err != nil {
			return nil, err
		}
		summary.IsOwner = group.OwnerID == userID
		summaries = append(summaries, summary)
	}

	channels, err := r.ledger.ChannelsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, channel := range channels {
		summary, err := r.summarize(ctx, userID, models.ToChannel(channel.ID), channel.Name, now)
		if err != nil {
			return nil, err
		}
		summary.IsOwner = channel.OwnerID == userID
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessage, summaries[j].LastMessage
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.ID > b.ID
	})

	return summaries, nil
}

func (r *Resolver) summarize(ctx context.Context, userID int64, conv models.Destination, name string, now time.Time) (models.ConversationSummary, error) {
	last, err := r.messages.Last(ctx, userID, conv)
	if err != nil {
		return models.ConversationSummary{}, err
	}

	summary := models.ConversationSummary{
		Kind:        conv.Kind,
		ID:          conv.ID,
		Name:        name,
		LastMessage: last,
	}
	if last != nil {
		summary.Bucket = Classify(last.CreatedAt, now)
	}
	return summary, nil
}

// Classify puts t into a bucket by the number of whole days elapsed until
// now. Timestamps from the future count as today.
func Classify(t time.Time, now time.Time) models.Bucket {
	days := int(now.Sub(t) / (24 * time.Hour))
	switch {
	case days <= 0:
		return models.Today
	case days == 1:
		return models.Yesterday
	case days < 7:
		return models.ThisWeek
	default:
		return models.Older
	}
}

// Label renders t for the chat list according to its bucket.
func Label(t time.Time, bucket models.Bucket) string {
	switch bucket {
	case models.Today:
		return t.Format("15:04")
	case models.Yesterday:
		return "Yesterday"
	case models.ThisWeek:
		return t.Weekday().String()
	case models.Older:
		return t.Format("02.01.2006")
	default:
		return ""
	}
}
