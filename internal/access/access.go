// Package access decides who may read from and write to a conversation.
package access

import (
	"context"
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/models"
)

type Ledger interface {
	IsMember(ctx context.Context, userID int64, groupID int64) (bool, error)
	IsSubscriber(ctx context.Context, userID int64, channelID int64) (bool, error)
	IsChannelOwner(ctx context.Context, userID int64, channelID int64) (bool, error)
}

type Users interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

type Mode int

const (
	Read Mode = iota
	Write
)

// ErrUnauthorized is returned for every refused access, whatever the rule
// that refused it.
var ErrUnauthorized = apperr.Unauthorized("Access denied")

type Engine struct {
	ledger Ledger
	users  Users
}

func NewEngine(ledger Ledger, users Users) *Engine {
	return &Engine{ledger: ledger, users: users}
}

// Allowed reports whether userID may use the conversation in the given mode.
// A direct conversation is open to both parties, which only requires the
// peer to exist.
func (e *Engine) Allowed(ctx context.Context, userID int64, conv models.Destination, mode Mode) (bool, error) {
	switch conv.Kind {
	case models.Direct:
		return e.users.Exists(ctx, conv.ID)
	case models.GroupChat:
		return e.ledger.IsMember(ctx, userID, conv.ID)
	case models.ChannelFeed:
		if mode == Write {
			return e.ledger.IsChannelOwner(ctx, userID, conv.ID)
		}
		return e.ledger.IsSubscriber(ctx, userID, conv.ID)
	default:
		return false, apperr.InvalidInput("Unknown conversation type")
	}
}

// Check is Allowed folded into an error. A missing direct peer is reported
// as NotFound, every other refusal as ErrUnauthorized.
func (e *Engine) Check(ctx context.Context, userID int64, conv models.Destination, mode Mode) error {
	ok, err := e.Allowed(ctx, userID, conv, mode)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if conv.Kind == models.Direct {
		return apperr.NotFound("User not found")
	}
	return ErrUnauthorized
}
