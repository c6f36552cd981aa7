// Package identity stores users and the bot identities bound to them.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"kiselgram-backend/internal/apperr"
	"kiselgram-backend/internal/database"
	"kiselgram-backend/internal/models"
	"kiselgram-backend/internal/validator"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Outcome int

const (
	Created Outcome = iota
	Authenticated
	InvalidCredential
	HandleInUse
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Authenticated:
		return "authenticated"
	case InvalidCredential:
		return "invalid_credential"
	case HandleInUse:
		return "handle_in_use"
	default:
		return "unknown"
	}
}

func (o Outcome) Rejected() bool {
	return o == InvalidCredential || o == HandleInUse
}

const bcryptCost = 12

type Store struct {
	db    *sqlx.DB
	sugar *zap.SugaredLogger
	cost  int
}

func NewStore(db *sqlx.DB, sugar *zap.SugaredLogger) *Store {
	return &Store{db: db, sugar: sugar, cost: bcryptCost}
}

// WithCost returns a copy of the store hashing with the given bcrypt cost.
func (s *Store) WithCost(cost int) *Store {
	c := *s
	c.cost = cost
	return &c
}

const userColumns = "id, username, password_hash, telegram_chat_id, telegram_username, created_at"

// RegisterOrAuthenticate logs in an existing user or registers a new one with
// the given handle. The unique index on username decides concurrent
// registrations of the same handle.
func (s *Store) RegisterOrAuthenticate(ctx context.Context, handle string, secret string) (int64, Outcome, error) {
	handle = strings.TrimSpace(handle)
	if err := validator.UserName(handle); err != nil {
		return 0, InvalidCredential, apperr.InvalidInput(err.Error())
	}
	if err := validator.Password(secret); err != nil {
		return 0, InvalidCredential, apperr.InvalidInput(err.Error())
	}

	var existing models.User
	err := s.db.GetContext(ctx, &existing, "SELECT "+userColumns+" FROM users WHERE username = ?", handle)
	if err == nil {
		if err := bcrypt.CompareHashAndPassword(existing.PasswordHash, []byte(secret)); err != nil {
			s.sugar.Debugf("Wrong password for user ID [%d]", existing.ID)
			return existing.ID, InvalidCredential, nil
		}
		return existing.ID, Authenticated, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return 0, InvalidCredential, apperr.Internal("looking up user", err)
	}

	return s.register(ctx, handle, secret)
}

func (s *Store) register(ctx context.Context, handle string, secret string) (int64, Outcome, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return 0, InvalidCredential, apperr.Internal("hashing password", err)
	}

	userID, err := s.insertUser(ctx, s.db, handle, hash)
	if err != nil {
		if database.IsUniqueViolation(err) {
			s.sugar.Debugf("Handle [%s] was registered concurrently", handle)
			return 0, HandleInUse, nil
		}
		return 0, InvalidCredential, apperr.Internal("registering user", err)
	}

	s.sugar.Infof("Registered user ID [%d]", userID)
	return userID, Created, nil
}

func (s *Store) insertUser(ctx context.Context, ext sqlx.ExtContext, handle string, hash []byte) (int64, error) {
	res, err := ext.ExecContext(ctx, "INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)", handle, hash, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) Get(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return user, apperr.NotFound("User not found")
	} else if err != nil {
		return user, apperr.Internal("fetching user", err)
	}
	return user, nil
}

func (s *Store) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", userID)
	if err != nil {
		return false, apperr.Internal("checking user", err)
	}
	return exists, nil
}

func (s *Store) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, apperr.Internal("listing users", err)
	}
	return users, nil
}

// Search finds users whose handle contains query, leaving out excludeID.
func (s *Store) Search(ctx context.Context, query string, excludeID int64, limit int) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users,
		"SELECT "+userColumns+" FROM users WHERE LOWER(username) LIKE LOWER(?) ESCAPE '!' AND id != ? ORDER BY username LIMIT ?",
		database.LikePattern(query), excludeID, limit)
	if err != nil {
		return nil, apperr.Internal("searching users", err)
	}
	return users, nil
}

// EnsureBot returns the bot called name, creating its user and bot rows when
// missing. Bot users get a random password nobody knows.
func (s *Store) EnsureBot(ctx context.Context, name string, description string) (models.Bot, error) {
	var bot models.Bot
	err := s.db.GetContext(ctx, &bot, "SELECT id, user_id, name, description, is_active, created_at FROM bots WHERE name = ?", name)
	if err == nil {
		return bot, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return bot, apperr.Internal("fetching bot", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
	if err != nil {
		return bot, apperr.Internal("hashing bot password", err)
	}

	err = database.Transaction(s.db, func(tx *sqlx.Tx) error {
		var userID int64
		err := tx.GetContext(ctx, &userID, "SELECT id FROM users WHERE username = ?", name)
		if errors.Is(err, sql.ErrNoRows) {
			userID, err = s.insertUser(ctx, tx, name, hash)
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, "INSERT INTO bots (user_id, name, description, is_active, created_at) VALUES (?, ?, ?, 1, ?)", userID, name, description, now)
		if err != nil {
			return err
		}
		botID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		bot = models.Bot{ID: botID, UserID: userID, Name: name, Description: description, IsActive: true, CreatedAt: now}
		return nil
	})
	if err != nil {
		return bot, apperr.Internal(fmt.Sprintf("creating bot %s", name), err)
	}

	s.sugar.Infof("Created bot [%s] with user ID [%d]", name, bot.UserID)
	return bot, nil
}

func (s *Store) ActiveBots(ctx context.Context) ([]models.Bot, error) {
	bots := []models.Bot{}
	err := s.db.SelectContext(ctx, &bots, "SELECT id, user_id, name, description, is_active, created_at FROM bots WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, apperr.Internal("listing bots", err)
	}
	return bots, nil
}
