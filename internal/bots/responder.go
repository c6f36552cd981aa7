package bots

import (
	"context"
	"errors"
	"kiselgram-backend/internal/models"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultBackoff  = 10 * time.Second
)

type Directory interface {
	EnsureBot(ctx context.Context, name string, description string) (models.Bot, error)
	ActiveBots(ctx context.Context) ([]models.Bot, error)
}

type Inbox interface {
	UnreadFor(ctx context.Context, userID int64) ([]models.Message, error)
	Answer(ctx context.Context, msg models.Message, responderID int64, payload models.Payload) (models.Message, bool, error)
}

type Responder struct {
	directory Directory
	inbox     Inbox
	sugar     *zap.SugaredLogger
	interval  time.Duration
	backoff   time.Duration
	scheduler gocron.Scheduler
}

func NewResponder(directory Directory, inbox Inbox, sugar *zap.SugaredLogger, interval time.Duration, backoff time.Duration) *Responder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	backoff = max(backoff, interval)
	return &Responder{directory: directory, inbox: inbox, sugar: sugar, interval: interval, backoff: backoff}
}

// Seed creates the built-in bots that don't exist yet.
func (r *Responder) Seed(ctx context.Context) error {
	for _, bot := range Builtin {
		if _, err := r.directory.EnsureBot(ctx, bot.Name, bot.Description); err != nil {
			return err
		}
	}
	return nil
}

// Sweep answers every unread direct message addressed to an active bot with
// exactly one reply. A message another sweep already answered is skipped.
// It returns how many replies were sent.
func (r *Responder) Sweep(ctx context.Context) (int, error) {
	bots, err := r.directory.ActiveBots(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, bot := range bots {
		unread, err := r.inbox.UnreadFor(ctx, bot.UserID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, msg := range unread {
			reply := models.Payload{Content: Reply(bot.Name, msg.Content), Synthetic: true}
			_, answered, err := r.inbox.Answer(ctx, msg, bot.UserID, reply)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !answered {
				continue
			}
			sent++
			r.sugar.Debugf("Bot [%s] answered message ID [%d] from user ID [%d]", bot.Name, msg.ID, msg.SenderID)
		}
	}

	return sent, errors.Join(errs...)
}

// run is one scheduler tick. After a failed sweep it holds the job for the
// backoff period; singleton mode drops the ticks that fall into it.
func (r *Responder) run(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil {
		r.sugar.Errorf("Bot sweep failed, retrying in %s: %v", r.backoff, err)

		select {
		case <-ctx.Done():
		case <-time.After(r.backoff - r.interval):
		}
	}
}

// Start schedules the sweep every interval until ctx is done or Stop is
// called.
func (r *Responder) Start(ctx context.Context, logger gocron.Logger) error {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(r.run, ctx),
		gocron.WithName("bot-responder"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.Shutdown()
		return err
	}

	r.scheduler = s
	s.Start()
	r.sugar.Infof("Bot responder running every %s", r.interval)
	return nil
}

func (r *Responder) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}
