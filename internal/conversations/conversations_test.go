package conversations

import (
	"context"
	"kiselgram-backend/internal/access"
	"kiselgram-backend/internal/attachments"
	"kiselgram-backend/internal/database/dbtest"
	"kiselgram-backend/internal/identity"
	"kiselgram-backend/internal/membership"
	"kiselgram-backend/internal/messages"
	"kiselgram-backend/internal/models"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestClassify(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		at       time.Time
		expected models.Bucket
		label    string
	}{
		{name: "Minutes ago", at: now.Add(-5 * time.Minute), expected: models.Today, label: "11:55"},
		{name: "Future", at: now.Add(time.Hour), expected: models.Today, label: "13:00"},
		{name: "Just under a day", at: now.Add(-23 * time.Hour), expected: models.Today, label: "13:00"},
		{name: "Yesterday", at: now.Add(-30 * time.Hour), expected: models.Yesterday, label: "Yesterday"},
		{name: "This week", at: now.Add(-3 * 24 * time.Hour), expected: models.ThisWeek, label: "Tuesday"},
		{name: "Older", at: now.Add(-10 * 24 * time.Hour), expected: models.Older, label: "05.03.2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket := Classify(tt.at, now)
			if bucket != tt.expected {
				t.Fatalf("bucket %q, want %q", bucket, tt.expected)
			}
			if label := Label(tt.at, bucket); label != tt.label {
				t.Errorf("label %q, want %q", label, tt.label)
			}
		})
	}

	if Label(now, models.NoBucket) != "" {
		t.Error("empty bucket should have no label")
	}
}

type world struct {
	users    *identity.Store
	ledger   *membership.Ledger
	messages *messages.Store
	resolver *Resolver
}

func newWorld(t *testing.T) *world {
	t.Helper()
	db := dbtest.New(t)
	sugar := zap.NewNop().Sugar()
	users := identity.NewStore(db, sugar).WithCost(bcrypt.MinCost)
	files := attachments.NewManager(t.TempDir(), 0, 0, sugar)
	ledger := membership.NewLedger(db, sugar, files)
	store := messages.NewStore(db, sugar, access.NewEngine(ledger, users), files)
	return &world{users: users, ledger: ledger, messages: store, resolver: NewResolver(store, ledger, users)}
}

func (w *world) user(t *testing.T, name string) int64 {
	t.Helper()
	id, _, err := w.users.RegisterOrAuthenticate(context.Background(), name, "pw")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (w *world) send(t *testing.T, from int64, dest models.Destination, text string) {
	t.Helper()
	if _, err := w.messages.Append(context.Background(), from, dest, models.Payload{Content: text}); err != nil {
		t.Fatal(err)
	}
}

func TestListOrdersByLatestMessage(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.user(t, "alice")
	bob := w.user(t, "bob")
	carol := w.user(t, "carol")

	quiet, _ := w.ledger.CreateGroup(ctx, alice, membership.NewConversation{Name: "Quiet"})
	busy, _ := w.ledger.CreateGroup(ctx, bob, membership.NewConversation{Name: "Busy"})
	w.ledger.JoinGroup(ctx, alice, busy.ID, models.RoleMember)
	news, _ := w.ledger.CreateChannel(ctx, carol, membership.NewConversation{Name: "News", IsPublic: true})
	w.ledger.Subscribe(ctx, alice, news.ID)

	w.send(t, bob, models.ToUser(alice), "hi alice")
	w.send(t, bob, models.ToUser(alice), "are you there")
	w.send(t, carol, models.ToChannel(news.ID), "headline")
	w.send(t, alice, models.ToUser(carol), "hey carol")
	w.send(t, bob, models.ToGroup(busy.ID), "standup")

	list, err := w.resolver.List(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}

	expected := []struct {
		kind   models.DestinationKind
		id     int64
		name   string
		unread int
		owner  bool
	}{
		{models.GroupChat, busy.ID, "Busy", 0, false},
		{models.Direct, carol, "carol", 0, false},
		{models.ChannelFeed, news.ID, "News", 0, false},
		{models.Direct, bob, "bob", 2, false},
		{models.GroupChat, quiet.ID, "Quiet", 0, true},
	}

	if len(list) != len(expected) {
		t.Fatalf("got %d conversations: %+v", len(list), list)
	}
	for i, e := range expected {
		got := list[i]
		if got.Kind != e.kind || got.ID != e.id || got.Name != e.name || got.UnreadCount != e.unread || got.IsOwner != e.owner {
			t.Errorf("entry %d is %+v, want %+v", i, got, e)
		}
	}

	if list[4].LastMessage != nil || list[4].Bucket != models.NoBucket {
		t.Errorf("empty group has last message %+v", list[4].LastMessage)
	}
	if list[0].LastMessage == nil || list[0].LastMessage.Content != "standup" || list[0].Bucket != models.Today {
		t.Errorf("busy group summary %+v", list[0])
	}
}

func TestListOnlyShowsMemberships(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.user(t, "alice")
	bob := w.user(t, "bob")

	group, _ := w.ledger.CreateGroup(ctx, alice, membership.NewConversation{Name: "Private", IsPublic: true})
	channel, _ := w.ledger.CreateChannel(ctx, alice, membership.NewConversation{Name: "Feed", IsPublic: true})
	w.send(t, alice, models.ToGroup(group.ID), "members only")
	w.send(t, alice, models.ToChannel(channel.ID), "subscribers only")

	list, err := w.resolver.List(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("bob sees %+v", list)
	}

	w.ledger.Subscribe(ctx, bob, channel.ID)
	list, _ = w.resolver.List(ctx, bob)
	if len(list) != 1 || list[0].Kind != models.ChannelFeed {
		t.Errorf("after subscribing bob sees %+v", list)
	}
}
