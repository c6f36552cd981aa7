package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"kiselgram-backend/internal/access"
	"kiselgram-backend/internal/attachments"
	"kiselgram-backend/internal/conversations"
	"kiselgram-backend/internal/database/dbtest"
	"kiselgram-backend/internal/identity"
	"kiselgram-backend/internal/jwt"
	"kiselgram-backend/internal/keyValue"
	"kiselgram-backend/internal/membership"
	"kiselgram-backend/internal/messages"
	"kiselgram-backend/internal/models"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	root    string
	users   *identity.Store
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	jwt.Setup("handler-test-secret-0123456789", false)

	db := dbtest.New(t)
	sugar := zap.NewNop().Sugar()
	root := t.TempDir()

	users := identity.NewStore(db, sugar).WithCost(bcrypt.MinCost)
	files := attachments.NewManager(root, maxUpload, 200, sugar)
	ledger := membership.NewLedger(db, sugar, files)
	store := messages.NewStore(db, sugar, access.NewEngine(ledger, users), files)

	cfg := &models.ConfigFile{Address: "127.0.0.1", Port: "0"}
	server := NewServer(cfg, sugar, Services{
		Users:         users,
		Ledger:        ledger,
		Messages:      store,
		Conversations: conversations.NewResolver(store, ledger, users),
		Files:         files,
		Cache:         keyValue.NewLocal(sugar),
	})

	return &testServer{t: t, handler: server.Router(), root: root, users: users}
}

func (ts *testServer) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(username string, password string) *httptest.ResponseRecorder {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req, nil)
}

type session struct {
	ts     *testServer
	id     int64
	cookie *http.Cookie
}

func (ts *testServer) session(username string) *session {
	ts.t.Helper()
	rec := ts.login(username, "pw")
	if rec.Code != http.StatusSeeOther {
		ts.t.Fatalf("login %s: %d %s", username, rec.Code, rec.Body)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == jwt.CookieName {
			token, err := jwt.VerifyToken(c.Value)
			if err != nil {
				ts.t.Fatal(err)
			}
			return &session{ts: ts, id: token.UserID, cookie: c}
		}
	}
	ts.t.Fatalf("login %s set no session cookie", username)
	return nil
}

func (s *session) get(path string) *httptest.ResponseRecorder {
	return s.ts.do(httptest.NewRequest(http.MethodGet, path, nil), s.cookie)
}

func (s *session) postJSON(path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return s.ts.do(req, s.cookie)
}

func (s *session) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.ts.do(req, s.cookie)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status %d, want %d: %s", rec.Code, status, rec.Body)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, 0)

	tests := []struct {
		name     string
		username string
		password string
		expected int
	}{
		{name: "Registers", username: "alice", password: "pw1", expected: http.StatusSeeOther},
		{name: "Authenticates", username: "alice", password: "pw1", expected: http.StatusSeeOther},
		{name: "Wrong password", username: "alice", password: "nope", expected: http.StatusUnauthorized},
		{name: "Missing password", username: "bob", password: "", expected: http.StatusBadRequest},
		{name: "Bad handle", username: "bad handle!", password: "pw", expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.login(tt.username, tt.password)
			if rec.Code != tt.expected {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.expected, rec.Body)
			}
			if rec.Code == http.StatusSeeOther && rec.Header().Get("Location") != "/chat_list" {
				t.Errorf("redirected to %q", rec.Header().Get("Location"))
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/chat_list", nil), nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if body := decodeBody[errorResponse](t, rec); body.Error == "" {
		t.Error("no error message")
	}

	forged := &http.Cookie{Name: jwt.CookieName, Value: "forged"}
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/chat_list", nil), forged)
	expectStatus(t, rec, http.StatusUnauthorized)

	// valid token for an account that doesn't exist
	ghost, _ := jwt.CreateToken(false, 999)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/chat_list", nil), &ghost)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestDirectConversation(t *testing.T) {
	ts := newTestServer(t, 0)
	alice := ts.session("alice")
	bob := ts.session("bob")

	rec := alice.postJSON("/api/send_message", map[string]any{"receiver_id": bob.id, "content": "hi"})
	expectStatus(t, rec, http.StatusOK)
	sent := decodeBody[sentResponse](t, rec)
	if !sent.Success || !sent.Message.IsOwn || sent.Message.SenderName != "alice" || len(sent.Message.Timestamp) != 5 {
		t.Errorf("unexpected send response %+v", sent)
	}

	chats := decodeBody[map[string][]ChatView](t, bob.get("/api/chat_list"))["chats"]
	if len(chats) != 1 || chats[0].Type != "personal" || chats[0].Name != "alice" || chats[0].UnreadCount != 1 || chats[0].LastMessage != "hi" {
		t.Fatalf("bob's chat list %+v", chats)
	}

	rec = bob.get(fmt.Sprintf("/api/messages/%d?after=0", alice.id))
	expectStatus(t, rec, http.StatusOK)
	msgs := decodeBody[messagesResponse](t, rec).Messages
	if len(msgs) != 1 || msgs[0].IsOwn || msgs[0].Content != "hi" {
		t.Fatalf("bob sees %+v", msgs)
	}

	// opening the chat read it
	chats = decodeBody[map[string][]ChatView](t, bob.get("/api/chat_list"))["chats"]
	if chats[0].UnreadCount != 0 {
		t.Errorf("unread after opening: %d", chats[0].UnreadCount)
	}

	rec = bob.get(fmt.Sprintf("/api/messages/%d?after=%d", alice.id, msgs[0].ID))
	if got := decodeBody[messagesResponse](t, rec).Messages; len(got) != 0 {
		t.Errorf("cursor at last id returned %+v", got)
	}

	expectStatus(t, bob.postJSON(fmt.Sprintf("/api/mark_read/%d", alice.id), nil), http.StatusOK)

	rec = alice.postJSON("/api/send_message", map[string]any{"receiver_id": 4242, "content": "anyone?"})
	expectStatus(t, rec, http.StatusNotFound)

	rec = alice.postJSON("/api/send_message", map[string]any{"receiver_id": bob.id, "content": ""})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = alice.get("/api/messages/abc")
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestGroupInviteFlow(t *testing.T) {
	ts := newTestServer(t, 0)
	alice := ts.session("alice")
	bob := ts.session("bob")
	eve := ts.session("eve")

	expectStatus(t, alice.get("/create_group"), http.StatusOK)

	rec := alice.postForm("/create_group", url.Values{"name": {"Friends"}, "description": {"just us"}})
	expectStatus(t, rec, http.StatusCreated)
	group := decodeBody[groupResponse](t, rec).Group
	if group.InviteLink == "" || group.OwnerID != alice.id || group.IsPublic {
		t.Fatalf("created %+v", group)
	}

	expectStatus(t, alice.postForm("/create_group", url.Values{"name": {"  "}}), http.StatusBadRequest)

	expectStatus(t, bob.get("/join_group/"+group.InviteLink), http.StatusOK)
	expectStatus(t, bob.get("/join_group/"+group.InviteLink), http.StatusOK)
	expectStatus(t, eve.get("/join_group/not-an-invite"), http.StatusNotFound)

	rec = alice.postJSON("/api/send_group_message", map[string]any{"group_id": group.ID, "content": "welcome"})
	expectStatus(t, rec, http.StatusOK)

	rec = bob.get(fmt.Sprintf("/api/group_messages/%d", group.ID))
	expectStatus(t, rec, http.StatusOK)
	msgs := decodeBody[messagesResponse](t, rec).Messages
	if len(msgs) != 1 || msgs[0].IsOwn || msgs[0].SenderName != "alice" {
		t.Fatalf("bob sees %+v", msgs)
	}

	expectStatus(t, eve.get(fmt.Sprintf("/api/group_messages/%d", group.ID)), http.StatusForbidden)
	expectStatus(t, eve.get(fmt.Sprintf("/api/group_info/%d", group.ID)), http.StatusForbidden)

	rec = bob.get(fmt.Sprintf("/api/group_info/%d", group.ID))
	expectStatus(t, rec, http.StatusOK)
	info := decodeBody[struct {
		MembersCount int          `json:"members_count"`
		Members      []MemberView `json:"members"`
		IsOwner      bool         `json:"is_owner"`
	}](t, rec)
	if info.MembersCount != 2 || info.IsOwner || info.Members[0].Role != "owner" {
		t.Errorf("group info %+v", info)
	}

	rec = alice.get(fmt.Sprintf("/leave_group/%d", group.ID))
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"deleted":true`) {
		t.Errorf("owner leave: %s", rec.Body)
	}
	expectStatus(t, bob.get(fmt.Sprintf("/api/group_messages/%d", group.ID)), http.StatusForbidden)
}

func TestChannelIsBroadcastOnly(t *testing.T) {
	ts := newTestServer(t, 0)
	alice := ts.session("alice")
	bob := ts.session("bob")

	rec := alice.postForm("/create_channel", url.Values{"name": {"News"}, "is_public": {"on"}})
	expectStatus(t, rec, http.StatusCreated)
	channel := decodeBody[channelResponse](t, rec).Channel
	if !channel.IsPublic || channel.Type != "channel" {
		t.Fatalf("created %+v", channel)
	}

	expectStatus(t, bob.get("/join_channel/"+channel.InviteLink), http.StatusOK)

	rec = bob.postJSON("/api/send_channel_message", map[string]any{"channel_id": channel.ID, "content": "can I post?"})
	expectStatus(t, rec, http.StatusForbidden)

	rec = alice.postJSON("/api/send_channel_message", map[string]any{"channel_id": channel.ID, "content": "big news"})
	expectStatus(t, rec, http.StatusOK)

	msgs := decodeBody[messagesResponse](t, bob.get(fmt.Sprintf("/api/channel_messages/%d", channel.ID))).Messages
	if len(msgs) != 1 || msgs[0].Content != "big news" {
		t.Fatalf("bob sees %+v", msgs)
	}

	expectStatus(t, alice.get(fmt.Sprintf("/leave_channel/%d", channel.ID)), http.StatusBadRequest)
	expectStatus(t, bob.get(fmt.Sprintf("/leave_channel/%d", channel.ID)), http.StatusOK)
	expectStatus(t, bob.get(fmt.Sprintf("/api/channel_info/%d", channel.ID)), http.StatusForbidden)
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func (s *session) upload(fields map[string]string, fileName string, content []byte) *httptest.ResponseRecorder {
	body, contentType := multipartUpload(s.ts.t, fields, fileName, content)
	req := httptest.NewRequest(http.MethodPost, "/upload_file", body)
	req.Header.Set("Content-Type", contentType)
	return s.ts.do(req, s.cookie)
}

func filesUnder(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func TestUploadServeAndDelete(t *testing.T) {
	ts := newTestServer(t, 0)
	alice := ts.session("alice")
	bob := ts.session("bob")
	eve := ts.session("eve")

	rec := alice.upload(map[string]string{"receiver_id": fmt.Sprint(bob.id), "message": "notes"}, "notes.txt", []byte("meeting at noon"))
	expectStatus(t, rec, http.StatusOK)
	msg := decodeBody[sentResponse](t, rec).Message
	if !msg.HasAttachment || msg.FileType != "document" || msg.FileName != "notes.txt" || msg.FileSize != "15.0 B" || msg.ThumbnailURL != nil {
		t.Fatalf("upload view %+v", msg)
	}
	if !strings.HasPrefix(msg.FileURL, "/uploads/documents/") {
		t.Fatalf("file url %q", msg.FileURL)
	}

	rec = bob.get(msg.FileURL)
	expectStatus(t, rec, http.StatusOK)
	if body, _ := io.ReadAll(rec.Body); string(body) != "meeting at noon" {
		t.Errorf("served %q", body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("content type %q", got)
	}

	expectStatus(t, eve.get(msg.FileURL), http.StatusForbidden)
	expectStatus(t, bob.get("/uploads/documents/missing.txt"), http.StatusNotFound)
	expectStatus(t, bob.get("/uploads/../config.json"), http.StatusNotFound)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/delete_message/%d", msg.ID), nil)
	expectStatus(t, ts.do(req, bob.cookie), http.StatusForbidden)

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/delete_message/%d", msg.ID), nil)
	expectStatus(t, ts.do(req, alice.cookie), http.StatusOK)
	if files := filesUnder(t, ts.root); len(files) != 0 {
		t.Errorf("files left after delete: %v", files)
	}
	expectStatus(t, bob.get(msg.FileURL), http.StatusNotFound)

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/delete_message/%d", msg.ID), nil)
	expectStatus(t, ts.do(req, alice.cookie), http.StatusNotFound)
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t, attachments.DefaultMaxBytes)
	alice := ts.session("alice")
	bob := ts.session("bob")
	to := map[string]string{"receiver_id": fmt.Sprint(bob.id)}

	tests := []struct {
		name     string
		fields   map[string]string
		fileName string
		size     int
		expected int
	}{
		{name: "Twenty megabytes", fields: to, fileName: "movie.mp4", size: 20 * 1024 * 1024, expected: http.StatusBadRequest},
		{name: "Not allowed", fields: to, fileName: "script.sh", size: 10, expected: http.StatusBadRequest},
		{name: "No destination", fields: map[string]string{}, fileName: "a.txt", size: 10, expected: http.StatusBadRequest},
		{name: "Two destinations", fields: map[string]string{"receiver_id": fmt.Sprint(bob.id), "group_id": "1"}, fileName: "a.txt", size: 10, expected: http.StatusBadRequest},
		{name: "No file", fields: to, fileName: "", expected: http.StatusBadRequest},
		{name: "Unknown group", fields: map[string]string{"group_id": "77"}, fileName: "a.txt", size: 10, expected: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := alice.upload(tt.fields, tt.fileName, bytes.Repeat([]byte("x"), tt.size))
			expectStatus(t, rec, tt.expected)
		})
	}

	if files := filesUnder(t, ts.root); len(files) != 0 {
		t.Errorf("rejected uploads left files: %v", files)
	}
}

func TestSearchEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)
	alice := ts.session("alice")
	bob := ts.session("bobby")
	ts.session("bob_the_builder")

	alice.postForm("/create_group", url.Values{"name": {"Bob fans"}, "is_public": {"on"}})
	alice.postJSON("/api/send_message", map[string]any{"receiver_id": bob.id, "content": "lunch with bob?"})

	rec := alice.get("/api/search?q=bob")
	expectStatus(t, rec, http.StatusOK)
	results := decodeBody[map[string]searchResults](t, rec)["results"]
	if len(results.Users) != 2 || len(results.Groups) != 1 || len(results.Channels) != 0 {
		t.Fatalf("results %+v", results)
	}
	if results.Groups[0].IsMember == nil || !*results.Groups[0].IsMember || *results.Groups[0].MembersCount != 1 {
		t.Errorf("group hit %+v", results.Groups[0])
	}

	rec = alice.get("/api/search?q=bob&type=groups")
	if got := decodeBody[map[string]searchResults](t, rec)["results"]; len(got.Users) != 0 || len(got.Groups) != 1 {
		t.Errorf("groups only %+v", got)
	}

	rec = alice.get("/api/search?q=b")
	if got := decodeBody[map[string]searchResults](t, rec)["results"]; len(got.Users) != 0 {
		t.Errorf("short query %+v", got)
	}

	expectStatus(t, alice.get("/api/search?q=bob&type=everything"), http.StatusBadRequest)

	rec = bob.get("/api/search_messages?q=LUNCH&chat_type=personal")
	expectStatus(t, rec, http.StatusOK)
	hits := decodeBody[map[string][]SearchHitView](t, rec)["messages"]
	if len(hits) != 1 || hits[0].ChatName != "alice" || hits[0].ChatID != alice.id || hits[0].Context != "Personal" || hits[0].ChatType != "personal" {
		t.Fatalf("hits %+v", hits)
	}

	expectStatus(t, bob.get("/api/search_messages?q=lunch&chat_type=secret"), http.StatusBadRequest)
}

func TestUsersAndStatus(t *testing.T) {
	ts := newTestServer(t, 0)
	alice := ts.session("alice")
	bob := ts.session("bob")

	if _, err := ts.users.EnsureBot(t.Context(), "calc_bot", "Mathematical calculations"); err != nil {
		t.Fatal(err)
	}

	rec := alice.get("/api/users")
	expectStatus(t, rec, http.StatusOK)
	listing := decodeBody[struct {
		Users []UserView `json:"users"`
		Bots  []botView  `json:"bots"`
	}](t, rec)
	if len(listing.Users) != 2 || len(listing.Bots) != 1 || listing.Bots[0].Name != "calc_bot" {
		t.Fatalf("listing %+v", listing)
	}
	for _, u := range listing.Users {
		if u.ID == alice.id {
			t.Error("listing includes the caller")
		}
		if u.UserName == "calc_bot" && u.Type != "bot" {
			t.Error("bot account not marked")
		}
	}

	rec = alice.get(fmt.Sprintf("/api/user_status/%d", bob.id))
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"is_online":true`) || !strings.Contains(rec.Body.String(), `"last_seen":null`) {
		t.Errorf("status %s", rec.Body)
	}
	expectStatus(t, alice.get("/api/user_status/9999"), http.StatusNotFound)

	bots := decodeBody[map[string][]botView](t, alice.get("/api/bots"))["bots"]
	if len(bots) != 1 {
		t.Errorf("bots %+v", bots)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	ts := newTestServer(t, 0)
	alice := ts.session("alice")

	rec := alice.get("/logout")
	expectStatus(t, rec, http.StatusSeeOther)
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == jwt.CookieName && c.Value == "" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}
