package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spaceshq/spaces-server/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, &store.User{
		Name:         "alice",
		Email:        "alice@acme.io",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if created.Role != "member" {
		t.Fatalf("default role = %q, want member", created.Role)
	}
	if created.Friends == nil || len(created.Friends) != 0 {
		t.Fatalf("friends = %v, want empty slice", created.Friends)
	}

	created.Friends = []int64{7, 9}
	created.Role = "admin"
	if err := s.UpdateUser(ctx, created); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	loaded, err := s.GetUserByEmail(ctx, "alice@acme.io")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if loaded.Role != "admin" || len(loaded.Friends) != 2 {
		t.Fatalf("unexpected user after update: %+v", loaded)
	}

	if _, err := s.GetUserByID(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateUser(ctx, &store.User{ID: 999, Name: "ghost"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("updating missing user: expected ErrNotFound, got %v", err)
	}
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "alex", "bob"} {
		if _, err := s.CreateUser(ctx, &store.User{Name: name, Email: name + "@acme.io", PasswordHash: "h"}); err != nil {
			t.Fatalf("CreateUser(%s): %v", name, err)
		}
	}

	results, err := s.SearchUsers(ctx, "al")
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	// Case-insensitive match.
	results, err = s.SearchUsers(ctx, "BOB")
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(results) != 1 || results[0].Name != "bob" {
		t.Fatalf("unexpected matches: %+v", results)
	}
}

// Space documents carry ids and member entries in mixed encodings; storing
// them as JSON must preserve each entry's original shape.
func TestSpaceDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := `{
		"id": 10,
		"name": "eng",
		"ownerId": 1,
		"members": [1, "2", {"userId": "3"}],
		"channels": [
			{"id": 42, "name": "general", "members": [1, "2"], "roles": {"2": "admin"}},
			{"id": "43", "name": "random"}
		]
	}`
	var sp store.Space
	if err := json.Unmarshal([]byte(doc), &sp); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	if err := s.SaveSpace(ctx, &sp); err != nil {
		t.Fatalf("SaveSpace: %v", err)
	}

	loaded, err := s.SpaceByID(ctx, 10)
	if err != nil {
		t.Fatalf("SpaceByID: %v", err)
	}
	if len(loaded.Members) != 3 {
		t.Fatalf("members = %v", loaded.Members)
	}
	if _, ok := loaded.Members[0].(float64); !ok {
		t.Fatalf("numeric member changed shape: %T", loaded.Members[0])
	}
	if _, ok := loaded.Members[1].(string); !ok {
		t.Fatalf("string member changed shape: %T", loaded.Members[1])
	}
	if _, ok := loaded.Members[2].(map[string]any); !ok {
		t.Fatalf("record member changed shape: %T", loaded.Members[2])
	}
	if loaded.Channels[0].Roles["2"] != "admin" {
		t.Fatalf("roles lost: %v", loaded.Channels[0].Roles)
	}
}

func TestSpaceForChannelMatchesMixedIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sp := &store.Space{
		ID:      10,
		Name:    "eng",
		OwnerID: float64(1),
		Channels: []store.Channel{
			{ID: float64(42), Name: "general"},
			{ID: "43", Name: "random"},
		},
	}
	if err := s.SaveSpace(ctx, sp); err != nil {
		t.Fatalf("SaveSpace: %v", err)
	}

	// Numeric channel id found via its string key, and vice versa.
	for _, key := range []string{"42", "43"} {
		found, err := s.SpaceForChannel(ctx, key)
		if err != nil {
			t.Fatalf("SpaceForChannel(%s): %v", key, err)
		}
		if found.ID != 10 {
			t.Fatalf("SpaceForChannel(%s) = space %d", key, found.ID)
		}
	}

	if _, err := s.SpaceForChannel(ctx, "404"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveSpaceUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sp := &store.Space{ID: 10, Name: "eng"}
	if err := s.SaveSpace(ctx, sp); err != nil {
		t.Fatalf("SaveSpace: %v", err)
	}
	sp.Name = "engineering"
	if err := s.SaveSpace(ctx, sp); err != nil {
		t.Fatalf("SaveSpace update: %v", err)
	}

	spaces, err := s.ListSpaces(ctx)
	if err != nil {
		t.Fatalf("ListSpaces: %v", err)
	}
	if len(spaces) != 1 || spaces[0].Name != "engineering" {
		t.Fatalf("unexpected spaces: %+v", spaces)
	}
}

func TestListSpacesByIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := s.SaveSpace(ctx, &store.Space{ID: id, Name: "s"}); err != nil {
			t.Fatalf("SaveSpace(%d): %v", id, err)
		}
	}

	spaces, err := s.ListSpacesByIDs(ctx, []int64{1, 3, 99})
	if err != nil {
		t.Fatalf("ListSpacesByIDs: %v", err)
	}
	if len(spaces) != 2 {
		t.Fatalf("expected 2 spaces, got %d", len(spaces))
	}

	spaces, err = s.ListSpacesByIDs(ctx, nil)
	if err != nil || spaces != nil {
		t.Fatalf("empty id list should yield nothing, got (%v, %v)", spaces, err)
	}
}

func TestMessagesKeepOrderAndBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bodies := []string{
		`{"userId": 1, "text": "first"}`,
		`{"userId": "2", "text": "second", "extra": {"nested": true}}`,
	}
	for _, b := range bodies {
		if err := s.SaveMessage(ctx, "42", json.RawMessage(b)); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}
	if err := s.SaveMessage(ctx, "43", json.RawMessage(`{"text":"other channel"}`)); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "42")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	for i, want := range bodies {
		if string(msgs[i]) != want {
			t.Fatalf("message %d = %s, want %s", i, msgs[i], want)
		}
	}
}

func TestUpdateMessageMatchesBodyID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveMessage(ctx, "42", json.RawMessage(`{"id": 7, "text": "draft"}`)); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := s.SaveMessage(ctx, "42", json.RawMessage(`{"id": "m-8", "text": "untouched"}`)); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	// A numeric body id matches a string key.
	if err := s.UpdateMessage(ctx, "42", "7", json.RawMessage(`{"id": 7, "text": "final"}`)); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "42")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if string(msgs[0]) != `{"id": 7, "text": "final"}` {
		t.Fatalf("message not rewritten: %s", msgs[0])
	}
	if string(msgs[1]) != `{"id": "m-8", "text": "untouched"}` {
		t.Fatalf("wrong message touched: %s", msgs[1])
	}

	// Matching is scoped to the channel.
	if err := s.UpdateMessage(ctx, "43", "7", json.RawMessage(`{"id": 7}`)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cross-channel update err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateMessage(ctx, "42", "404", json.RawMessage(`{"id": 404}`)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &store.Task{
		ID:        "t-1",
		SpaceID:   10,
		Title:     "ship it",
		Status:    "pending",
		Assignees: []any{float64(1), "2"},
		CreatedBy: float64(1),
		CreatedAt: 1700000000000,
	}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	task.Status = "done"
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask update: %v", err)
	}

	loaded, err := s.GetTask(ctx, 10, "t-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if loaded.Status != "done" || len(loaded.Assignees) != 2 {
		t.Fatalf("unexpected task: %+v", loaded)
	}

	if _, err := s.GetTask(ctx, 11, "t-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("task visible under wrong space: %v", err)
	}

	tasks, err := s.ListTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
}

func TestNotificationFeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"n-1", "n-2"} {
		err := s.AppendNotification(ctx, 7, &store.Notification{
			ID:        id,
			Type:      "info",
			Message:   "hello",
			Timestamp: 1700000000000,
		})
		if err != nil {
			t.Fatalf("AppendNotification(%s): %v", id, err)
		}
	}

	feed, err := s.ListNotifications(ctx, 7)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(feed))
	}

	if err := s.RemoveNotification(ctx, 7, "n-1"); err != nil {
		t.Fatalf("RemoveNotification: %v", err)
	}
	feed, err = s.ListNotifications(ctx, 7)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != "n-2" {
		t.Fatalf("unexpected feed: %+v", feed)
	}
}

func TestOrgUpsertByDomain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := &store.Organization{
		Name:       "Acme",
		AdminEmail: "boss@acme.io",
		Domain:     "acme.io",
		DNSToken:   "tok-1",
	}
	if err := s.SaveOrg(ctx, org); err != nil {
		t.Fatalf("SaveOrg: %v", err)
	}

	org.Verified = true
	if err := s.SaveOrg(ctx, org); err != nil {
		t.Fatalf("SaveOrg update: %v", err)
	}

	loaded, err := s.GetOrgByDomain(ctx, "acme.io")
	if err != nil {
		t.Fatalf("GetOrgByDomain: %v", err)
	}
	if !loaded.Verified || loaded.DNSToken != "tok-1" {
		t.Fatalf("unexpected org: %+v", loaded)
	}

	if _, err := s.GetOrgByDomain(ctx, "globex.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
