// Package sqlite implements store.Store on SQLite. Users, messages and
// notifications are row-shaped; spaces, tasks and organizations are stored
// as JSON documents so the heterogeneous member and id encodings found in
// imported data survive round-trips untouched.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spaceshq/spaces-server/internal/identity"
	"github.com/spaceshq/spaces-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'member',
	friends       TEXT NOT NULL DEFAULT '[]',
	invite        TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS spaces (
	id  INTEGER PRIMARY KEY,
	doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id    TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id);

CREATE TABLE IF NOT EXISTS tasks (
	id       TEXT PRIMARY KEY,
	space_id INTEGER NOT NULL,
	doc      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_space ON tasks(space_id);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);

CREATE TABLE IF NOT EXISTS orgs (
	domain TEXT PRIMARY KEY,
	doc    TEXT NOT NULL
);
`

// Store implements store.Store for SQLite.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath and applies
// the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

func (s *Store) CreateUser(ctx context.Context, user *store.User) (*store.User, error) {
	friends, invite, err := marshalUserBlobs(user)
	if err != nil {
		return nil, err
	}
	role := user.Role
	if role == "" {
		role = "member"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, friends, invite)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.Name, user.Email, user.PasswordHash, role, friends, invite)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, friends, invite, created_at
		FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, friends, invite, created_at
		FROM users WHERE email = ?`, email))
}

func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, role, friends, invite, created_at
		FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, role, friends, invite, created_at
		FROM users WHERE name LIKE ? COLLATE NOCASE ORDER BY name`,
		"%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user *store.User) error {
	friends, invite, err := marshalUserBlobs(user)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET name = ?, role = ?, friends = ?, invite = ?
		WHERE id = ?`,
		user.Name, user.Role, friends, invite, user.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AppendNotification(ctx context.Context, userID int64, n *store.Notification) error {
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, doc) VALUES (?, ?, ?)`,
		n.ID, userID, string(doc)); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID int64) ([]*store.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM notifications WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*store.Notification
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		var n store.Notification
		if err := json.Unmarshal([]byte(doc), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *Store) RemoveNotification(ctx context.Context, userID int64, notificationID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE id = ? AND user_id = ?`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (*store.User, error) {
	var (
		u       store.User
		friends string
		invite  string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &friends, &invite, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if err := json.Unmarshal([]byte(friends), &u.Friends); err != nil {
		return nil, fmt.Errorf("unmarshal friends: %w", err)
	}
	if err := json.Unmarshal([]byte(invite), &u.Invite); err != nil {
		return nil, fmt.Errorf("unmarshal invite permissions: %w", err)
	}
	return &u, nil
}

func marshalUserBlobs(user *store.User) (friends, invite string, err error) {
	f := user.Friends
	if f == nil {
		f = []int64{}
	}
	fb, err := json.Marshal(f)
	if err != nil {
		return "", "", fmt.Errorf("marshal friends: %w", err)
	}
	ib, err := json.Marshal(user.Invite)
	if err != nil {
		return "", "", fmt.Errorf("marshal invite permissions: %w", err)
	}
	return string(fb), string(ib), nil
}

// ==== SpaceStore implementation ====

func (s *Store) SaveSpace(ctx context.Context, sp *store.Space) error {
	doc, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("marshal space: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO spaces (id, doc) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`,
		sp.ID, string(doc)); err != nil {
		return fmt.Errorf("save space: %w", err)
	}
	return nil
}

func (s *Store) SpaceByID(ctx context.Context, id int64) (*store.Space, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM spaces WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	return unmarshalSpace(doc)
}

// SpaceForChannel scans space documents for one whose channel list contains
// the channel key. Channel ids are matched through normalization because
// source documents store them as numbers or strings interchangeably.
func (s *Store) SpaceForChannel(ctx context.Context, channelKey string) (*store.Space, error) {
	spaces, err := s.ListSpaces(ctx)
	if err != nil {
		return nil, err
	}
	for _, sp := range spaces {
		for i := range sp.Channels {
			if identity.Equal(sp.Channels[i].ID, channelKey) {
				return sp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSpaces(ctx context.Context) ([]*store.Space, error) {
	return s.querySpaces(ctx, `SELECT doc FROM spaces ORDER BY id`)
}

func (s *Store) ListSpacesByIDs(ctx context.Context, ids []int64) ([]*store.Space, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.querySpaces(ctx, `SELECT doc FROM spaces WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
}

func (s *Store) querySpaces(ctx context.Context, query string, args ...any) ([]*store.Space, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*store.Space
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		sp, err := unmarshalSpace(doc)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, sp)
	}
	return spaces, rows.Err()
}

func unmarshalSpace(doc string) (*store.Space, error) {
	var sp store.Space
	if err := json.Unmarshal([]byte(doc), &sp); err != nil {
		return nil, fmt.Errorf("unmarshal space: %w", err)
	}
	return &sp, nil
}

// ==== MessageStore implementation ====

func (s *Store) SaveMessage(ctx context.Context, chatID string, body json.RawMessage) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, body) VALUES (?, ?)`,
		chatID, string(body)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) UpdateMessage(ctx context.Context, chatID, messageID string, body json.RawMessage) error {
	rowID, err := s.findMessageRow(ctx, chatID, messageID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE messages SET body = ? WHERE id = ?`,
		string(body), rowID); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// findMessageRow locates the row whose body carries the given message id.
// Bodies are opaque JSON, so the id is matched through normalization rather
// than SQL, mirroring how source documents mix numeric and string ids.
func (s *Store) findMessageRow(ctx context.Context, chatID, messageID string) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body FROM messages WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rowID int64
			body  string
		)
		if err := rows.Scan(&rowID, &body); err != nil {
			return 0, fmt.Errorf("scan message: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			continue
		}
		if identity.Equal(doc["id"], messageID) {
			return rowID, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return 0, store.ErrNotFound
}

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM messages WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, json.RawMessage(body))
	}
	return out, rows.Err()
}

// ==== TaskStore implementation ====

func (s *Store) SaveTask(ctx context.Context, task *store.Task) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, space_id, doc) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`,
		task.ID, task.SpaceID, string(doc)); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, spaceID int64, taskID string) (*store.Task, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM tasks WHERE id = ? AND space_id = ?`, taskID, spaceID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	var t store.Task
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, spaceID int64) ([]*store.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM tasks WHERE space_id = ? ORDER BY rowid`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*store.Task
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t store.Task
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ==== OrgStore implementation ====

func (s *Store) SaveOrg(ctx context.Context, org *store.Organization) error {
	doc, err := json.Marshal(org)
	if err != nil {
		return fmt.Errorf("marshal org: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO orgs (domain, doc) VALUES (?, ?)
		ON CONFLICT(domain) DO UPDATE SET doc = excluded.doc`,
		org.Domain, string(doc)); err != nil {
		return fmt.Errorf("save org: %w", err)
	}
	return nil
}

func (s *Store) GetOrgByDomain(ctx context.Context, domain string) (*store.Organization, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM orgs WHERE domain = ?`, domain).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get org: %w", err)
	}
	var org store.Organization
	if err := json.Unmarshal([]byte(doc), &org); err != nil {
		return nil, fmt.Errorf("unmarshal org: %w", err)
	}
	return &org, nil
}

// Ensure Store satisfies the aggregate interface.
var _ store.Store = (*Store)(nil)
