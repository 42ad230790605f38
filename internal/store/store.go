package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string // global role: "admin" or "member"
	Friends      []int64
	Invite       InvitePermissions
	CreatedAt    time.Time
}

// InvitePermissions controls who a user may invite into spaces.
type InvitePermissions struct {
	CanInviteAll         bool `json:"canInviteAll"`
	CanInviteCompanyOnly bool `json:"canInviteCompanyOnly"`
}

// Channel is a chat destination inside a space. Member entries and the
// owner id are kept in their source representation (scalar or record);
// consumers compare them through the identity package.
type Channel struct {
	ID      any               `json:"id"`
	Name    string            `json:"name"`
	Members []any             `json:"members,omitempty"`
	Roles   map[string]string `json:"roles,omitempty"`
}

// Space groups channels, a member list and an owner.
type Space struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	OwnerID  any       `json:"ownerId"`
	Members  []any     `json:"members,omitempty"`
	Channels []Channel `json:"channels"`
}

// Message is a persisted chat frame. The body is stored verbatim; the
// server never interprets it.
type Message struct {
	ID        int64
	ChatID    string
	Body      json.RawMessage
	CreatedAt time.Time
}

// Task is a unit of work inside a space.
type Task struct {
	ID        string `json:"id"`
	SpaceID   int64  `json:"spaceId"`
	Title     string `json:"title"`
	Status    string `json:"status,omitempty"`
	Assignees []any  `json:"assignees,omitempty"`
	CreatedBy any    `json:"createdBy,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Notification is an item in a user's notification feed.
type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Link      string `json:"link,omitempty"`
	From      any    `json:"from,omitempty"`
	SpaceID   any    `json:"spaceId,omitempty"`
	ChannelID any    `json:"channelId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Organization is a company account keyed by email domain.
type Organization struct {
	Name       string `json:"name"`
	AdminEmail string `json:"adminEmail"`
	Domain     string `json:"domain"`
	LogoURL    string `json:"logoUrl,omitempty"`
	Verified   bool   `json:"verified"`
	DNSToken   string `json:"dnsToken"`
	CreatedAt  int64  `json:"createdAt"`
}

// UserStore handles user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	SearchUsers(ctx context.Context, query string) ([]*User, error)
	UpdateUser(ctx context.Context, user *User) error
	AppendNotification(ctx context.Context, userID int64, n *Notification) error
	ListNotifications(ctx context.Context, userID int64) ([]*Notification, error)
	RemoveNotification(ctx context.Context, userID int64, notificationID string) error
}

// SpaceStore handles space documents. SpaceForChannel, SpaceByID and
// SaveSpace form the directory the access gate reads and writes through.
type SpaceStore interface {
	SaveSpace(ctx context.Context, sp *Space) error
	SpaceByID(ctx context.Context, id int64) (*Space, error)
	SpaceForChannel(ctx context.Context, channelKey string) (*Space, error)
	ListSpaces(ctx context.Context) ([]*Space, error)
	ListSpacesByIDs(ctx context.Context, ids []int64) ([]*Space, error)
}

// MessageStore handles message persistence. UpdateMessage matches the id
// field inside the stored body, with numeric and string encodings treated as
// the same id; it returns ErrNotFound when no message in the channel matches.
type MessageStore interface {
	SaveMessage(ctx context.Context, chatID string, body json.RawMessage) error
	UpdateMessage(ctx context.Context, chatID, messageID string, body json.RawMessage) error
	ListMessages(ctx context.Context, chatID string) ([]json.RawMessage, error)
}

// TaskStore handles task persistence.
type TaskStore interface {
	SaveTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, spaceID int64, taskID string) (*Task, error)
	ListTasks(ctx context.Context, spaceID int64) ([]*Task, error)
}

// OrgStore handles organization persistence.
type OrgStore interface {
	SaveOrg(ctx context.Context, org *Organization) error
	GetOrgByDomain(ctx context.Context, domain string) (*Organization, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	SpaceStore
	MessageStore
	TaskStore
	OrgStore

	// Close closes the underlying database connection.
	Close() error
}
