// Package access resolves whether a user may read or mutate a channel, and
// with which role. It owns no data: space documents come from a Directory
// (the space store) and connection state lives in the realtime registry.
// All id comparison goes through the identity package because the documents
// mix numeric, string and record-shaped identifiers.
package access

import (
	"context"
	"errors"
	"strings"

	"github.com/spaceshq/spaces-server/internal/identity"
	"github.com/spaceshq/spaces-server/internal/store"
)

// Role is a channel-level role.
type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// ParseRole validates a role string from a request body.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleMember:
		return Role(s), true
	}
	return RoleNone, false
}

// CanManageMembers reports whether the role may add or remove members.
func (r Role) CanManageMembers() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Grant is the result of a successful access resolution.
type Grant struct {
	// Role is the effective channel role. Empty for plain members and for
	// direct-message channels, which carry flat access only.
	Role Role
	// Direct is set when the channel key is a direct-message key.
	Direct bool
}

// Directory supplies and persists space documents.
type Directory interface {
	SpaceForChannel(ctx context.Context, channelKey string) (*store.Space, error)
	SpaceByID(ctx context.Context, id int64) (*store.Space, error)
	SaveSpace(ctx context.Context, sp *store.Space) error
}

// Gate authorizes channel reads and membership mutations.
type Gate struct {
	dir Directory
}

// NewGate creates a gate over the given directory.
func NewGate(dir Directory) *Gate {
	return &Gate{dir: dir}
}

// SplitDirectKey parses a composite direct-message key "dm_<a>_<b>".
func SplitDirectKey(key string) (a, b string, ok bool) {
	if !strings.HasPrefix(key, "dm_") {
		return "", "", false
	}
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// Resolve decides whether userID may access the channel identified by
// channelKey. A nil error means access is granted.
func (g *Gate) Resolve(ctx context.Context, channelKey string, userID any) (Grant, error) {
	uid, ok := identity.Normalize(userID)
	if !ok {
		return Grant{}, ErrMalformedIdentifier
	}

	if a, b, direct := SplitDirectKey(channelKey); direct {
		if identity.Equal(a, uid) || identity.Equal(b, uid) {
			return Grant{Direct: true}, nil
		}
		return Grant{}, ErrUnauthorized
	}

	sp, ch, err := g.locate(ctx, channelKey)
	if err != nil {
		return Grant{}, err
	}

	// The space owner is owner of every channel, present in the role map
	// or not.
	if owner, ok := identity.Normalize(sp.OwnerID); ok && owner == uid {
		return Grant{Role: RoleOwner}, nil
	}
	if !identity.Contains(sp.Members, uid) && !identity.Contains(ch.Members, uid) {
		return Grant{}, ErrUnauthorized
	}
	return Grant{Role: channelRole(ch, uid)}, nil
}

// SetRole assigns role to target in the channel. Only owners and admins may
// change roles, only an owner may grant or revoke the owner role, and the
// channel must never be left without an owner.
func (g *Gate) SetRole(ctx context.Context, spaceID int64, channelID, caller, target any, role Role) (*store.Space, *store.Channel, error) {
	sp, ch, callerRole, err := g.channelForMutation(ctx, spaceID, channelID, caller)
	if err != nil {
		return nil, nil, err
	}
	tid, ok := identity.Normalize(target)
	if !ok {
		return nil, nil, ErrMalformedIdentifier
	}

	if role == RoleOwner && callerRole != RoleOwner {
		return nil, nil, ErrUnauthorized
	}
	owners := ownerSet(sp, ch)
	if _, isOwner := owners[tid]; isOwner && role != RoleOwner {
		if callerRole != RoleOwner {
			return nil, nil, ErrUnauthorized
		}
		delete(owners, tid)
		if len(owners) == 0 {
			return nil, nil, ErrLastOwner
		}
	}

	if ch.Roles == nil {
		ch.Roles = make(map[string]string)
	}
	// Drop stale keys that normalize to the same identity before writing
	// the canonical one.
	for k := range ch.Roles {
		if identity.Equal(k, tid) {
			delete(ch.Roles, k)
		}
	}
	ch.Roles[tid] = string(role)

	if err := g.dir.SaveSpace(ctx, sp); err != nil {
		return nil, nil, err
	}
	return sp, ch, nil
}

// AddMember adds target to the channel's member list.
func (g *Gate) AddMember(ctx context.Context, spaceID int64, channelID, caller, target any) (*store.Space, *store.Channel, error) {
	sp, ch, _, err := g.channelForMutation(ctx, spaceID, channelID, caller)
	if err != nil {
		return nil, nil, err
	}
	tid, ok := identity.Normalize(target)
	if !ok {
		return nil, nil, ErrMalformedIdentifier
	}

	if !identity.Contains(ch.Members, tid) {
		ch.Members = append(ch.Members, tid)
	}
	if err := g.dir.SaveSpace(ctx, sp); err != nil {
		return nil, nil, err
	}
	return sp, ch, nil
}

// RemoveMember removes target from the channel's member list and role map.
// Removing the last remaining owner (counting the implicit space owner) is
// rejected with ErrLastOwner.
func (g *Gate) RemoveMember(ctx context.Context, spaceID int64, channelID, caller, target any) (*store.Space, *store.Channel, error) {
	sp, ch, _, err := g.channelForMutation(ctx, spaceID, channelID, caller)
	if err != nil {
		return nil, nil, err
	}
	tid, ok := identity.Normalize(target)
	if !ok {
		return nil, nil, ErrMalformedIdentifier
	}

	owners := ownerSet(sp, ch)
	if _, isOwner := owners[tid]; isOwner {
		delete(owners, tid)
		if len(owners) == 0 {
			return nil, nil, ErrLastOwner
		}
	}

	kept := make([]any, 0, len(ch.Members))
	for _, m := range ch.Members {
		if n, ok := identity.Normalize(m); ok && n == tid {
			continue
		}
		kept = append(kept, m)
	}
	ch.Members = kept
	for k := range ch.Roles {
		if identity.Equal(k, tid) {
			delete(ch.Roles, k)
		}
	}

	if err := g.dir.SaveSpace(ctx, sp); err != nil {
		return nil, nil, err
	}
	return sp, ch, nil
}

func (g *Gate) locate(ctx context.Context, channelKey string) (*store.Space, *store.Channel, error) {
	sp, err := g.dir.SpaceForChannel(ctx, channelKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	for i := range sp.Channels {
		if identity.Equal(sp.Channels[i].ID, channelKey) {
			return sp, &sp.Channels[i], nil
		}
	}
	return nil, nil, ErrNotFound
}

// channelForMutation loads the channel and verifies the caller may manage
// its membership.
func (g *Gate) channelForMutation(ctx context.Context, spaceID int64, channelID, caller any) (*store.Space, *store.Channel, Role, error) {
	uid, ok := identity.Normalize(caller)
	if !ok {
		return nil, nil, RoleNone, ErrMalformedIdentifier
	}
	cid, ok := identity.Normalize(channelID)
	if !ok {
		return nil, nil, RoleNone, ErrMalformedIdentifier
	}

	sp, err := g.dir.SpaceByID(ctx, spaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, RoleNone, ErrNotFound
		}
		return nil, nil, RoleNone, err
	}

	var ch *store.Channel
	for i := range sp.Channels {
		if identity.Equal(sp.Channels[i].ID, cid) {
			ch = &sp.Channels[i]
			break
		}
	}
	if ch == nil {
		return nil, nil, RoleNone, ErrNotFound
	}

	callerRole := effectiveRole(sp, ch, uid)
	if !callerRole.CanManageMembers() {
		return nil, nil, RoleNone, ErrUnauthorized
	}
	return sp, ch, callerRole, nil
}

func effectiveRole(sp *store.Space, ch *store.Channel, uid string) Role {
	if owner, ok := identity.Normalize(sp.OwnerID); ok && owner == uid {
		return RoleOwner
	}
	return channelRole(ch, uid)
}

func channelRole(ch *store.Channel, uid string) Role {
	for k, v := range ch.Roles {
		if !identity.Equal(k, uid) {
			continue
		}
		if role, ok := ParseRole(v); ok {
			return role
		}
	}
	return RoleNone
}

// ownerSet collects the distinct normalized owner ids of a channel,
// including the implicit space owner.
func ownerSet(sp *store.Space, ch *store.Channel) map[string]struct{} {
	owners := make(map[string]struct{})
	if owner, ok := identity.Normalize(sp.OwnerID); ok {
		owners[owner] = struct{}{}
	}
	for k, v := range ch.Roles {
		if Role(v) != RoleOwner {
			continue
		}
		if n, ok := identity.Normalize(k); ok {
			owners[n] = struct{}{}
		}
	}
	return owners
}
