package access

import (
	"context"
	"errors"
	"testing"

	"github.com/spaceshq/spaces-server/internal/identity"
	"github.com/spaceshq/spaces-server/internal/store"
)

type fakeDirectory struct {
	spaces map[int64]*store.Space
	saves  int
}

func (d *fakeDirectory) SpaceForChannel(_ context.Context, channelKey string) (*store.Space, error) {
	for _, sp := range d.spaces {
		for i := range sp.Channels {
			if identity.Equal(sp.Channels[i].ID, channelKey) {
				return sp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (d *fakeDirectory) SpaceByID(_ context.Context, id int64) (*store.Space, error) {
	sp, ok := d.spaces[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sp, nil
}

func (d *fakeDirectory) SaveSpace(_ context.Context, _ *store.Space) error {
	d.saves++
	return nil
}

// testSpace mirrors the shape of real documents: the owner appears as a
// number, one member as a string, and the channel id as a float (the way
// JSON numbers decode).
func testSpace() *fakeDirectory {
	return &fakeDirectory{spaces: map[int64]*store.Space{
		10: {
			ID:      10,
			Name:    "eng",
			OwnerID: float64(1),
			Members: []any{float64(1), float64(7), "8"},
			Channels: []store.Channel{
				{
					ID:      float64(42),
					Name:    "general",
					Members: []any{float64(1), float64(7), "8"},
					Roles:   map[string]string{"7": "admin"},
				},
				{
					ID:      "43",
					Name:    "random",
					Members: []any{float64(1)},
				},
			},
		},
	}}
}

func TestResolveMemberAccess(t *testing.T) {
	gate := NewGate(testSpace())
	ctx := context.Background()

	cases := []struct {
		user any
		role Role
	}{
		{int64(1), RoleOwner},  // implicit space owner
		{"7", RoleAdmin},       // role map entry, string vs numeric member
		{float64(8), RoleNone}, // plain member
	}
	for _, tc := range cases {
		grant, err := gate.Resolve(ctx, "42", tc.user)
		if err != nil {
			t.Fatalf("Resolve(42, %v): %v", tc.user, err)
		}
		if grant.Role != tc.role {
			t.Fatalf("Resolve(42, %v) role = %q, want %q", tc.user, grant.Role, tc.role)
		}
	}
}

func TestResolveDeniesOutsider(t *testing.T) {
	gate := NewGate(testSpace())

	_, err := gate.Resolve(context.Background(), "42", int64(99))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestResolveUnknownChannel(t *testing.T) {
	gate := NewGate(testSpace())

	_, err := gate.Resolve(context.Background(), "404", int64(1))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveMalformedIdentifierFailsClosed(t *testing.T) {
	gate := NewGate(testSpace())

	for _, bad := range []any{nil, "", map[string]any{"name": "x"}} {
		if _, err := gate.Resolve(context.Background(), "42", bad); !errors.Is(err, ErrMalformedIdentifier) {
			t.Fatalf("Resolve(42, %v): expected ErrMalformedIdentifier, got %v", bad, err)
		}
	}
}

func TestResolveDirectMessageKey(t *testing.T) {
	gate := NewGate(&fakeDirectory{spaces: map[int64]*store.Space{}})
	ctx := context.Background()

	for _, user := range []any{int64(5), "9", float64(5)} {
		grant, err := gate.Resolve(ctx, "dm_5_9", user)
		if err != nil {
			t.Fatalf("Resolve(dm_5_9, %v): %v", user, err)
		}
		if !grant.Direct {
			t.Fatalf("expected direct grant for %v", user)
		}
	}

	if _, err := gate.Resolve(ctx, "dm_5_9", int64(6)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for third party, got %v", err)
	}
}

func TestSplitDirectKey(t *testing.T) {
	a, b, ok := SplitDirectKey("dm_5_9")
	if !ok || a != "5" || b != "9" {
		t.Fatalf("SplitDirectKey(dm_5_9) = (%q, %q, %v)", a, b, ok)
	}
	// Underscores in the second id are preserved.
	a, b, ok = SplitDirectKey("dm_5_u_9")
	if !ok || a != "5" || b != "u_9" {
		t.Fatalf("SplitDirectKey(dm_5_u_9) = (%q, %q, %v)", a, b, ok)
	}
	for _, bad := range []string{"42", "dm_", "dm_5", "dm__9"} {
		if _, _, ok := SplitDirectKey(bad); ok {
			t.Fatalf("SplitDirectKey(%q) should fail", bad)
		}
	}
}

func TestSetRoleByAdmin(t *testing.T) {
	dir := testSpace()
	gate := NewGate(dir)

	_, ch, err := gate.SetRole(context.Background(), 10, float64(42), "7", "8", RoleAdmin)
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if ch.Roles["8"] != "admin" {
		t.Fatalf("expected member 8 promoted, roles = %v", ch.Roles)
	}
	if dir.saves != 1 {
		t.Fatalf("expected one save, got %d", dir.saves)
	}
}

func TestSetRoleOwnerGrantRequiresOwner(t *testing.T) {
	gate := NewGate(testSpace())

	if _, _, err := gate.SetRole(context.Background(), 10, "42", "7", "8", RoleOwner); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("admin granting owner: expected ErrUnauthorized, got %v", err)
	}

	_, ch, err := gate.SetRole(context.Background(), 10, "42", int64(1), "8", RoleOwner)
	if err != nil {
		t.Fatalf("owner granting owner: %v", err)
	}
	if ch.Roles["8"] != "owner" {
		t.Fatalf("expected member 8 as owner, roles = %v", ch.Roles)
	}
}

func TestSetRoleDemotingLastOwnerRejected(t *testing.T) {
	gate := NewGate(testSpace())

	// User 1 is the only owner (implicitly, as space owner).
	if _, _, err := gate.SetRole(context.Background(), 10, "42", int64(1), int64(1), RoleMember); !errors.Is(err, ErrLastOwner) {
		t.Fatalf("expected ErrLastOwner, got %v", err)
	}
}

func TestSetRoleByPlainMemberRejected(t *testing.T) {
	gate := NewGate(testSpace())

	if _, _, err := gate.SetRole(context.Background(), 10, "42", "8", "7", RoleMember); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAddMemberDeduplicates(t *testing.T) {
	dir := testSpace()
	gate := NewGate(dir)
	ctx := context.Background()

	_, ch, err := gate.AddMember(ctx, 10, "42", "7", int64(9))
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if !identity.Contains(ch.Members, "9") {
		t.Fatalf("expected member 9 added, members = %v", ch.Members)
	}
	before := len(ch.Members)

	// Adding the same identity in a different representation is a no-op.
	_, ch, err = gate.AddMember(ctx, 10, "42", "7", "9")
	if err != nil {
		t.Fatalf("AddMember repeat: %v", err)
	}
	if len(ch.Members) != before {
		t.Fatalf("duplicate add grew members: %v", ch.Members)
	}
}

func TestRemoveMemberStripsAllRepresentations(t *testing.T) {
	dir := testSpace()
	gate := NewGate(dir)

	_, ch, err := gate.RemoveMember(context.Background(), 10, "42", int64(1), float64(7))
	if err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if identity.Contains(ch.Members, "7") {
		t.Fatalf("member 7 still present: %v", ch.Members)
	}
	if _, ok := ch.Roles["7"]; ok {
		t.Fatalf("role for 7 still present: %v", ch.Roles)
	}
}

func TestRemoveLastOwnerRejected(t *testing.T) {
	gate := NewGate(testSpace())

	if _, _, err := gate.RemoveMember(context.Background(), 10, "42", int64(1), int64(1)); !errors.Is(err, ErrLastOwner) {
		t.Fatalf("expected ErrLastOwner, got %v", err)
	}
}

func TestRemoveOwnerAllowedWhenAnotherRemains(t *testing.T) {
	dir := testSpace()
	dir.spaces[10].Channels[0].Roles["8"] = "owner"
	gate := NewGate(dir)

	_, ch, err := gate.RemoveMember(context.Background(), 10, "42", "8", int64(1))
	if err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if identity.Contains(ch.Members, "1") {
		t.Fatalf("member 1 still present: %v", ch.Members)
	}
}
