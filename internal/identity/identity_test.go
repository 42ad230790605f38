package identity

import (
	"encoding/json"
	"testing"
)

func TestNormalizeScalars(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"42", "42"},
		{" 42 ", "42"},
		{42, "42"},
		{int64(42), "42"},
		{uint64(42), "42"},
		{float64(42), "42"},
		{float32(7), "7"},
		{json.Number("42"), "42"},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		if !ok || got != tc.want {
			t.Fatalf("Normalize(%v) = (%q, %v), want (%q, true)", tc.in, got, ok, tc.want)
		}
	}
}

func TestNormalizeRecords(t *testing.T) {
	cases := []struct {
		in   map[string]any
		want string
	}{
		{map[string]any{"id": float64(7)}, "7"},
		{map[string]any{"userId": "7"}, "7"},
		{map[string]any{"_id": "abc123"}, "abc123"},
		{map[string]any{"_id": map[string]any{"$oid": "507f1f77bcf86cd799439011"}}, "507f1f77bcf86cd799439011"},
		// "id" takes precedence over "userId".
		{map[string]any{"id": "1", "userId": "2"}, "1"},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		if !ok || got != tc.want {
			t.Fatalf("Normalize(%v) = (%q, %v), want (%q, true)", tc.in, got, ok, tc.want)
		}
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	cases := []any{
		nil,
		"",
		"   ",
		map[string]any{"name": "no id here"},
		map[string]any{},
		[]any{"42"},
		true,
	}
	for _, in := range cases {
		if got, ok := Normalize(in); ok {
			t.Fatalf("Normalize(%v) = (%q, true), want failure", in, got)
		}
	}
}

func TestNormalizeFractionalFloatKeepsFraction(t *testing.T) {
	got, ok := Normalize(4.5)
	if !ok || got != "4.5" {
		t.Fatalf("Normalize(4.5) = (%q, %v)", got, ok)
	}
}

func TestEqualAcrossRepresentations(t *testing.T) {
	if !Equal(float64(7), "7") {
		t.Fatal("float64(7) should equal \"7\"")
	}
	if !Equal(map[string]any{"id": 7}, "7") {
		t.Fatal("record id should equal scalar id")
	}
	if Equal(nil, "7") {
		t.Fatal("malformed side must never match")
	}
	if Equal("", "") {
		t.Fatal("two malformed values must not match each other")
	}
}

func TestContains(t *testing.T) {
	members := []any{float64(1), "2", map[string]any{"userId": "3"}}
	for _, id := range []string{"1", "2", "3"} {
		if !Contains(members, id) {
			t.Fatalf("expected members to contain %q", id)
		}
	}
	if Contains(members, "4") {
		t.Fatal("unexpected member 4")
	}
	if Contains(nil, "1") {
		t.Fatal("empty list contains nothing")
	}
}
