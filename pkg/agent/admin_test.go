package agent

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/botronka/botronka/pkg/people"
)

func TestParseAdminIntent(t *testing.T) {
	tests := []struct {
		in   string
		want AdminIntent
	}{
		{"promote alice to friend", AdminIntent{Kind: AdminPromote, Name: "alice", TrustLevel: "Friend"}},
		{"Promote Alice to Owner", AdminIntent{Kind: AdminPromote, Name: "Alice", TrustLevel: "OWNER"}},
		{`promote "bob smith" to friend`, AdminIntent{Kind: AdminPromote, Name: "bob smith", TrustLevel: "Friend"}},

		{"register me as carol", AdminIntent{Kind: AdminRegisterGuest, Name: "carol", TrustLevel: "Guest"}},
		{"my name is Dave", AdminIntent{Kind: AdminRegisterGuest, Name: "Dave", TrustLevel: "Guest"}},
		{"hello, my name is Eve", AdminIntent{Kind: AdminRegisterGuest, Name: "Eve", TrustLevel: "Guest"}},

		{"promote alice to admin", AdminIntent{Kind: AdminNone}},
		{"what time is it", AdminIntent{Kind: AdminNone}},
		{"", AdminIntent{Kind: AdminNone}},
	}

	for _, tt := range tests {
		got := ParseAdminIntent(tt.in)
		if got != tt.want {
			t.Errorf("ParseAdminIntent(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTrustLevel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"guest", "Guest"},
		{" Friend ", "Friend"},
		{"OWNER", "OWNER"},
		{"owner", "OWNER"},
		{"admin", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTrustLevel(tt.in); got != tt.want {
			t.Errorf("NormalizeTrustLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPromotePerson(t *testing.T) {
	dir := t.TempDir()
	faceDB := people.NewTable(filepath.Join(dir, "face_db.json"))
	trustMap := people.NewTable(filepath.Join(dir, "trust_map.json"))

	if err := faceDB.SetString("alice", "embedding-placeholder"); err != nil {
		t.Fatal(err)
	}

	msg, err := PromotePerson("alice", "friend", trustMap, faceDB)
	if err != nil {
		t.Fatalf("PromotePerson() error = %v", err)
	}
	if !strings.Contains(msg, "alice") || !strings.Contains(msg, "Friend") {
		t.Errorf("message = %q", msg)
	}

	v, ok, err := trustMap.GetString("alice")
	if err != nil || !ok || v != "Friend" {
		t.Errorf("trust map entry = %q, %v, %v", v, ok, err)
	}
}

func TestPromotePersonRejections(t *testing.T) {
	dir := t.TempDir()
	faceDB := people.NewTable(filepath.Join(dir, "face_db.json"))
	trustMap := people.NewTable(filepath.Join(dir, "trust_map.json"))

	if _, err := PromotePerson("ghost", "friend", trustMap, faceDB); err == nil {
		t.Error("promoted a person missing from the face DB")
	}
	if _, err := PromotePerson("", "friend", trustMap, faceDB); err == nil {
		t.Error("promoted an empty name")
	}

	if err := faceDB.SetString("alice", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := PromotePerson("alice", "superuser", trustMap, faceDB); err == nil {
		t.Error("promoted to an unknown trust level")
	}

	if ok, _ := trustMap.Has("alice"); ok {
		t.Error("trust map written despite rejection")
	}
}
