package dm

import (
	"errors"
	"strings"
	"testing"
)

func TestConversationID_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"u2", "u1"},
		{"Zed", "amy"},
		{"u1", "u1"},
	}

	for _, p := range pairs {
		ab := ConversationID(p[0], p[1])
		ba := ConversationID(p[1], p[0])
		if ab != ba {
			t.Errorf("ConversationID(%q, %q) = %q, reversed = %q", p[0], p[1], ab, ba)
		}
	}
}

func TestConversationID_SelfChat(t *testing.T) {
	if got := ConversationID("u1", "u1"); got != "u1_u1" {
		t.Errorf("ConversationID(u1, u1) = %q, want %q", got, "u1_u1")
	}
}

func TestOpenConversationID(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		peer    string
		want    string
		wantErr bool
	}{
		{name: "valid pair", user: "u2", peer: "u1", want: "u1_u2"},
		{name: "self chat", user: "u1", peer: "u1", want: "u1_u1"},
		{name: "empty peer", user: "u1", peer: "", wantErr: true},
		{name: "separator in id", user: "u_1", peer: "u2", wantErr: true},
		{name: "path delimiter in id", user: "u1", peer: "a/b", wantErr: true},
		{name: "too long", user: strings.Repeat("a", MaxUserIDLength+1), peer: "u2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OpenConversationID(tt.user, tt.peer)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("OpenConversationID() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenConversationID() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("OpenConversationID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseConversationID(t *testing.T) {
	p, err := ParseConversationID("alice_bob")
	if err != nil {
		t.Fatalf("ParseConversationID() unexpected error: %v", err)
	}
	if p.First != "alice" || p.Second != "bob" {
		t.Errorf("ParseConversationID() = %+v", p)
	}
	if !p.Includes("bob") || p.Includes("carol") {
		t.Error("Includes() mismatch")
	}
	if p.Peer("alice") != "bob" || p.Peer("bob") != "alice" {
		t.Error("Peer() mismatch")
	}
	if len(p.Users()) != 2 {
		t.Errorf("Users() = %v, want 2 users", p.Users())
	}

	self, err := ParseConversationID("u1_u1")
	if err != nil {
		t.Fatalf("ParseConversationID(self) unexpected error: %v", err)
	}
	if !self.IsSelf() || self.Peer("u1") != "u1" || len(self.Users()) != 1 {
		t.Errorf("self chat participants = %+v", self)
	}

	for _, bad := range []string{"", "alice", "bob_alice", "a_b_c", "a_", "_b", "a b_c"} {
		if _, err := ParseConversationID(bad); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseConversationID(%q) error = %v, want ErrValidation", bad, err)
		}
	}
}

func TestClassifyRemote(t *testing.T) {
	local := NotParticipantError("u1_u2", "u3")
	if !errors.Is(local, ErrValidation) || !errors.Is(local, ErrNotParticipant) {
		t.Fatalf("NotParticipantError() = %v, want both kinds", local)
	}

	remote := ClassifyRemote(errors.New("service error: " + local.Error()))
	if !errors.Is(remote, ErrValidation) {
		t.Error("ClassifyRemote() lost ErrValidation")
	}
	if !errors.Is(remote, ErrNotParticipant) {
		t.Error("ClassifyRemote() lost ErrNotParticipant")
	}

	notFound := ClassifyRemote(errors.New("notification abc: not found"))
	if !errors.Is(notFound, ErrNotFound) {
		t.Errorf("ClassifyRemote() = %v, want ErrNotFound", notFound)
	}

	other := errors.New("boom")
	if got := ClassifyRemote(other); got != other {
		t.Errorf("ClassifyRemote(unknown) = %v, want unchanged", got)
	}
	if ClassifyRemote(nil) != nil {
		t.Error("ClassifyRemote(nil) should be nil")
	}
}
