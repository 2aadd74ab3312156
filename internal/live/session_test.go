package live_test

import (
	"testing"
	"time"

	"afterlive/internal/live"
)

func TestLookupAttribute(t *testing.T) {
	tests := []struct {
		name string
		want live.Attribute
		ok   bool
	}{
		{"title", live.AttrTitle, true},
		{" Title ", live.AttrTitle, true},
		{"name", live.AttrAnchor, true},
		{"area_name_child", live.AttrChildCategory, true},
		{"parent_area", live.AttrParentCategory, true},
		{"uptime", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := live.LookupAttribute(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("LookupAttribute(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSessionValueCoversEveryAttribute(t *testing.T) {
	s := live.Session{
		RoomID:         100,
		ShortID:        7,
		AnchorName:     "anchor",
		LiveTitle:      "title",
		StartTime:      time.Now(),
		ParentCategory: "Games",
		ChildCategory:  "Minecraft",
		SessionID:      "sess",
	}
	want := map[live.Attribute]string{
		live.AttrRoomID:         "100",
		live.AttrShortID:        "7",
		live.AttrAnchor:         "anchor",
		live.AttrTitle:          "title",
		live.AttrParentCategory: "Games",
		live.AttrChildCategory:  "Minecraft",
		live.AttrSessionID:      "sess",
	}
	for _, attr := range live.Attributes() {
		if got := s.Value(attr); got != want[attr] {
			t.Fatalf("Value(%s) = %q, want %q", attr, got, want[attr])
		}
	}
	if got := s.Value("bogus"); got != "" {
		t.Fatalf("expected empty value for unknown attribute, got %q", got)
	}
}

func TestRoomIdentityMatches(t *testing.T) {
	id := live.RoomIdentity{LongID: 21452505, ShortID: 100}
	if !id.Matches(21452505) || !id.Matches(100) {
		t.Fatal("expected long and short id to match")
	}
	if id.Matches(0) || id.Matches(5) {
		t.Fatal("unexpected match")
	}
	noShort := live.RoomIdentity{LongID: 5}
	if noShort.Matches(0) {
		t.Fatal("zero short id must not match")
	}
}
