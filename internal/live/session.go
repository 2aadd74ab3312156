package live

import (
	"strconv"
	"strings"
	"time"
)

// RoomIdentity addresses a room by its long id or its optional short id.
type RoomIdentity struct {
	LongID  int64
	ShortID int64
}

// Matches reports whether id refers to this room.
func (r RoomIdentity) Matches(id int64) bool {
	if id == 0 {
		return false
	}
	return id == r.LongID || (r.ShortID != 0 && id == r.ShortID)
}

// Session describes one finished broadcast.
type Session struct {
	RoomID         int64     `json:"room_id"`
	ShortID        int64     `json:"short_id,omitempty"`
	AnchorName     string    `json:"anchor_name"`
	LiveTitle      string    `json:"live_title"`
	StartTime      time.Time `json:"start_time"`
	ParentCategory string    `json:"parent_category"`
	ChildCategory  string    `json:"child_category"`
	SessionID      string    `json:"session_id"`
}

// Identity returns the room identity of the session.
func (s Session) Identity() RoomIdentity {
	return RoomIdentity{LongID: s.RoomID, ShortID: s.ShortID}
}

// Attribute names a session field that conditions can match against.
type Attribute string

const (
	AttrRoomID         Attribute = "room_id"
	AttrShortID        Attribute = "short_id"
	AttrAnchor         Attribute = "anchor"
	AttrTitle          Attribute = "title"
	AttrParentCategory Attribute = "parent_area"
	AttrChildCategory  Attribute = "child_area"
	AttrSessionID      Attribute = "session_id"
)

var attributeAccessors = map[Attribute]func(Session) string{
	AttrRoomID:         func(s Session) string { return strconv.FormatInt(s.RoomID, 10) },
	AttrShortID:        func(s Session) string { return strconv.FormatInt(s.ShortID, 10) },
	AttrAnchor:         func(s Session) string { return s.AnchorName },
	AttrTitle:          func(s Session) string { return s.LiveTitle },
	AttrParentCategory: func(s Session) string { return s.ParentCategory },
	AttrChildCategory:  func(s Session) string { return s.ChildCategory },
	AttrSessionID:      func(s Session) string { return s.SessionID },
}

// aliases accepted in configuration for compatibility with recorder field names.
var attributeAliases = map[string]Attribute{
	"name":             AttrAnchor,
	"anchor_name":      AttrAnchor,
	"live_title":       AttrTitle,
	"area_name_parent": AttrParentCategory,
	"area_name_child":  AttrChildCategory,
	"parent_category":  AttrParentCategory,
	"child_category":   AttrChildCategory,
}

// LookupAttribute resolves a configuration item name to an Attribute.
func LookupAttribute(name string) (Attribute, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if _, ok := attributeAccessors[Attribute(key)]; ok {
		return Attribute(key), true
	}
	if attr, ok := attributeAliases[key]; ok {
		return attr, true
	}
	return "", false
}

// Attributes lists the canonical attribute names.
func Attributes() []Attribute {
	return []Attribute{AttrRoomID, AttrShortID, AttrAnchor, AttrTitle, AttrParentCategory, AttrChildCategory, AttrSessionID}
}

// Value returns the session field addressed by attr. Unknown attributes yield "".
func (s Session) Value(attr Attribute) string {
	accessor, ok := attributeAccessors[attr]
	if !ok {
		return ""
	}
	return accessor(s)
}
