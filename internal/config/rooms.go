package config

import (
	"fmt"
	"regexp"
	"strings"

	"afterlive/internal/live"
)

// Channel is a destination (parent, child) category pair on the upload platform.
type Channel struct {
	Parent string
	Child  string
}

// String renders the pair the way operators write it.
func (c Channel) String() string {
	return c.Parent + " " + c.Child
}

// ParseChannel accepts ["parent", "child"] or a single "parent child" element.
func ParseChannel(parts []string) (*Channel, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	if len(parts) == 1 {
		parts = strings.Fields(parts[0])
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("channel must have a parent and a child, got %q", parts)
	}
	parent := strings.TrimSpace(parts[0])
	child := strings.TrimSpace(parts[1])
	if parent == "" || child == "" {
		return nil, fmt.Errorf("channel must have a parent and a child, got %q", parts)
	}
	return &Channel{Parent: parent, Child: child}, nil
}

// Condition adjusts tags and channel, or vetoes processing, when its regexp
// matches a session attribute.
type Condition struct {
	Item    string   `toml:"item"`
	Regexp  string   `toml:"regexp"`
	Tags    []string `toml:"tags"`
	Channel []string `toml:"channel"`
	Process *bool    `toml:"process"`

	attr    live.Attribute
	re      *regexp.Regexp
	channel *Channel
}

// Attribute is the session attribute the condition reads.
func (c Condition) Attribute() live.Attribute {
	if c.attr != "" {
		return c.attr
	}
	attr, _ := live.LookupAttribute(c.Item)
	return attr
}

// Matches reports whether the condition's regexp finds a match in the session attribute.
func (c Condition) Matches(session live.Session) bool {
	re := c.re
	if re == nil {
		compiled, err := regexp.Compile(c.Regexp)
		if err != nil {
			return false
		}
		re = compiled
	}
	attr := c.Attribute()
	if attr == "" {
		return false
	}
	return re.MatchString(session.Value(attr))
}

// ShouldProcess reports the condition's processing flag; unset means true.
func (c Condition) ShouldProcess() bool {
	return c.Process == nil || *c.Process
}

// ChannelOverride returns the condition's channel, or nil when it has none.
func (c Condition) ChannelOverride() *Channel {
	if c.channel != nil {
		cp := *c.channel
		return &cp
	}
	ch, err := ParseChannel(c.Channel)
	if err != nil {
		return nil
	}
	return ch
}

func (c *Condition) compile() error {
	attr, ok := live.LookupAttribute(c.Item)
	if !ok {
		return fmt.Errorf("unknown condition item %q (expected one of %v)", c.Item, live.Attributes())
	}
	re, err := regexp.Compile(c.Regexp)
	if err != nil {
		return fmt.Errorf("condition regexp %q: %w", c.Regexp, err)
	}
	ch, err := ParseChannel(c.Channel)
	if err != nil {
		return err
	}
	c.attr = attr
	c.re = re
	c.channel = ch
	c.Tags = cleanTags(c.Tags)
	return nil
}

// Room is the rule set for one recorder room.
type Room struct {
	ID          int64       `toml:"id"`
	ShortID     int64       `toml:"short_id"`
	Title       string      `toml:"title"`
	Description string      `toml:"description"`
	Dynamic     string      `toml:"dynamic"`
	Tags        []string    `toml:"tags"`
	Channel     []string    `toml:"channel"`
	Conditions  []Condition `toml:"conditions"`
}

// Identity returns the ids this room answers to.
func (r Room) Identity() live.RoomIdentity {
	return live.RoomIdentity{LongID: r.ID, ShortID: r.ShortID}
}

// DefaultChannel returns the room's baseline channel, or nil.
func (r Room) DefaultChannel() *Channel {
	ch, err := ParseChannel(r.Channel)
	if err != nil {
		return nil
	}
	return ch
}

// Clone returns a deep copy so per-session work never leaks into the configured rule.
func (r Room) Clone() Room {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	out.Channel = append([]string(nil), r.Channel...)
	if r.Conditions != nil {
		out.Conditions = make([]Condition, len(r.Conditions))
		for i, cond := range r.Conditions {
			cp := cond
			cp.Tags = append([]string(nil), cond.Tags...)
			cp.Channel = append([]string(nil), cond.Channel...)
			if cond.Process != nil {
				flag := *cond.Process
				cp.Process = &flag
			}
			if cond.channel != nil {
				ch := *cond.channel
				cp.channel = &ch
			}
			out.Conditions[i] = cp
		}
	}
	return out
}

// MatchingConditions returns the conditions that match session, in configuration order.
func (r Room) MatchingConditions(session live.Session) []Condition {
	var matched []Condition
	for _, cond := range r.Conditions {
		if cond.Matches(session) {
			matched = append(matched, cond)
		}
	}
	return matched
}

// Room returns a copy of the rule addressed by either the long or the short id.
func (c *Config) Room(id int64) (*Room, bool) {
	if c == nil {
		return nil, false
	}
	for _, room := range c.Rooms {
		if room.Identity().Matches(id) {
			cp := room.Clone()
			return &cp, true
		}
	}
	return nil, false
}

func (c *Config) compileRooms() error {
	seen := make(map[int64]int, len(c.Rooms)*2)
	for i := range c.Rooms {
		room := &c.Rooms[i]
		if room.ID <= 0 {
			return fmt.Errorf("rooms[%d].id must be positive", i)
		}
		for _, id := range []int64{room.ID, room.ShortID} {
			if id == 0 {
				continue
			}
			if prev, ok := seen[id]; ok && prev != i {
				return fmt.Errorf("rooms[%d]: id %d already used by rooms[%d]", i, id, prev)
			}
			seen[id] = i
		}
		if strings.TrimSpace(room.Title) == "" {
			room.Title = defaultTitleTemplate
		}
		room.Tags = cleanTags(room.Tags)
		if _, err := ParseChannel(room.Channel); err != nil {
			return fmt.Errorf("rooms[%d].channel: %w", i, err)
		}
		for j := range room.Conditions {
			if err := room.Conditions[j].compile(); err != nil {
				return fmt.Errorf("rooms[%d].conditions[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return tags
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		for _, part := range strings.Split(tag, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
