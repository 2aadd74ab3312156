package upload

import (
	"strconv"
	"strings"

	"afterlive/internal/live"
)

// Render expands the placeholders ${anchor}, ${title}, ${date}, ${time},
// ${parent_area}, ${child_area} and ${room} with session values.
func Render(tmpl string, session live.Session) string {
	if !strings.Contains(tmpl, "${") {
		return tmpl
	}
	var date, clock string
	if !session.StartTime.IsZero() {
		date = session.StartTime.Format("2006-01-02")
		clock = session.StartTime.Format("15:04:05")
	}
	return strings.NewReplacer(
		"${anchor}", session.AnchorName,
		"${title}", session.LiveTitle,
		"${date}", date,
		"${time}", clock,
		"${parent_area}", session.ParentCategory,
		"${child_area}", session.ChildCategory,
		"${room}", strconv.FormatInt(session.RoomID, 10),
	).Replace(tmpl)
}
