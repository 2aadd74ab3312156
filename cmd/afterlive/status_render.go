package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"afterlive/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset = "\x1b[0m"
	ansiBlue  = "\x1b[34m"
)

var kindStyles = map[statusKind]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	statusLabelWidth = 22
	statusIndent     = "  "
)

// labelCaser title-cases preflight check names for the status report.
var labelCaser = cases.Title(language.English)

// statusLine is one "label: [KIND] message" row of the status report.
type statusLine struct {
	label   string
	kind    statusKind
	message string
}

func (l statusLine) render(colorize bool) string {
	tag := "[" + kindStyles[l.kind].tag + "]"
	if l.message != "" {
		tag += " " + l.message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, l.label+":", tag)
	if colorize {
		return kindStyles[l.kind].color + line + ansiReset
	}
	return line
}

type statusSection struct {
	title string
	lines []statusLine
}

// writeSections prints each section under an underlined header, separated
// by blank lines.
func writeSections(w io.Writer, sections []statusSection, colorize bool) {
	for i, section := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header := "== " + section.title + " =="
		rule := strings.Repeat("-", len(header))
		if colorize {
			header, rule = ansiBlue+header+ansiReset, ansiBlue+rule+ansiReset
		}
		fmt.Fprintln(w, header)
		fmt.Fprintln(w, rule)
		for _, line := range section.lines {
			fmt.Fprintln(w, line.render(colorize))
		}
	}
}

// dependencyLines leads with a summary, then one row per executable. A
// missing optional tool warns; a missing required tool is an error.
func dependencyLines(statuses []api.DependencyStatus) []statusLine {
	if len(statuses) == 0 {
		return []statusLine{{"Summary", statusInfo, "No external tools configured"}}
	}
	var requiredMissing, optionalMissing int
	rows := make([]statusLine, 0, len(statuses)+1)
	for _, dep := range statuses {
		if dep.Available {
			rows = append(rows, statusLine{dep.Name, statusOK, availability(dep)})
			continue
		}
		row := statusLine{label: dep.Name, kind: statusError, message: dep.Detail}
		if row.message == "" {
			row.message = "Not available"
		}
		if dep.Optional {
			row.kind = statusWarn
			optionalMissing++
		} else {
			requiredMissing++
		}
		rows = append(rows, row)
	}

	summary := statusLine{"Summary", statusOK, fmt.Sprintf("All %d tools available", len(statuses))}
	if requiredMissing > 0 {
		summary = statusLine{"Summary", statusError, fmt.Sprintf("%d required tool(s) missing", requiredMissing)}
	} else if optionalMissing > 0 {
		summary = statusLine{"Summary", statusWarn, fmt.Sprintf("%d optional tool(s) missing", optionalMissing)}
	}
	return append([]statusLine{summary}, rows...)
}

func availability(dep api.DependencyStatus) string {
	details := make([]string, 0, 2)
	for _, part := range []string{dep.Command, dep.Version} {
		if part != "" {
			details = append(details, part)
		}
	}
	if len(details) == 0 {
		return "Available"
	}
	return "Available (" + strings.Join(details, ", ") + ")"
}

// pendingLines lists rooms whose recordings are waiting for SessionEnded.
func pendingLines(sessions []api.PendingSession) []statusLine {
	if len(sessions) == 0 {
		return []statusLine{{"Sessions", statusInfo, "None in progress"}}
	}
	rows := make([]statusLine, 0, len(sessions))
	for _, s := range sessions {
		message := fmt.Sprintf("%d file(s) pending", len(s.Files))
		if s.StartTime != "" {
			message += ", started " + s.StartTime
		}
		rows = append(rows, statusLine{fmt.Sprintf("Room %d", s.RoomID), statusInfo, message})
	}
	return rows
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
