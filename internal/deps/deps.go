// Package deps checks that the external executables afterlive drives are installed.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	probeTimeout     = 5 * time.Second
	probeConcurrency = 4
)

// Requirement names an external executable. VersionArgs, when set, are passed
// to the binary to read a version banner from its first output line.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	VersionArgs []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// Missing reports whether a required dependency is unavailable.
func (s Status) Missing() bool {
	return !s.Available && !s.Optional
}

// Check resolves every requirement on PATH and probes versions in parallel.
// Results keep the order of requirements.
func Check(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	var g errgroup.Group
	g.SetLimit(probeConcurrency)
	for i, req := range requirements {
		g.Go(func() error {
			results[i] = check(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func check(ctx context.Context, req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	status.Path = path
	if len(req.VersionArgs) > 0 {
		status.Version = probeVersion(ctx, path, req.VersionArgs)
	}
	return status
}

// probeVersion returns the first output line of path args with any trailing
// copyright notice removed. Failures yield an empty string.
func probeVersion(ctx context.Context, path string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil && len(out) == 0 {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line, _, _ = strings.Cut(line, " Copyright")
		return line
	}
	return ""
}

// MissingRequired returns the names of required dependencies that are unavailable.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if status.Missing() {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
