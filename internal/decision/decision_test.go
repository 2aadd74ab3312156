package decision_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"afterlive/internal/config"
	"afterlive/internal/decision"
	"afterlive/internal/live"
	"afterlive/internal/testsupport"
)

type fakeProbe struct {
	durations map[string]time.Duration
	calls     []string
}

func (f *fakeProbe) Duration(_ context.Context, path string) (time.Duration, error) {
	f.calls = append(f.calls, path)
	d, ok := f.durations[path]
	if !ok {
		return 0, errors.New("probe failed")
	}
	return d, nil
}

func boolPtr(v bool) *bool { return &v }

func roomRule(t *testing.T, conditions ...config.Condition) *config.Room {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithRooms(config.Room{ID: 100, Conditions: conditions}))
	rule, ok := cfg.Room(100)
	if !ok {
		t.Fatal("room missing")
	}
	return rule
}

func TestShouldProcessOrdering(t *testing.T) {
	session := live.Session{RoomID: 100, LiveTitle: "weekly rerun", AnchorName: "anchor"}
	veto := config.Condition{Item: "title", Regexp: "rerun", Process: boolPtr(false)}
	allow := config.Condition{Item: "anchor", Regexp: "anchor", Tags: []string{"x"}}

	tests := []struct {
		name       string
		stems      []string
		rule       *config.Room
		minSeconds int
		want       decision.Decision
	}{
		{
			name: "no files wins over missing rule",
			rule: nil,
			want: decision.Decision{Reason: decision.ReasonNoFiles},
		},
		{
			name:  "room not configured",
			stems: []string{"/rec/a"},
			want:  decision.Decision{Reason: decision.ReasonRoomNotConfigured},
		},
		{
			name:  "matching veto",
			stems: []string{"/rec/a"},
			rule:  roomRule(t, allow, veto),
			want:  decision.Decision{Reason: decision.ReasonConditionVeto},
		},
		{
			name:  "no veto accepted",
			stems: []string{"/rec/a"},
			rule:  roomRule(t, allow),
			want:  decision.Decision{Process: true, Reason: decision.ReasonAccepted},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithMinDuration(tt.minSeconds))
			engine := decision.New(cfg, &fakeProbe{}, nil)
			got, err := engine.ShouldProcess(context.Background(), session, tt.stems, tt.rule)
			if err != nil {
				t.Fatalf("ShouldProcess: %v", err)
			}
			if got.Process != tt.want.Process || got.Reason != tt.want.Reason {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFirstDisablingConditionVetoes(t *testing.T) {
	rule := roomRule(t,
		config.Condition{Item: "title", Regexp: "nomatch", Process: boolPtr(false)},
		config.Condition{Item: "child_area", Regexp: "Chess", Process: boolPtr(false)},
		config.Condition{Item: "title", Regexp: ".", Process: boolPtr(false)},
	)
	cfg := testsupport.NewConfig(t)
	engine := decision.New(cfg, nil, nil)
	got, err := engine.ShouldProcess(context.Background(), live.Session{LiveTitle: "t", ChildCategory: "Chess"}, []string{"/rec/a"}, rule)
	if err != nil {
		t.Fatalf("ShouldProcess: %v", err)
	}
	if got.Process || got.Condition == nil || got.Condition.Regexp != "Chess" {
		t.Fatalf("expected the Chess condition to veto, got %+v", got)
	}
	if len(got.Attrs()) == 0 {
		t.Fatal("expected decision attributes")
	}
}

func TestMinimumDurationSumsProbes(t *testing.T) {
	rule := roomRule(t)
	cfg := testsupport.NewConfig(t, testsupport.WithMinDuration(600))
	probe := &fakeProbe{durations: map[string]time.Duration{
		"/rec/a.flv": 4 * time.Minute,
		"/rec/b.flv": 7 * time.Minute,
	}}
	engine := decision.New(cfg, probe, nil)

	got, err := engine.ShouldProcess(context.Background(), live.Session{}, []string{"/rec/a", "/rec/b"}, rule)
	if err != nil {
		t.Fatalf("ShouldProcess: %v", err)
	}
	if !got.Process || got.TotalDuration != 11*time.Minute {
		t.Fatalf("expected accepted with 11m, got %+v", got)
	}

	got, err = engine.ShouldProcess(context.Background(), live.Session{}, []string{"/rec/a", "/rec/missing"}, rule)
	if err != nil {
		t.Fatalf("ShouldProcess: %v", err)
	}
	if got.Process || got.Reason != decision.ReasonTooShort || got.TotalDuration != 4*time.Minute {
		t.Fatalf("probe failure must count as zero, got %+v", got)
	}
}

func TestZeroMinimumSkipsProbing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	probe := &fakeProbe{}
	engine := decision.New(cfg, probe, nil)
	got, err := engine.ShouldProcess(context.Background(), live.Session{}, []string{"/rec/a"}, roomRule(t))
	if err != nil || !got.Process {
		t.Fatalf("expected accepted, got %+v err=%v", got, err)
	}
	if len(probe.calls) != 0 {
		t.Fatalf("expected no probes, got %v", probe.calls)
	}
}
