// File path: internal/lifecycle/targets_test.go
package lifecycle

import (
	"testing"

	"github.com/civicworks/progressd/internal/report"
)

func TestExpandLegacyTargets(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		status string
		want   []report.Target
	}{
		{
			name:   "paired parts",
			text:   "Connect 500 households; Train 40 staff",
			status: "On schedule; Behind by two weeks",
			want: []report.Target{
				{Text: "Connect 500 households", StatusDescription: "On schedule"},
				{Text: "Train 40 staff", StatusDescription: "Behind by two weeks"},
			},
		},
		{
			name:   "more texts than statuses",
			text:   "A; B; C",
			status: "S1",
			want: []report.Target{
				{Text: "A", StatusDescription: "S1"},
				{Text: "B"},
				{Text: "C"},
			},
		},
		{
			name:   "empty text parts dropped",
			text:   "A; ; B",
			status: "S1; S2; S3",
			want: []report.Target{
				{Text: "A", StatusDescription: "S1"},
				{Text: "B", StatusDescription: "S3"},
			},
		},
		{
			name:   "statuses without texts dropped",
			text:   "A",
			status: "S1; S2",
			want: []report.Target{
				{Text: "A", StatusDescription: "S1"},
			},
		},
		{
			name: "empty input",
			text: "",
			want: []report.Target{},
		},
	}
	for _, tc := range cases {
		got := ExpandLegacyTargets(tc.text, tc.status)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: expected %d targets, got %d (%+v)", tc.name, len(tc.want), len(got), got)
		}
		for idx := range tc.want {
			if got[idx] != tc.want[idx] {
				t.Fatalf("%s: target %d: expected %+v, got %+v", tc.name, idx, tc.want[idx], got[idx])
			}
		}
	}
}

func TestTargetsFromContentPrefersCanonicalList(t *testing.T) {
	content, err := report.ParseFieldMap(`{
		"targets": [
			{"text": "Connect 500 households", "status_description": "On schedule"},
			{"text": "Train 40 staff"}
		],
		"target_text": "stale; legacy",
		"status_description": "ignored; values"
	}`)
	if err != nil {
		t.Fatalf("parse content: %v", err)
	}
	targets := TargetsFromContent(content)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Text != "Connect 500 households" || targets[0].StatusDescription != "On schedule" {
		t.Fatalf("unexpected first target: %+v", targets[0])
	}
	if targets[1].Text != "Train 40 staff" || targets[1].StatusDescription != "" {
		t.Fatalf("unexpected second target: %+v", targets[1])
	}
}

func TestTargetsFromContentExpandsLegacyPair(t *testing.T) {
	content, err := report.ParseFieldMap(`{
		"target_text": "A; B",
		"status_description": "S1; S2"
	}`)
	if err != nil {
		t.Fatalf("parse content: %v", err)
	}
	targets := TargetsFromContent(content)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0] != (report.Target{Text: "A", StatusDescription: "S1"}) {
		t.Fatalf("unexpected first target: %+v", targets[0])
	}
	if targets[1] != (report.Target{Text: "B", StatusDescription: "S2"}) {
		t.Fatalf("unexpected second target: %+v", targets[1])
	}
}

func TestTargetsFromContentAbsent(t *testing.T) {
	if got := TargetsFromContent(nil); got != nil {
		t.Fatalf("expected nil for nil content, got %+v", got)
	}
	content, err := report.ParseFieldMap(`{"rating": "on_track"}`)
	if err != nil {
		t.Fatalf("parse content: %v", err)
	}
	if got := TargetsFromContent(content); got != nil {
		t.Fatalf("expected nil when no target fields present, got %+v", got)
	}
}
