// File path: internal/lifecycle/targets.go
package lifecycle

import (
	"strings"

	"github.com/civicworks/progressd/internal/report"
)

// Content keys carrying target data. "targets" holds the canonical discrete
// list; the legacy pair encodes every target in two semicolon-delimited
// strings that must be expanded at the read boundary and never re-encoded.
const (
	targetsField            = "targets"
	legacyTargetTextField   = "target_text"
	legacyTargetStatusField = "status_description"
)

// TargetsFromContent reads the canonical discrete-target list out of a
// submission's content, expanding the legacy semicolon-encoded pair when
// that is the stored representation.
func TargetsFromContent(content *report.FieldMap) []report.Target {
	if content == nil {
		return nil
	}
	if value, ok := content.Get(targetsField); ok && value.Kind() == report.KindList {
		return targetsFromList(value.ListVal())
	}
	textValue, ok := content.Get(legacyTargetTextField)
	if !ok || textValue.Kind() != report.KindString {
		return nil
	}
	status := ""
	if statusValue, ok := content.Get(legacyTargetStatusField); ok && statusValue.Kind() == report.KindString {
		status = statusValue.StringVal()
	}
	return ExpandLegacyTargets(textValue.StringVal(), status)
}

func targetsFromList(items []report.Value) []report.Target {
	targets := make([]report.Target, 0, len(items))
	for _, item := range items {
		if item.Kind() != report.KindMap {
			continue
		}
		entry := item.MapVal()
		target := report.Target{}
		if v, ok := entry.Get("text"); ok && v.Kind() == report.KindString {
			target.Text = v.StringVal()
		}
		if v, ok := entry.Get("status_description"); ok && v.Kind() == report.KindString {
			target.StatusDescription = v.StringVal()
		}
		if target.Text == "" && target.StatusDescription == "" {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

// ExpandLegacyTargets splits a semicolon-delimited text/status pair into
// discrete targets. Parts pair by positional index, whitespace is trimmed, a
// missing status stays empty, and targets with no text are dropped.
func ExpandLegacyTargets(text, statusDescription string) []report.Target {
	texts := splitLegacyParts(text)
	statuses := splitLegacyParts(statusDescription)
	count := len(texts)
	if len(statuses) > count {
		count = len(statuses)
	}
	targets := make([]report.Target, 0, count)
	for idx := 0; idx < count; idx++ {
		target := report.Target{}
		if idx < len(texts) {
			target.Text = texts[idx]
		}
		if idx < len(statuses) {
			target.StatusDescription = statuses[idx]
		}
		if target.Text == "" {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

func splitLegacyParts(value string) []string {
	parts := strings.Split(value, ";")
	out := make([]string, len(parts))
	for idx, part := range parts {
		out[idx] = strings.TrimSpace(part)
	}
	return out
}
