package trace

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Format selects how events are rendered.
type Format uint8

const (
	FormatAuto   Format = iota // text, or ndjson for .json/.ndjson outputs
	FormatText                 // one indented line per event
	FormatNDJSON               // one JSON object per line
)

// ParseFormat accepts auto, text, ndjson and json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format %q (want auto|text|ndjson)", s)
}

// formatFor resolves FormatAuto against the output path.
func formatFor(f Format, path string) Format {
	if f != FormatAuto {
		return f
	}
	if strings.HasSuffix(path, ".ndjson") || strings.HasSuffix(path, ".json") {
		return FormatNDJSON
	}
	return FormatText
}

// FormatEvent renders ev as one line, newline included.
func FormatEvent(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return appendJSON(nil, ev)
	}
	return appendText(nil, ev)
}

type jsonEvent struct {
	Time     string            `json:"time"`
	Seq      uint64            `json:"seq"`
	Kind     string            `json:"kind"`
	Scope    string            `json:"scope"`
	SpanID   uint64            `json:"span_id,omitempty"`
	ParentID uint64            `json:"parent_id,omitempty"`
	Name     string            `json:"name"`
	Detail   string            `json:"detail,omitempty"`
	Failure  bool              `json:"failure,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

func appendJSON(dst []byte, ev *Event) []byte {
	data, err := json.Marshal(jsonEvent{
		Time:     ev.Time.Format(time.RFC3339Nano),
		Seq:      ev.Seq,
		Kind:     ev.Kind.String(),
		Scope:    ev.Scope.String(),
		SpanID:   ev.SpanID,
		ParentID: ev.ParentID,
		Name:     ev.Name,
		Detail:   ev.Detail,
		Failure:  ev.Failure,
		Extra:    ev.Extra,
	})
	if err != nil {
		data = fmt.Appendf(nil, `{"seq":%d,"kind":"invalid"}`, ev.Seq)
	}
	dst = append(dst, data...)
	return append(dst, '\n')
}

// appendText renders "[seq] →/←/•/! name (detail) {k=v, ...}". Child
// events are indented.
func appendText(dst []byte, ev *Event) []byte {
	dst = fmt.Appendf(dst, "[%6d] ", ev.Seq)
	if ev.ParentID != 0 {
		dst = append(dst, "  "...)
	}
	mark := "• "
	switch {
	case ev.Kind == KindSpanBegin:
		mark = "→ "
	case ev.Kind == KindSpanEnd:
		mark = "← "
	case ev.Failure:
		mark = "! "
	}
	dst = append(dst, mark...)
	dst = append(dst, ev.Name...)
	if ev.Detail != "" {
		dst = fmt.Appendf(dst, " (%s)", ev.Detail)
	}
	if len(ev.Extra) > 0 {
		dst = append(dst, " {"...)
		for i, k := range slices.Sorted(maps.Keys(ev.Extra)) {
			if i > 0 {
				dst = append(dst, ", "...)
			}
			dst = fmt.Appendf(dst, "%s=%s", k, ev.Extra[k])
		}
		dst = append(dst, '}')
	}
	return append(dst, '\n')
}
