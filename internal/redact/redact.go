// Package redact scrubs sensor payloads before they enter the context cache.
// Source-specific filters run first (content removal, URL stripping, size
// caps), then pattern rules rewrite every string leaf. Rules are ordered
// strongest to weakest so weaker transforms never mutate stronger
// replacements.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/user/neuroclaw/internal/payload"
	"github.com/user/neuroclaw/internal/types"
)

// Source filter limits.
const (
	TerminalLineCap      = 100
	ClipboardTextBytes   = 10 * 1024
	EditorSelectionBytes = 8 * 1024
)

// Result is the scrubbed payload plus the redaction envelope metadata.
type Result struct {
	Payload   payload.Value
	Redaction types.Redaction
	Bounds    types.Bounds
}

type state struct {
	level   types.RedactionLevel
	reasons map[string]struct{}
	dropped bool
}

func (st *state) add(level types.RedactionLevel, reason string, dropped bool) {
	st.reasons[reason] = struct{}{}
	st.level = types.MaxLevel(st.level, level)
	if dropped {
		st.dropped = true
	}
}

type rule struct {
	level   types.RedactionLevel
	reason  string
	pattern *regexp.Regexp
	// replace receives the full match at groups[0] and submatches after it.
	replace func(groups []string) string
}

var rules = []rule{
	{
		level:   types.RedactionBlock,
		reason:  "pattern.secret.private_key_block",
		pattern: regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.+?-----END [A-Z ]*PRIVATE KEY-----`),
		replace: func([]string) string { return "[REDACTED:PRIVATE_KEY_BLOCK]" },
	},
	{
		level:  types.RedactionHash,
		reason: "pattern.secret.assignment",
		// The value class excludes quote characters, so a closing quote in
		// the input survives outside the match.
		pattern: regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:KEY|TOKEN|SECRET|PASSWORD|PASSWD)|api[_-]?key|token|secret|password|passwd)\b(\s*[:=]\s*)(["']?)([^\s"'` + "`" + `]+)`),
		replace: func(groups []string) string {
			return groups[1] + groups[2] + groups[3] + hashLiteral(groups[4])
		},
	},
	{
		level:   types.RedactionHash,
		reason:  "pattern.secret.json_field",
		pattern: regexp.MustCompile(`(?i)"(?:apiKey|token|secret|password|passwd|accessToken|refreshToken)"\s*:\s*"([^"]+)"`),
		replace: func(groups []string) string {
			return strings.Replace(groups[0], groups[1], hashLiteral(groups[1]), 1)
		},
	},
	{
		level:   types.RedactionHash,
		reason:  "pattern.secret.bearer",
		pattern: regexp.MustCompile(`\bBearer\s+([A-Za-z0-9._\-+=]{12,})\b`),
		replace: func(groups []string) string { return "Bearer " + hashLiteral(groups[1]) },
	},
	{
		level:   types.RedactionHash,
		reason:  "pattern.secret.provider_token",
		pattern: regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{8,}|ghp_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9_]{20,}|xox[baprs]-[A-Za-z0-9-]{10,}|xapp-[A-Za-z0-9-]{10,}|AIza[0-9A-Za-z\-_]{20,}|npm_[A-Za-z0-9]{10,}|\d{6,}:[A-Za-z0-9_-]{20,})\b`),
		replace: func(groups []string) string { return hashLiteral(groups[1]) },
	},
	{
		level:   types.RedactionMask,
		reason:  "pattern.sensitive.email",
		pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		replace: func(groups []string) string { return maskEmail(groups[0]) },
	},
	{
		level:   types.RedactionMask,
		reason:  "pattern.sensitive.phone",
		pattern: regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`),
		replace: func(groups []string) string { return maskLiteral(groups[0], 2, 2) },
	},
}

var (
	fsBlockedFieldPattern = regexp.MustCompile(`(?i)^(content|contents|raw|raw_text|rawtext|blob|base64|buffer|bytes|data)$`)
	lineBreakPattern      = regexp.MustCompile(`\r?\n`)

	clipboardTextKeys = map[string]bool{"text": true, "content": true}
	editorTextKeys    = map[string]bool{"selection": true, "text": true}
	terminalTextKeys  = map[string]bool{"text": true, "output": true, "stdout": true, "stderr": true, "line": true}
)

// Apply scrubs the payload for the given source and reports what happened.
// Non-object payloads are treated as empty objects.
func Apply(source types.Source, p payload.Value) Result {
	st := &state{level: types.RedactionNone, reasons: map[string]struct{}{}}
	obj := p
	if obj.Kind() != payload.KindObject {
		obj = payload.Object(nil)
	}
	filtered := applySourceFilter(source, obj, st)
	redacted := filtered.MapStrings(func(_ []string, s string) string {
		return redactString(s, st)
	})
	reasons := make([]string, 0, len(st.reasons))
	for reason := range st.reasons {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	return Result{
		Payload: redacted,
		Redaction: types.Redaction{
			Applied: len(reasons) > 0,
			Level:   st.level,
			Reasons: reasons,
		},
		Bounds: types.Bounds{
			Bytes:   redacted.Bytes(),
			Dropped: st.dropped,
		},
	}
}

func applySourceFilter(source types.Source, obj payload.Value, st *state) payload.Value {
	switch source {
	case types.SourceFS:
		return filterFSFields(obj, st)
	case types.SourceActiveWindow:
		return obj.MapStrings(func(path []string, value string) string {
			if len(path) == 0 || path[len(path)-1] != "url" {
				return value
			}
			stripped := stripURLSensitiveParts(value)
			if stripped != value {
				st.add(types.RedactionMask, "source.filter.active_window_url_query_removed", true)
			}
			return stripped
		})
	case types.SourceTerminal:
		return obj.MapStrings(func(path []string, value string) string {
			if !keyMatches(path, terminalTextKeys) {
				return value
			}
			capped := keepLastLines(value, TerminalLineCap)
			if capped != value {
				st.add(types.RedactionNone, "source.filter.terminal_line_cap", true)
			}
			return capped
		})
	case types.SourceClipboard:
		return obj.MapStrings(func(path []string, value string) string {
			if !keyMatches(path, clipboardTextKeys) {
				return value
			}
			capped := truncateUTF8(value, ClipboardTextBytes)
			if capped != value {
				st.add(types.RedactionNone, "source.filter.clipboard_byte_cap", true)
			}
			return capped
		})
	case types.SourceEditor:
		return obj.MapStrings(func(path []string, value string) string {
			if !keyMatches(path, editorTextKeys) {
				return value
			}
			capped := truncateUTF8(value, EditorSelectionBytes)
			if capped != value {
				st.add(types.RedactionNone, "source.filter.editor_selection_byte_cap", true)
			}
			return capped
		})
	}
	return obj
}

func keyMatches(path []string, keys map[string]bool) bool {
	if len(path) == 0 {
		return false
	}
	return keys[path[len(path)-1]]
}

// filterFSFields drops raw-content fields anywhere in the payload tree.
// File events carry paths and actions only.
func filterFSFields(v payload.Value, st *state) payload.Value {
	switch v.Kind() {
	case payload.KindArray:
		items := v.Items()
		next := make([]payload.Value, len(items))
		for i, item := range items {
			next[i] = filterFSFields(item, st)
		}
		return payload.Array(next...)
	case payload.KindObject:
		next := make(map[string]payload.Value, v.Len())
		for _, key := range v.Keys() {
			if fsBlockedFieldPattern.MatchString(key) {
				st.add(types.RedactionBlock, "source.filter.fs_payload_content_removed", true)
				continue
			}
			field, _ := v.Field(key)
			next[key] = filterFSFields(field, st)
		}
		return payload.Object(next)
	default:
		return v
	}
}

func redactString(value string, st *state) string {
	next := value
	for _, r := range rules {
		replaced, count := replaceAllSubmatch(r.pattern, next, r.replace)
		if count > 0 {
			st.add(r.level, r.reason, false)
			next = replaced
		}
	}
	return next
}

// replaceAllSubmatch rewrites every match using a submatch-aware callback.
// groups[0] is the full match; unmatched optional groups are empty.
func replaceAllSubmatch(re *regexp.Regexp, s string, repl func(groups []string) string) (string, int) {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, 0
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		groups := make([]string, len(m)/2)
		for i := 0; i < len(m); i += 2 {
			if m[i] >= 0 {
				groups[i/2] = s[m[i]:m[i+1]]
			}
		}
		b.WriteString(repl(groups))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), len(matches)
}

func stripURLSensitiveParts(value string) string {
	if u, err := url.Parse(value); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		u.ForceQuery = false
		return u.String()
	}
	noHash, _, _ := strings.Cut(value, "#")
	noQuery, _, _ := strings.Cut(noHash, "?")
	return noQuery
}

func keepLastLines(value string, lineCap int) string {
	lines := lineBreakPattern.Split(value, -1)
	if len(lines) <= lineCap {
		return value
	}
	return strings.Join(lines[len(lines)-lineCap:], "\n")
}

// truncateUTF8 cuts the string to at most maxBytes without splitting a rune.
func truncateUTF8(value string, maxBytes int) string {
	if len(value) <= maxBytes {
		return value
	}
	n := maxBytes
	for n > 0 && !utf8.RuneStart(value[n]) {
		n--
	}
	return value[:n]
}

func hashLiteral(value string) string {
	if value == "" {
		return "sha256:empty"
	}
	sum := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(sum[:])[:16]
}

func maskLiteral(value string, keepStart, keepEnd int) string {
	runes := []rune(value)
	if len(runes) <= keepStart+keepEnd {
		return "***"
	}
	return string(runes[:keepStart]) + "***" + string(runes[len(runes)-keepEnd:])
}

func maskEmail(value string) string {
	local, domain, ok := strings.Cut(value, "@")
	if !ok || local == "" || domain == "" {
		return maskLiteral(value, 1, 1)
	}
	runes := []rune(local)
	if len(runes) == 1 {
		return "*@" + domain
	}
	return string(runes[:1]) + "***" + string(runes[len(runes)-1:]) + "@" + domain
}
