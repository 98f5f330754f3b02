package capture

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/user/neuroclaw/internal/payload"
	"github.com/user/neuroclaw/internal/types"
)

// Desktop environments word these differently, so match broadly.
var permissionDeniedPattern = regexp.MustCompile(
	`(?i)(permission denied|access is denied|not authorized|not permitted|requires accessibility)`)

// CommandSensor shells out to the first candidate command that exists and
// wraps its stdout into a single text field. A missing tool, empty output,
// or a permission refusal all count as no data rather than an error.
type CommandSensor struct {
	source     types.Source
	field      string
	candidates [][]string
}

func NewCommandSensor(source types.Source, field string, candidates [][]string) *CommandSensor {
	return &CommandSensor{source: source, field: field, candidates: candidates}
}

// NewClipboardSensor builds the platform clipboard reader.
func NewClipboardSensor() *CommandSensor {
	var candidates [][]string
	switch runtime.GOOS {
	case "darwin":
		candidates = [][]string{{"pbpaste"}}
	case "windows":
		candidates = [][]string{{"powershell", "-NoProfile", "-Command", "Get-Clipboard"}}
	default:
		candidates = [][]string{
			{"wl-paste", "-n"},
			{"xclip", "-selection", "clipboard", "-o"},
		}
	}
	return NewCommandSensor(types.SourceClipboard, "text", candidates)
}

// NewActiveWindowSensor reads the focused window title. X11 needs xdotool;
// on macOS the System Events query works without extra tooling but may
// require an accessibility grant.
func NewActiveWindowSensor() *CommandSensor {
	var candidates [][]string
	switch runtime.GOOS {
	case "darwin":
		candidates = [][]string{{
			"osascript", "-e",
			`tell application "System Events" to get name of first application process whose frontmost is true`,
		}}
	default:
		candidates = [][]string{
			{"xdotool", "getactivewindow", "getwindowname"},
		}
	}
	return NewCommandSensor(types.SourceActiveWindow, "title", candidates)
}

func (s *CommandSensor) Source() types.Source {
	return s.source
}

func (s *CommandSensor) Collect(ctx context.Context) (payload.Value, error) {
	for _, candidate := range s.candidates {
		if _, err := exec.LookPath(candidate[0]); err != nil {
			continue
		}
		cmd := exec.CommandContext(ctx, candidate[0], candidate[1:]...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if permissionDeniedPattern.MatchString(stderr.String()) {
				return payload.Null(), nil
			}
			return payload.Null(), err
		}
		text := strings.TrimRight(stdout.String(), "\n")
		if text == "" {
			return payload.Null(), nil
		}
		return payload.Object(map[string]payload.Value{
			s.field: payload.String(text),
		}), nil
	}
	return payload.Null(), nil
}
