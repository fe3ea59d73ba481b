// Package transcript parses free-form, role-tagged chat transcripts.
//
// A transcript is plain text where lines starting with a user marker ("<You>:")
// or an assistant marker ("<Assistant>:") open a turn. Every other non-empty line
// is kept: it either continues the open turn or becomes a user turn of its own,
// depending on the Policy. Parsing never fails and never drops non-empty input.
package transcript

import (
	"strings"

	"streamgate/internal/core"
)

const (
	// DefaultUserMarker opens a user turn.
	DefaultUserMarker = "<You>:"
	// DefaultAssistantMarker opens an assistant turn.
	DefaultAssistantMarker = "<Assistant>:"
)

// Policy controls provider-specific parsing behaviour.
type Policy struct {
	// Continuation merges unmarked lines into the open turn, joined by a single
	// space. When false each unmarked line becomes its own user turn.
	Continuation bool

	// SkipLeadingLine drops exactly one leading line (metadata such as a model
	// identifier) before classification begins.
	SkipLeadingLine bool

	// SystemTurn prepends a system turn built from the system prompt.
	// Providers that take the system prompt out-of-band leave this false.
	SystemTurn bool

	// UserMarker and AssistantMarker override the default markers when set.
	UserMarker      string
	AssistantMarker string
}

// WithOverrides returns a copy of the policy with per-model overrides applied.
func (p Policy) WithOverrides(o *core.ParserOverrides) Policy {
	if o == nil {
		return p
	}
	if o.SkipLeadingLine != nil {
		p.SkipLeadingLine = *o.SkipLeadingLine
	}
	if o.Continuation != nil {
		p.Continuation = *o.Continuation
	}
	return p
}

func (p Policy) markers() (user, assistant string) {
	user, assistant = p.UserMarker, p.AssistantMarker
	if user == "" {
		user = DefaultUserMarker
	}
	if assistant == "" {
		assistant = DefaultAssistantMarker
	}
	return user, assistant
}

// Parse converts raw transcript text into an ordered conversation.
func Parse(raw, systemPrompt string, policy Policy) core.Conversation {
	userMarker, assistantMarker := policy.markers()

	var conv core.Conversation
	if policy.SystemTurn {
		conv = append(conv, core.Turn{Role: core.RoleSystem, Content: systemPrompt})
	}

	lines := splitLines(raw)
	if policy.SkipLeadingLine && len(lines) > 0 {
		lines = lines[1:]
	}

	// open tracks the turn currently accepting continuation lines.
	var open *turnBuilder
	var builders []*turnBuilder
	start := func(role core.Role, text string) {
		open = &turnBuilder{role: role}
		open.add(text)
		builders = append(builders, open)
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, userMarker):
			start(core.RoleUser, strings.TrimSpace(line[len(userMarker):]))
		case strings.HasPrefix(line, assistantMarker):
			start(core.RoleAssistant, strings.TrimSpace(line[len(assistantMarker):]))
		case line == "":
			continue
		case policy.Continuation && open != nil:
			open.add(line)
		default:
			start(core.RoleUser, line)
		}
	}

	for _, b := range builders {
		conv = append(conv, b.turn())
	}
	return conv
}

// turnBuilder accumulates the lines of one turn.
type turnBuilder struct {
	role  core.Role
	parts []string
}

func (b *turnBuilder) add(text string) {
	if text != "" {
		b.parts = append(b.parts, text)
	}
}

func (b *turnBuilder) turn() core.Turn {
	return core.Turn{Role: b.role, Content: strings.Join(b.parts, " ")}
}

// splitLines splits on \n, \r\n and lone \r.
func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return strings.Split(raw, "\n")
}
