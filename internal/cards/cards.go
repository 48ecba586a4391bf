// Package cards instantiates the bot's interactive card templates.
//
// A template is an abstract card body holding {{placeholder}} markers.
// Render substitutes the caller's named values plus the locale catalog's
// strings and wraps the result as a message attachment with a markdown
// fallback. The orchestration core only ever supplies template ids and
// substitutions; the card shape stays in here.
package cards

import (
	"fmt"
	"strings"

	"github.com/roach88/quorum/internal/platform"
)

// Template identifiers the core may request.
const (
	TemplateWelcome      = "welcome"
	TemplateStartMeeting = "start_meeting"
	TemplateEndMeeting   = "end_meeting"
	TemplatePoll         = "poll"
	TemplatePollResults  = "poll_results"
	TemplateRoomSettings = "room_settings"
	TemplateUserSettings = "user_settings"
	TemplateRejection    = "rejection"
	TemplateHelp         = "help"
)

// Renderer implements platform.CardRenderer over the built-in templates.
type Renderer struct{}

// NewRenderer returns a renderer over the built-in template set.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Card is the instantiated interactive body. The shape mirrors the
// adaptive-card layout the chat platform expects; the core treats it as
// opaque.
type Card struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

// Action is one submit button on a card.
type Action struct {
	Title string
	ID    string
}

// Render instantiates templateID with subs for locale.
func (r *Renderer) Render(templateID string, subs map[string]string, locale string) (platform.Attachment, error) {
	cat := catalogFor(locale)

	tmpl, ok := templates[templateID]
	if !ok {
		return platform.Attachment{}, fmt.Errorf("render card: unknown template %q", templateID)
	}

	card := tmpl(cat)
	for name, value := range subs {
		card = substituteCard(card, name, value)
	}

	return platform.Attachment{
		Body:     card,
		Markdown: cat["fallback_msg"],
	}, nil
}

var _ platform.CardRenderer = (*Renderer)(nil)

// substituteCard replaces {{name}} markers throughout the card body.
func substituteCard(card Card, name, value string) Card {
	card.Body = substitute(card.Body, name, value).([]any)
	return card
}

// substitute walks a nested structure of maps, slices, and strings,
// replacing {{name}} markers in every string it finds.
func substitute(structure any, name, value string) any {
	switch v := structure.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = substitute(item, name, value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = substitute(item, name, value)
		}
		return out
	case string:
		return replaceMarker(v, name, value)
	default:
		return structure
	}
}

func replaceMarker(s, name, value string) string {
	return strings.ReplaceAll(s, "{{"+name+"}}", value)
}
