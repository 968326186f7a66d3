package xivemotes

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrTargetRequired indicates a targeted template was rendered without
// a target name.
var ErrTargetRequired = errors.New("template requires a target")

// MessageRenderer turns an emote definition plus resolved display
// settings into the reply text. The bot only depends on this boundary;
// templateRenderer is the implementation shipped with the repo.
type MessageRenderer interface {
	// Render produces the reply for one invocation. origin is the
	// invoking user's mention string; target is empty for untargeted
	// invocations.
	Render(
		emote *EmoteDefinition,
		settings Settings,
		origin string,
		target string,
	) (string, error)
}

var (
	// ObjectParameter(1) is the message origin, ObjectParameter(2) the
	// target, in the game's log message markup.
	originParamPattern = regexp.MustCompile(`ObjectParameter\(1\)`)
	targetParamPattern = regexp.MustCompile(`ObjectParameter\(2\)`)

	// PlayerParameter(5) is the origin's gender flag: the If body
	// applies to male characters, the Else branch to female.
	genderBranchPattern = regexp.MustCompile(
		`<If\(PlayerParameter\(5\)\)>(.*?)<Else/>(.*?)</If>`,
	)

	// Markup left after the gender branch is resolved is
	// presentation-only (sheet references, formatting) and is dropped.
	residualTagPattern = regexp.MustCompile(`<[^<>]*>`)
)

// templateRenderer renders the raw log message markup fetched from
// XIVAPI. It resolves the origin/target parameters and the gender
// conditional, and strips any remaining markup. It holds no state and
// is safe for concurrent use.
type templateRenderer struct{}

// NewTemplateRenderer returns the built-in MessageRenderer.
func NewTemplateRenderer() MessageRenderer {
	return templateRenderer{}
}

func (templateRenderer) Render(
	emote *EmoteDefinition,
	settings Settings,
	origin string,
	target string,
) (string, error) {
	if emote == nil {
		return "", errors.New("nil emote definition")
	}
	pair := emote.Messages(settings.Language)
	template := pair.Untargeted
	if target != "" {
		template = pair.Targeted
	}
	if template == "" {
		return "", fmt.Errorf("emote %s has no %s template", emote.Command, settings.Language)
	}

	text := genderBranchPattern.ReplaceAllStringFunc(
		template,
		func(match string) string {
			groups := genderBranchPattern.FindStringSubmatch(match)
			if settings.Gender == GenderFemale {
				return groups[2]
			}
			return groups[1]
		},
	)

	if targetParamPattern.MatchString(text) && target == "" {
		return "", fmt.Errorf("emote %s: %w", emote.Command, ErrTargetRequired)
	}

	// Strip leftover markup before substituting, so Discord mention
	// syntax in origin/target is never treated as markup.
	text = residualTagPattern.ReplaceAllString(text, "")
	text = originParamPattern.ReplaceAllString(text, origin)
	text = targetParamPattern.ReplaceAllString(text, target)

	return strings.TrimSpace(text), nil
}
