package xivemotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderTestEmote() *EmoteDefinition {
	return &EmoteDefinition{
		ID:      105,
		Name:    "Hug",
		Command: "/hug",
		EN: MessagePair{
			Targeted: "ObjectParameter(1) gives ObjectParameter(2) a " +
				"<SheetEn(Attributive,2,PlayerParameter(7),1)> hug.",
			Untargeted: "ObjectParameter(1) hugs " +
				"<If(PlayerParameter(5))>himself<Else/>herself</If>.",
		},
		JA: MessagePair{
			Targeted:   "ObjectParameter(1)はObjectParameter(2)を抱きしめた。",
			Untargeted: "ObjectParameter(1)は自分を抱きしめた。",
		},
	}
}

func TestRenderTargeted(t *testing.T) {
	t.Parallel()
	renderer := NewTemplateRenderer()

	text, err := renderer.Render(
		renderTestEmote(),
		Settings{Language: LanguageEN, Gender: GenderMale},
		"<@100>",
		"<@101>",
	)
	require.NoError(t, err)
	// residual sheet markup is stripped
	assert.Equal(t, "<@100> gives <@101> a  hug.", text)
}

func TestRenderKeepsMentionSyntax(t *testing.T) {
	t.Parallel()
	renderer := NewTemplateRenderer()

	// Mentions look like markup (<@100>), so the markup strip must run
	// before the origin/target slots are filled in.
	text, err := renderer.Render(
		renderTestEmote(),
		Settings{Language: LanguageEN, Gender: GenderMale},
		"<@100>",
		"<@101>",
	)
	require.NoError(t, err)
	assert.Contains(t, text, "<@100>")
	assert.Contains(t, text, "<@101>")
}

func TestRenderUntargetedGenderBranch(t *testing.T) {
	t.Parallel()
	renderer := NewTemplateRenderer()

	for _, tc := range []struct {
		name   string
		gender Gender
		want   string
	}{
		{"male", GenderMale, "<@100> hugs himself."},
		{"female", GenderFemale, "<@100> hugs herself."},
	} {
		t.Run(tc.name, func(t *testing.T) {
			text, err := renderer.Render(
				renderTestEmote(),
				Settings{Language: LanguageEN, Gender: tc.gender},
				"<@100>",
				"",
			)
			require.NoError(t, err)
			assert.Equal(t, tc.want, text)
		})
	}
}

func TestRenderJapanese(t *testing.T) {
	t.Parallel()
	renderer := NewTemplateRenderer()

	text, err := renderer.Render(
		renderTestEmote(),
		Settings{Language: LanguageJA, Gender: GenderFemale},
		"<@100>",
		"<@101>",
	)
	require.NoError(t, err)
	assert.Equal(t, "<@100>は<@101>を抱きしめた。", text)

	text, err = renderer.Render(
		renderTestEmote(),
		Settings{Language: LanguageJA, Gender: GenderFemale},
		"<@100>",
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, "<@100>は自分を抱きしめた。", text)
}

func TestRenderTargetRequired(t *testing.T) {
	t.Parallel()
	renderer := NewTemplateRenderer()

	// some emotes only make sense aimed at someone, so their untargeted
	// template still references the target slot
	emote := &EmoteDefinition{
		ID:      141,
		Command: "/poke",
		EN: MessagePair{
			Targeted:   "ObjectParameter(1) pokes ObjectParameter(2).",
			Untargeted: "ObjectParameter(1) pokes ObjectParameter(2).",
		},
		JA: MessagePair{
			Targeted:   "ObjectParameter(1)はObjectParameter(2)をつついた。",
			Untargeted: "ObjectParameter(1)はObjectParameter(2)をつついた。",
		},
	}

	_, err := renderer.Render(
		emote,
		Settings{Language: LanguageEN, Gender: GenderMale},
		"<@100>",
		"",
	)
	require.ErrorIs(t, err, ErrTargetRequired)
}

func TestRenderNilEmote(t *testing.T) {
	t.Parallel()
	renderer := NewTemplateRenderer()
	_, err := renderer.Render(nil, Settings{}, "<@100>", "")
	require.Error(t, err)
}
