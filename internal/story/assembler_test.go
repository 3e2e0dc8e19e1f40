package story_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lips-server/internal/models"
	"lips-server/internal/story"
)

func strPtr(s string) *string { return &s }

func TestAssemble_ReplacesPlaceholders(t *testing.T) {
	assembler := story.NewAssembler()
	template := "We [[VERB_1::verb]] into the [[PLACE_11::place]]!"
	turns := []*models.Turn{
		{Placeholder: strPtr("[[VERB_1::verb]]"), SubmittedText: strPtr("teleport")},
		{Placeholder: strPtr("[[PLACE_11::place]]"), SubmittedText: strPtr("vault")},
	}

	got := assembler.Assemble(&template, turns)

	assert.Equal(t, "We teleport into the vault!", got)
}

func TestAssemble_ValuePrecedence(t *testing.T) {
	// submitted_text важнее auto_fill_text, auto_fill_text важнее fallback
	turn := &models.Turn{
		Placeholder:   strPtr("[[VERB_1::verb]]"),
		SubmittedText: strPtr("sprint"),
		AutoFillText:  strPtr("walk"),
	}
	assert.Equal(t, "sprint", story.FillValue(turn))

	turn.SubmittedText = nil
	assert.Equal(t, "walk", story.FillValue(turn))

	turn.AutoFillText = nil
	assert.Equal(t, "verb", story.FillValue(turn))
}

func TestFillValue_FallbackFromSlotName(t *testing.T) {
	turn := &models.Turn{Placeholder: strPtr("[[BODY_PART_10::body_part]]")}
	assert.Equal(t, "body part", story.FillValue(turn))

	// Без плейсхолдера имя берется из тега части речи
	turn = &models.Turn{PartOfSpeech: strPtr("silly_word")}
	assert.Equal(t, "silly word", story.FillValue(turn))

	// Совсем пустой ход
	assert.Equal(t, "blank", story.FillValue(&models.Turn{}))
}

func TestAssemble_WithoutTemplateJoinsValues(t *testing.T) {
	assembler := story.NewAssembler()
	turns := []*models.Turn{
		{SubmittedText: strPtr("one")},
		{AutoFillText: strPtr("two")},
	}

	assert.Equal(t, "one two", assembler.Assemble(nil, turns))
}

func TestAssemble_NeverReturnsEmpty(t *testing.T) {
	assembler := story.NewAssembler()

	assert.Equal(t, story.EmptyStoryFallback, assembler.Assemble(nil, nil))

	empty := "   "
	assert.Equal(t, story.EmptyStoryFallback, assembler.Assemble(&empty, nil))
}

func TestAssemble_UnfilledTurnsGetReadableFallback(t *testing.T) {
	assembler := story.NewAssembler()
	template := "A [[COLOR_9::color]] [[ANIMAL_8::animal]] appears."
	turns := []*models.Turn{
		{Placeholder: strPtr("[[COLOR_9::color]]"), SubmittedText: strPtr("crimson")},
		{Placeholder: strPtr("[[ANIMAL_8::animal]]")},
	}

	got := assembler.Assemble(&template, turns)

	assert.Equal(t, "A crimson animal appears.", got)
}
