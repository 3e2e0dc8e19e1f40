// Package story собирает текст истории из шаблона сессии и ее ходов.
// Сборка - единственный источник правды о том, "как сейчас читается
// история": суммаризация, AI-переписывание и завершение сессии получают
// текст только отсюда.
package story

import (
	"regexp"
	"strings"

	"lips-server/internal/models"
)

// EmptyStoryFallback возвращается, когда в сессии нет ни шаблона, ни
// единого заполненного хода. Сборка никогда не отдает пустую строку.
const EmptyStoryFallback = "This story is still warming up — fill in more blanks to finish it."

// Assembler превращает шаблон и ходы в связный текст. Интерфейс
// изолирует стратегию подстановки: точную строковую замену можно
// заменить AST-шаблонизатором, не трогая вызывающий код.
type Assembler interface {
	Assemble(templateText *string, turns []*models.Turn) string
}

type placeholderAssembler struct{}

// NewAssembler возвращает сборщик на точной строковой замене токенов.
func NewAssembler() Assembler {
	return placeholderAssembler{}
}

// Assemble подставляет значения ходов вместо плейсхолдеров шаблона.
// Приоритет значения: submitted_text > auto_fill_text > fallback по
// имени слота, поэтому сборка не падает даже на незавершенной игре.
// Без шаблона (fallback-источник контента) значения склеиваются пробелами.
func (placeholderAssembler) Assemble(templateText *string, turns []*models.Turn) string {
	storyText := ""
	if templateText != nil {
		storyText = *templateText
	}

	if storyText != "" {
		for _, turn := range turns {
			if turn.Placeholder == nil || *turn.Placeholder == "" {
				continue
			}
			storyText = strings.ReplaceAll(storyText, *turn.Placeholder, FillValue(turn))
		}
	} else {
		values := make([]string, 0, len(turns))
		for _, turn := range turns {
			values = append(values, FillValue(turn))
		}
		storyText = strings.Join(values, " ")
	}

	if strings.TrimSpace(storyText) == "" {
		return EmptyStoryFallback
	}
	return storyText
}

var slotFromPlaceholder = regexp.MustCompile(`::([^\]]+)`)

// FillValue возвращает значение хода для подстановки в историю.
func FillValue(turn *models.Turn) string {
	if turn.SubmittedText != nil && *turn.SubmittedText != "" {
		return *turn.SubmittedText
	}
	if turn.AutoFillText != nil && *turn.AutoFillText != "" {
		return *turn.AutoFillText
	}
	return fallbackValue(turn)
}

// fallbackValue строит читаемое значение из имени слота:
// "body_part" -> "body part". Имя берется из плейсхолдера, если он есть,
// иначе из тега части речи.
func fallbackValue(turn *models.Turn) string {
	slot := "blank"
	if turn.PartOfSpeech != nil && *turn.PartOfSpeech != "" {
		slot = *turn.PartOfSpeech
	}
	if turn.Placeholder != nil {
		if match := slotFromPlaceholder.FindStringSubmatch(*turn.Placeholder); len(match) == 2 {
			slot = match[1]
		}
	}
	return strings.ReplaceAll(slot, "_", " ")
}
