// Package templates строит шаблоны "заполни пропуски": упорядоченный
// набор пропусков из фиксированного словаря типов слотов, перемежаемый
// жанровым вступлением и заготовленными сегментами предложений.
// Генерация чистая и детерминированная: одинаковые входы дают
// одинаковый шаблон (на этом держатся тесты и повторная генерация).
package templates

import (
	"fmt"
	"regexp"
	"strings"
)

// Options - входные параметры генерации.
type Options struct {
	Genre    string
	Length   string // quick | classic | epic
	SeedText string // вставляется первым сегментом, если задан
}

// Blank - один пропуск шаблона.
type Blank struct {
	ID          string `json:"id"`
	Slot        string `json:"slot"`
	Prompt      string `json:"prompt"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// Metadata - сводка по собранному шаблону.
type Metadata struct {
	WordCount  int            `json:"wordCount"`
	BlankCount int            `json:"blankCount"`
	TagCounts  map[string]int `json:"tagCounts"`
}

// Template - результат генерации.
// Template содержит плейсхолдеры вида [[VERB_1::verb]],
// OriginalText - превью, где плейсхолдеры заменены подчеркиваниями.
type Template struct {
	Template     string   `json:"template"`
	OriginalText string   `json:"originalText"`
	Blanks       []Blank  `json:"blanks"`
	Metadata     Metadata `json:"metadata"`
}

type slotDef struct {
	prompt      string
	description string
	example     string
}

// Фиксированный порядок слотов. Порядок и состав определяют и порядок
// ходов сессии, менять без миграции данных нельзя.
var slotOrder = []string{
	"verb",
	"verb_past",
	"verb_ing",
	"adjective",
	"adverb",
	"number",
	"exclamation",
	"animal",
	"color",
	"body_part",
	"place",
	"person_name",
	"occupation",
	"emotion",
	"food",
	"liquid",
	"vehicle",
	"celebrity",
	"object",
	"sound",
	"relative",
	"clothing",
	"silly_word",
}

var slotDefs = map[string]slotDef{
	"verb":        {"Verb", "Action word in present tense — something happening right now.", "sprint"},
	"verb_past":   {"Verb (past tense)", "Action that already happened.", "hacked"},
	"verb_ing":    {"Verb (ending in -ing)", "Action in progress or ongoing.", "glitching"},
	"adjective":   {"Adjective", "Word that describes a noun.", "luminous"},
	"adverb":      {"Adverb", "Word that describes how an action happens.", "urgently"},
	"number":      {"Number", "Any number helps track scale or stakes.", "47"},
	"exclamation": {"Exclamation / Interjection", "A quick burst of feeling or surprise.", "Blast!"},
	"animal":      {"Animal", "Any creature, real or imagined.", "manta ray"},
	"color":       {"Color", "Shade, hue, or combination of colors.", "crimson"},
	"body_part":   {"Body Part", "Part of a body or anatomy.", "left antenna"},
	"place":       {"Place", "Location, setting, or realm.", "floating market"},
	"person_name": {"Person's Name", "Name, alias, or handle.", "Nova Vance"},
	"occupation":  {"Occupation", "Job, role, or calling.", "timeline archivist"},
	"emotion":     {"Emotion", "Feeling or mood.", "awe"},
	"food":        {"Food", "Anything edible or tasty.", "starfruit tart"},
	"liquid":      {"Liquid", "Any fluid, mundane or exotic.", "aurora syrup"},
	"vehicle":     {"Vehicle", "Something used for transport.", "hoverbike"},
	"celebrity":   {"Celebrity", "Famous person (real or in-universe).", "Celeste Halo"},
	"object":      {"Object / Thing", "Physical item or artifact.", "quantum compass"},
	"sound":       {"Sound / Noise", "Distinct noise, tone, or effect.", "static hiss"},
	"relative":    {"Relative", "Family connection or chosen kin.", "great-aunt"},
	"clothing":    {"Clothing Item", "Something someone can wear.", "gravity boots"},
	"silly_word":  {"Silly Word", "Playful nonsense or made-up slang.", "zizzle"},
}

var placeholderPattern = regexp.MustCompile(`\[\[[^\]]+\]\]`)

// PlaceholderToken возвращает токен плейсхолдера в каноническом формате
// [[ID::SLOT]].
func PlaceholderToken(id, slot string) string {
	return fmt.Sprintf("[[%s::%s]]", strings.ToUpper(id), slot)
}

// Generate строит шаблон по заданным параметрам.
func Generate(opts Options) Template {
	blanks := buildBlankCandidates()

	placeholders := make([]string, len(blanks))
	for i, blank := range blanks {
		placeholders[i] = PlaceholderToken(blank.ID, blank.Slot)
	}

	verb := placeholders[0]
	verbPast := placeholders[1]
	verbIng := placeholders[2]
	adjective := placeholders[3]
	adverb := placeholders[4]
	number := placeholders[5]
	exclamation := placeholders[6]
	animal := placeholders[7]
	color := placeholders[8]
	bodyPart := placeholders[9]
	place := placeholders[10]
	personName := placeholders[11]
	occupation := placeholders[12]
	emotion := placeholders[13]
	food := placeholders[14]
	liquid := placeholders[15]
	vehicle := placeholders[16]
	celebrity := placeholders[17]
	object := placeholders[18]
	sound := placeholders[19]
	relative := placeholders[20]
	clothing := placeholders[21]
	sillyWord := placeholders[22]

	segments := []string{
		fmt.Sprintf("%s! We must %s the vault before the timer flashes %s times.", exclamation, verb, number),
		fmt.Sprintf("We already %s across the %s, so %s — our %s — double-checks the %s.", verbPast, place, personName, occupation, object),
		fmt.Sprintf("Our %s crew keeps %s %s, feeding off pure %s to stay focused.", adjective, verbIng, adverb, emotion),
		fmt.Sprintf("A %s %s bumps everyone's %s for luck while passing around %s.", color, animal, bodyPart, food),
		fmt.Sprintf("%s tops off the %s with %s, bragging that even %s approved of the recipe.", personName, vehicle, liquid, celebrity),
		fmt.Sprintf("A burst of %s from %s's comm reminds us to pack the spare %s labeled \"%s\".", sound, relative, clothing, sillyWord),
	}

	intro := buildGenreIntro(opts.Genre, place, personName, verb, verbIng)
	segments = append([]string{intro}, segments...)

	// Пользовательский seed-текст становится самым первым сегментом.
	if seed := strings.TrimSpace(opts.SeedText); seed != "" {
		segments = append([]string{seed}, segments...)
	}

	length := strings.ToLower(opts.Length)
	if length != "quick" {
		segments = append(segments, fmt.Sprintf("After the reveal, we %s toward the %s again, chanting %s in perfect %s rhythm.", verbIng, place, sillyWord, adverb))
	}
	if length == "epic" {
		segments = append(segments, fmt.Sprintf("By the time the %s lifts off, %s is humming along with the %s while %s streams the victory.", vehicle, relative, sound, celebrity))
	}

	templateText := strings.Join(segments, " ")
	originalText := placeholderPattern.ReplaceAllString(templateText, "_____")

	tagCounts := make(map[string]int, len(blanks))
	for _, blank := range blanks {
		tagCounts[blank.Slot]++
	}

	return Template{
		Template:     templateText,
		OriginalText: originalText,
		Blanks:       blanks,
		Metadata: Metadata{
			WordCount:  len(strings.Fields(originalText)),
			BlankCount: len(blanks),
			TagCounts:  tagCounts,
		},
	}
}

func buildBlankCandidates() []Blank {
	blanks := make([]Blank, 0, len(slotOrder))
	for i, slot := range slotOrder {
		def := slotDefs[slot]
		blanks = append(blanks, Blank{
			ID:          fmt.Sprintf("%s_%d", slot, i+1),
			Slot:        slot,
			Prompt:      def.prompt,
			Description: def.description,
			Example:     def.example,
		})
	}
	return blanks
}

func buildGenreIntro(genre, place, personName, verb, verbIng string) string {
	normalized := strings.ToLower(genre)
	switch {
	case strings.Contains(normalized, "heist"):
		return fmt.Sprintf("In the neon glow of the %s, %s signals it's time to %s.", place, personName, verb)
	case strings.Contains(normalized, "fantasy"), strings.Contains(normalized, "myth"):
		return fmt.Sprintf("Legends whisper that %s is %s toward the %s as destiny stirs.", personName, verbIng, place)
	case strings.Contains(normalized, "comedy"):
		return fmt.Sprintf("Somehow we ended up back at the %s, where %s tries to %s without laughing.", place, personName, verb)
	default:
		return fmt.Sprintf("Inside the %s, %s cues the squad to %s before anyone hesitates.", place, personName, verb)
	}
}
