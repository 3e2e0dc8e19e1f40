package models

import (
	"encoding/json"
	"fmt"
)

// EventType - имя события сессии или хода, как оно уходит подписчикам
// realtime-канала и в журнал lips_turn_events.
type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventParticipantStatus EventType = "participant_status"
	EventSessionStarted    EventType = "session_started"
	EventTurnAdvanced      EventType = "turn_advanced"
	EventTurnSeeded        EventType = "turn_seeded"
	EventSubmitted         EventType = "submitted"
	EventAutoFilled        EventType = "auto_filled"
	EventSessionCompleted  EventType = "session_completed"
)

// SeededPayload - полезная нагрузка события turn_seeded.
type SeededPayload struct {
	Slot        string `json:"slot"`
	Placeholder string `json:"placeholder"`
	Prompt      string `json:"prompt"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// SubmissionPayload - полезная нагрузка событий submitted / auto_filled.
type SubmissionPayload struct {
	Handle *string `json:"handle"`
}

// EventPayload - размеченное объединение известных полезных нагрузок
// плюс открытая map для пользовательских событий. Ровно одно из полей
// заполнено; пустая нагрузка сериализуется как "{}".
type EventPayload struct {
	Seeded     *SeededPayload
	Submission *SubmissionPayload
	Custom     map[string]any
}

// CustomPayload оборачивает произвольную map в EventPayload.
func CustomPayload(data map[string]any) EventPayload {
	if data == nil {
		data = map[string]any{}
	}
	return EventPayload{Custom: data}
}

// MarshalJSON сериализует активную ветвь объединения.
func (p EventPayload) MarshalJSON() ([]byte, error) {
	switch {
	case p.Seeded != nil:
		return json.Marshal(p.Seeded)
	case p.Submission != nil:
		return json.Marshal(p.Submission)
	case p.Custom != nil:
		return json.Marshal(p.Custom)
	default:
		return []byte("{}"), nil
	}
}

// ParseEventPayload восстанавливает объединение из сырого JSON по типу
// события. Неизвестные типы попадают в Custom - формат журнала остается
// открытым для будущих событий.
func ParseEventPayload(eventType EventType, raw json.RawMessage) (EventPayload, error) {
	if len(raw) == 0 {
		return EventPayload{Custom: map[string]any{}}, nil
	}
	switch eventType {
	case EventTurnSeeded:
		var seeded SeededPayload
		if err := json.Unmarshal(raw, &seeded); err != nil {
			return EventPayload{}, fmt.Errorf("parse %s payload: %w", eventType, err)
		}
		return EventPayload{Seeded: &seeded}, nil
	case EventSubmitted, EventAutoFilled:
		var sub SubmissionPayload
		if err := json.Unmarshal(raw, &sub); err != nil {
			return EventPayload{}, fmt.Errorf("parse %s payload: %w", eventType, err)
		}
		return EventPayload{Submission: &sub}, nil
	default:
		custom := map[string]any{}
		if err := json.Unmarshal(raw, &custom); err != nil {
			return EventPayload{}, fmt.Errorf("parse %s payload: %w", eventType, err)
		}
		return EventPayload{Custom: custom}, nil
	}
}
