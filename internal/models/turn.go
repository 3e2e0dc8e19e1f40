package models

import (
	"time"

	"github.com/google/uuid"
)

// TurnStatus - статус хода.
type TurnStatus string

const (
	TurnStatusPending    TurnStatus = "pending"
	TurnStatusSubmitted  TurnStatus = "submitted"
	TurnStatusAutoFilled TurnStatus = "auto_filled"
)

// Turn - один пропуск в шаблоне, привязанный к позиции в сессии.
// Инварианты:
//   - order_index фиксируется при создании и не меняется;
//   - после выхода из pending заполнено ровно одно из
//     SubmittedText / AutoFillText;
//   - в активной сессии не более одного хода с ненулевым DueAt
//     ("текущий" ход - точка сериализации конкурентных advance).
type Turn struct {
	ID                    uuid.UUID  `json:"id"`
	SessionID             uuid.UUID  `json:"sessionId"`
	OrderIndex            int        `json:"orderIndex"`
	Status                TurnStatus `json:"status"`
	Prompt                *string    `json:"prompt"`
	PartOfSpeech          *string    `json:"partOfSpeech"`
	CreativeNudge         *string    `json:"creativeNudge"`
	Placeholder           *string    `json:"placeholder"`
	AssignedHandle        *string    `json:"assignedHandle"`
	ResponseWindowMinutes *int       `json:"responseWindowMinutes"`
	DueAt                 *time.Time `json:"dueAt"`
	ExpiresAt             *time.Time `json:"expiresAt"`
	SubmittedAt           *time.Time `json:"submittedAt"`
	SubmittedText         *string    `json:"submittedText"`
	SubmissionHandle      *string    `json:"submissionHandle"`
	AutoFilled            bool       `json:"autoFilled"`
	AutoFillText          *string    `json:"autoFillText"`
	CreatedAt             time.Time  `json:"createdAt"`

	Events []*TurnEvent `json:"events,omitempty"`
}

// IsCurrent сообщает, является ли ход текущим (окно ответа открыто).
func (t *Turn) IsCurrent() bool {
	return t.Status == TurnStatusPending && t.DueAt != nil
}

// TurnEvent - запись append-only журнала событий хода.
type TurnEvent struct {
	ID        uuid.UUID    `json:"id"`
	TurnID    uuid.UUID    `json:"turnId"`
	EventType EventType    `json:"eventType"`
	Payload   EventPayload `json:"payload"`
	CreatedAt time.Time    `json:"createdAt"`
}
