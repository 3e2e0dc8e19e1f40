package models

import (
	"time"

	"github.com/google/uuid"
)

// VaultEntry - финальный артефакт завершенной сессии.
// На сессию существует не более одной записи (upsert по session_id).
// Публикация меняет только visibility / published_* и никогда не
// перегенерирует текст истории.
type VaultEntry struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	SessionID   uuid.UUID       `json:"sessionId" db:"session_id"`
	Title       string          `json:"title" db:"title"`
	StoryText   string          `json:"storyText" db:"story_text"`
	Visibility  VaultVisibility `json:"visibility" db:"visibility"`
	SummaryText *string         `json:"summaryText" db:"summary_text"`
	AIStoryText *string         `json:"aiStoryText" db:"ai_story_text"`
	ThemePrompt *string         `json:"themePrompt" db:"theme_prompt"`
	PublishedAt *time.Time      `json:"publishedAt" db:"published_at"`
	PublishedBy *string         `json:"publishedBy" db:"published_by"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// FeedEntry - запись публичной ленты: vault entry плюс метаданные сессии.
type FeedEntry struct {
	VaultEntry
	SessionTitle *string `json:"sessionTitle" db:"session_title"`
	Genre        *string `json:"genre" db:"genre"`
	HostID       *string `json:"hostId" db:"host_id"`
}
