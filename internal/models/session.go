package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus - статус игровой сессии.
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "draft"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// TemplateSource - источник шаблона истории.
type TemplateSource string

const (
	TemplateSourceAI     TemplateSource = "ai"
	TemplateSourceSeed   TemplateSource = "seed"
	TemplateSourceCustom TemplateSource = "custom"
)

// TemplateLength - длина шаблона (количество дополнительных сегментов).
type TemplateLength string

const (
	TemplateLengthQuick   TemplateLength = "quick"
	TemplateLengthClassic TemplateLength = "classic"
	TemplateLengthEpic    TemplateLength = "epic"
)

// VaultVisibility - видимость записи в хранилище историй.
type VaultVisibility string

const (
	VisibilityInviteOnly VaultVisibility = "invite_only"
	VisibilityPublic     VaultVisibility = "public"
)

// NormalizeTemplateSource приводит произвольную строку к известному источнику.
// Неизвестные значения трактуются как "ai" (поведение по умолчанию).
func NormalizeTemplateSource(source string) TemplateSource {
	switch strings.ToLower(source) {
	case string(TemplateSourceCustom):
		return TemplateSourceCustom
	case string(TemplateSourceSeed):
		return TemplateSourceSeed
	default:
		return TemplateSourceAI
	}
}

// NormalizeTemplateLength приводит произвольную строку к известной длине.
func NormalizeTemplateLength(length string) TemplateLength {
	switch strings.ToLower(length) {
	case string(TemplateLengthClassic):
		return TemplateLengthClassic
	case string(TemplateLengthEpic):
		return TemplateLengthEpic
	default:
		return TemplateLengthQuick
	}
}

// Session - одна игровая сессия "заполни пропуски".
// HostID может быть nil: сессия без ведущего (headless) допустима.
// Идентификаторы пользователей - внешние строки (аутентификация вне зоны
// ответственности сервиса), идентификаторы сущностей - UUID.
type Session struct {
	ID                    uuid.UUID       `json:"id"`
	HostID                *string         `json:"hostId"`
	Title                 *string         `json:"title"`
	Genre                 *string         `json:"genre"`
	TemplateSource        TemplateSource  `json:"templateSource"`
	TemplateLength        TemplateLength  `json:"templateLength"`
	SeedText              *string         `json:"seedText,omitempty"`
	PreviewText           *string         `json:"previewText,omitempty"`
	TemplateText          *string         `json:"templateText,omitempty"`
	Status                SessionStatus   `json:"status"`
	ResponseWindowMinutes int             `json:"responseWindowMinutes"`
	AllowAICohost         bool            `json:"allowAiCohost"`
	VaultMode             VaultVisibility `json:"vaultMode"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             *time.Time      `json:"updatedAt,omitempty"`

	// Заполняются на read-путях, в БД живут в отдельных таблицах.
	Participants []*Participant `json:"participants,omitempty"`
	Turns        []*Turn        `json:"turns,omitempty"`
}

// ParticipantRole - роль участника в сессии.
type ParticipantRole string

const (
	RoleHost   ParticipantRole = "host"
	RolePlayer ParticipantRole = "player"
)

// ParticipantStatus - статус приглашения участника.
type ParticipantStatus string

const (
	ParticipantInvited  ParticipantStatus = "invited"
	ParticipantAccepted ParticipantStatus = "accepted"
	ParticipantDeclined ParticipantStatus = "declined"
	ParticipantLeft     ParticipantStatus = "left"
)

// Participant - членство пользователя в сессии.
// Инвариант: не более одной записи на пару (session, user).
type Participant struct {
	ID        uuid.UUID         `json:"id"`
	SessionID uuid.UUID         `json:"sessionId"`
	UserID    string            `json:"userId"`
	Handle    *string           `json:"handle"`
	Role      ParticipantRole   `json:"role"`
	Status    ParticipantStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
}

// DisplayHandle возвращает хэндл участника или детерминированный fallback
// вида "@abc123" из первых символов userID.
func (p *Participant) DisplayHandle(index int) string {
	if p.Handle != nil && *p.Handle != "" {
		return *p.Handle
	}
	if p.UserID != "" {
		if len(p.UserID) > 6 {
			return "@" + p.UserID[:6]
		}
		return "@" + p.UserID
	}
	return "@player" + itoa(index+1)
}

// IsActive сообщает, считается ли участник активным для игры
// (принял приглашение либо является ведущим).
func (p *Participant) IsActive() bool {
	return p.Status == ParticipantAccepted || p.Role == RoleHost
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
