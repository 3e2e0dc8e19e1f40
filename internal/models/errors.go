package models

import "errors"

// Стандартные ошибки уровня приложения. Handler транслирует их в HTTP
// статусы через errors.Is; репозиторий и сервис оборачивают через %w.
var (
	// Resource / DB
	ErrNotFound            = errors.New("resource not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrTurnNotFound        = errors.New("turn not found")
	ErrVaultNotFound       = errors.New("vault entry not found")
	ErrParticipantNotFound = errors.New("participant not found")

	// Авторизация (host vs participant). Отклоняются ДО любой записи.
	ErrNotSessionHost        = errors.New("only the session host can perform this action")
	ErrNotSessionParticipant = errors.New("user is not part of this session")
	ErrInvitationNotAccepted = errors.New("invitation must be accepted before running this action")

	// Валидация / предусловия
	ErrSeedTextRequired       = errors.New("seedText is required when templateSource is 'custom'")
	ErrNoAcceptedParticipants = errors.New("at least one participant must accept before starting the session")
	ErrSessionNotActive       = errors.New("session is not active")
	ErrTurnNotSubmittable     = errors.New("turn is not open for submission")
	ErrTurnAlreadyResolved    = errors.New("turn has already been resolved")
	ErrInvalidInput           = errors.New("invalid input data")

	// General
	ErrInternalServer = errors.New("internal server error")
)
