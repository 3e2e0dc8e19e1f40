package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lips-server/internal/models"
)

// DBTX - минимальный контракт исполнителя запросов: ему удовлетворяют и
// *pgxpool.Pool, и pgx.Tx. Методы репозитория принимают DBTX явно -
// сервис сам решает, выполняется ли вызов в транзакции (unit-of-work:
// одна внешняя транзакция на публичную операцию API).
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ListSessionsFilter - фильтр списка сессий.
type ListSessionsFilter struct {
	Status *models.SessionStatus
	UserID *string // только сессии, где пользователь - участник
	Limit  int
}

// SessionRepository - транзакционное ядро движка ходов. Единственный
// компонент, которому разрешено изменять персистентное состояние
// сессий, участников, ходов и vault-записей.
type SessionRepository interface {
	// Сессии
	CreateSession(ctx context.Context, q DBTX, session *models.Session) error
	GetSession(ctx context.Context, q DBTX, id uuid.UUID) (*models.Session, error)
	// GetSessionForUpdate блокирует строку сессии (SELECT ... FOR UPDATE)
	// до конца транзакции - сериализация start/advance/complete.
	GetSessionForUpdate(ctx context.Context, q DBTX, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, q DBTX, filter ListSessionsFilter) ([]*models.Session, error)
	UpdateSessionStatus(ctx context.Context, q DBTX, id uuid.UUID, status models.SessionStatus) error
	UpdateSessionVaultMode(ctx context.Context, q DBTX, id uuid.UUID, mode models.VaultVisibility) error

	// Участники
	UpsertHostParticipant(ctx context.Context, q DBTX, sessionID uuid.UUID, hostID string) error
	UpsertInvitedParticipants(ctx context.Context, q DBTX, sessionID uuid.UUID, userIDs []string) error
	ListParticipants(ctx context.Context, q DBTX, sessionID uuid.UUID) ([]*models.Participant, error)
	ListParticipantsForSessions(ctx context.Context, q DBTX, sessionIDs []uuid.UUID) (map[uuid.UUID][]*models.Participant, error)
	GetParticipant(ctx context.Context, q DBTX, sessionID uuid.UUID, userID string) (*models.Participant, error)
	UpdateParticipantStatus(ctx context.Context, q DBTX, sessionID uuid.UUID, userID string, status models.ParticipantStatus) (*models.Participant, error)

	// Ходы
	InsertTurn(ctx context.Context, q DBTX, turn *models.Turn) error
	GetTurn(ctx context.Context, q DBTX, id uuid.UUID) (*models.Turn, error)
	ListTurns(ctx context.Context, q DBTX, sessionID uuid.UUID) ([]*models.Turn, error)
	AssignTurnHandle(ctx context.Context, q DBTX, turnID uuid.UUID, handle string) error
	// ActivateTurn открывает окно ответа: due_at = now,
	// expires_at = now + responseWindow.
	ActivateTurn(ctx context.Context, q DBTX, turnID uuid.UUID, responseWindow time.Duration) error
	CloseTurnWindow(ctx context.Context, q DBTX, turnID uuid.UUID) error
	CurrentDueTurn(ctx context.Context, q DBTX, sessionID uuid.UUID) (*models.Turn, error)
	NextPendingTurnAfter(ctx context.Context, q DBTX, sessionID uuid.UUID, afterIndex int) (*models.Turn, error)
	// SubmitTurn - строгая однописательная политика: обновление проходит
	// только пока ход pending и окно ответа открыто (due_at not null);
	// проигравший гонку получает models.ErrTurnNotSubmittable.
	SubmitTurn(ctx context.Context, q DBTX, turnID uuid.UUID, text string, handle *string) (*models.Turn, error)
	// AutoFillTurn требует лишь статус pending: это путь восстановления
	// для пропущенных ходов с уже закрытым окном.
	AutoFillTurn(ctx context.Context, q DBTX, turnID uuid.UUID, text string, handle *string) (*models.Turn, error)

	// Журнал событий ходов (append-only)
	InsertTurnEvent(ctx context.Context, q DBTX, turnID uuid.UUID, eventType models.EventType, payload json.RawMessage) error
	ListTurnEvents(ctx context.Context, q DBTX, turnIDs []uuid.UUID) (map[uuid.UUID][]*models.TurnEvent, error)

	// Vault
	UpsertVaultEntry(ctx context.Context, q DBTX, sessionID uuid.UUID, title, storyText string, visibility models.VaultVisibility) (*models.VaultEntry, error)
	GetVaultEntryBySession(ctx context.Context, q DBTX, sessionID uuid.UUID) (*models.VaultEntry, error)
	SetVaultSummary(ctx context.Context, q DBTX, entryID uuid.UUID, summaryText string, themePrompt *string) (*models.VaultEntry, error)
	SetVaultAIStory(ctx context.Context, q DBTX, entryID uuid.UUID, aiStoryText string, themePrompt *string) (*models.VaultEntry, error)
	SetVaultPublication(ctx context.Context, q DBTX, entryID uuid.UUID, visibility models.VaultVisibility, publishedBy *string) (*models.VaultEntry, error)
	ListPublishedEntries(ctx context.Context, q DBTX, limit, offset int) ([]*models.FeedEntry, error)
}
