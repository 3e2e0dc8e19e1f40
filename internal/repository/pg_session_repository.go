package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"lips-server/internal/models"
)

// Compile-time check
var _ SessionRepository = (*pgSessionRepository)(nil)

// pgSessionRepository реализует SessionRepository для PostgreSQL.
type pgSessionRepository struct {
	logger *zap.Logger
}

// NewPgSessionRepository создает новый экземпляр репозитория.
// Исполнитель запросов (пул или транзакция) передается в каждый метод
// явно, поэтому репозиторий сам соединений не держит.
func NewPgSessionRepository(logger *zap.Logger) SessionRepository {
	return &pgSessionRepository{
		logger: logger.Named("PgSessionRepo"),
	}
}

const sessionColumns = `id, host_id, title, genre, template_source, template_length,
       seed_text, preview_text, template_text, status, response_window_minutes,
       allow_ai_cohost, vault_mode, created_at, updated_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var source, length, status, vaultMode string
	err := row.Scan(
		&s.ID,
		&s.HostID,
		&s.Title,
		&s.Genre,
		&source,
		&length,
		&s.SeedText,
		&s.PreviewText,
		&s.TemplateText,
		&status,
		&s.ResponseWindowMinutes,
		&s.AllowAICohost,
		&vaultMode,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.TemplateSource = models.NormalizeTemplateSource(source)
	s.TemplateLength = models.NormalizeTemplateLength(length)
	s.Status = models.SessionStatus(status)
	s.VaultMode = models.VaultVisibility(vaultMode)
	return &s, nil
}

// CreateSession сохраняет новую сессию.
func (r *pgSessionRepository) CreateSession(ctx context.Context, q DBTX, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO lips_sessions
            (id, host_id, title, genre, template_source, template_length, seed_text,
             preview_text, template_text, status, response_window_minutes,
             allow_ai_cohost, vault_mode, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `
	r.logger.Debug("Creating session", zap.String("sessionID", session.ID.String()))

	_, err := q.Exec(ctx, query,
		session.ID,
		session.HostID,
		session.Title,
		session.Genre,
		string(session.TemplateSource),
		string(session.TemplateLength),
		session.SeedText,
		session.PreviewText,
		session.TemplateText,
		string(session.Status),
		session.ResponseWindowMinutes,
		session.AllowAICohost,
		string(session.VaultMode),
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

// GetSession возвращает строку сессии (без участников и ходов).
func (r *pgSessionRepository) GetSession(ctx context.Context, q DBTX, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM lips_sessions WHERE id = $1`
	session, err := scanSession(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("ошибка чтения сессии %s: %w", id, err)
	}
	return session, nil
}

// GetSessionForUpdate читает сессию с блокировкой строки. Конкурентные
// start/advance/complete для одной сессии выстраиваются в очередь на
// этой блокировке до конца транзакции.
func (r *pgSessionRepository) GetSessionForUpdate(ctx context.Context, q DBTX, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM lips_sessions WHERE id = $1 FOR UPDATE`
	session, err := scanSession(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("ошибка чтения сессии %s (for update): %w", id, err)
	}
	return session, nil
}

// ListSessions возвращает сессии (новые первыми) по фильтру.
func (r *pgSessionRepository) ListSessions(ctx context.Context, q DBTX, filter ListSessionsFilter) ([]*models.Session, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	args := []any{limit}
	conditions := []string{}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
            SELECT 1 FROM lips_session_participants sp
            WHERE sp.session_id = lips_sessions.id AND sp.user_id = $%d
        )`, len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT ` + sessionColumns + ` FROM lips_sessions ` + whereClause + `
        ORDER BY created_at DESC
        LIMIT $1`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса списка сессий: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сессии: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по сессиям: %w", err)
	}
	return sessions, nil
}

// UpdateSessionStatus переводит сессию в новый статус.
func (r *pgSessionRepository) UpdateSessionStatus(ctx context.Context, q DBTX, id uuid.UUID, status models.SessionStatus) error {
	query := `UPDATE lips_sessions SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := q.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса сессии %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// UpdateSessionVaultMode обновляет видимость vault-записи по умолчанию.
func (r *pgSessionRepository) UpdateSessionVaultMode(ctx context.Context, q DBTX, id uuid.UUID, mode models.VaultVisibility) error {
	query := `UPDATE lips_sessions SET vault_mode = $2, updated_at = now() WHERE id = $1`
	tag, err := q.Exec(ctx, query, id, string(mode))
	if err != nil {
		return fmt.Errorf("ошибка обновления vault_mode сессии %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	var role, status string
	err := row.Scan(
		&p.ID,
		&p.SessionID,
		&p.UserID,
		&p.Handle,
		&role,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Role = models.ParticipantRole(role)
	p.Status = models.ParticipantStatus(status)
	return &p, nil
}

const participantColumns = `id, session_id, user_id, handle, role, status, created_at, updated_at`

// UpsertHostParticipant добавляет ведущего как автоматически принятого
// участника. Идемпотентно по паре (session, user).
func (r *pgSessionRepository) UpsertHostParticipant(ctx context.Context, q DBTX, sessionID uuid.UUID, hostID string) error {
	query := `
        INSERT INTO lips_session_participants (id, session_id, user_id, role, status)
        VALUES ($1, $2, $3, 'host', 'accepted')
        ON CONFLICT (session_id, user_id)
        DO UPDATE SET role = 'host', status = 'accepted', updated_at = now()
    `
	if _, err := q.Exec(ctx, query, uuid.New(), sessionID, hostID); err != nil {
		return fmt.Errorf("ошибка upsert ведущего для сессии %s: %w", sessionID, err)
	}
	return nil
}

// UpsertInvitedParticipants приглашает игроков. Повторное приглашение
// существующего участника возвращает его в статус invited.
func (r *pgSessionRepository) UpsertInvitedParticipants(ctx context.Context, q DBTX, sessionID uuid.UUID, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `
        INSERT INTO lips_session_participants (id, session_id, user_id, role, status)
        SELECT gen_random_uuid(), $1, unnest($2::text[]), 'player', 'invited'
        ON CONFLICT (session_id, user_id)
        DO UPDATE SET status = 'invited', updated_at = now()
    `
	if _, err := q.Exec(ctx, query, sessionID, userIDs); err != nil {
		return fmt.Errorf("ошибка приглашения участников в сессию %s: %w", sessionID, err)
	}
	return nil
}

// ListParticipants возвращает участников сессии в порядке добавления.
func (r *pgSessionRepository) ListParticipants(ctx context.Context, q DBTX, sessionID uuid.UUID) ([]*models.Participant, error) {
	byID, err := r.ListParticipantsForSessions(ctx, q, []uuid.UUID{sessionID})
	if err != nil {
		return nil, err
	}
	participants := byID[sessionID]
	if participants == nil {
		participants = []*models.Participant{}
	}
	return participants, nil
}

// ListParticipantsForSessions группирует участников по сессиям (для
// списков сессий - один запрос вместо N).
func (r *pgSessionRepository) ListParticipantsForSessions(ctx context.Context, q DBTX, sessionIDs []uuid.UUID) (map[uuid.UUID][]*models.Participant, error) {
	result := make(map[uuid.UUID][]*models.Participant, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return result, nil
	}
	query := `SELECT ` + participantColumns + `
        FROM lips_session_participants
        WHERE session_id = ANY($1::uuid[])
        ORDER BY created_at ASC`

	rows, err := q.Query(ctx, query, sessionIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса участников: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования участника: %w", err)
		}
		result[participant.SessionID] = append(result[participant.SessionID], participant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по участникам: %w", err)
	}
	return result, nil
}

// GetParticipant возвращает участника по паре (session, user).
func (r *pgSessionRepository) GetParticipant(ctx context.Context, q DBTX, sessionID uuid.UUID, userID string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + `
        FROM lips_session_participants
        WHERE session_id = $1 AND user_id = $2`
	participant, err := scanParticipant(q.QueryRow(ctx, query, sessionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotSessionParticipant
		}
		return nil, fmt.Errorf("ошибка чтения участника %s/%s: %w", sessionID, userID, err)
	}
	return participant, nil
}

// UpdateParticipantStatus обновляет статус приглашения и возвращает
// обновленную запись.
func (r *pgSessionRepository) UpdateParticipantStatus(ctx context.Context, q DBTX, sessionID uuid.UUID, userID string, status models.ParticipantStatus) (*models.Participant, error) {
	query := `
        UPDATE lips_session_participants
        SET status = $3, updated_at = now()
        WHERE session_id = $1 AND user_id = $2
        RETURNING ` + participantColumns
	participant, err := scanParticipant(q.QueryRow(ctx, query, sessionID, userID, string(status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("ошибка обновления статуса участника %s/%s: %w", sessionID, userID, err)
	}
	return participant, nil
}
