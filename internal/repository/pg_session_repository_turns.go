package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"lips-server/internal/models"
)

const turnColumns = `id, session_id, order_index, status, prompt, part_of_speech,
       creative_nudge, placeholder, assigned_handle, response_window_minutes,
       due_at, expires_at, submitted_at, submitted_text, submission_handle,
       auto_filled, auto_fill_text, created_at`

func scanTurn(row pgx.Row) (*models.Turn, error) {
	var t models.Turn
	var status string
	err := row.Scan(
		&t.ID,
		&t.SessionID,
		&t.OrderIndex,
		&status,
		&t.Prompt,
		&t.PartOfSpeech,
		&t.CreativeNudge,
		&t.Placeholder,
		&t.AssignedHandle,
		&t.ResponseWindowMinutes,
		&t.DueAt,
		&t.ExpiresAt,
		&t.SubmittedAt,
		&t.SubmittedText,
		&t.SubmissionHandle,
		&t.AutoFilled,
		&t.AutoFillText,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = models.TurnStatus(status)
	return &t, nil
}

// InsertTurn сохраняет новый ход. order_index уникален в рамках сессии,
// конфликт означает гонку при раздаче ходов и отдается наверх как есть.
func (r *pgSessionRepository) InsertTurn(ctx context.Context, q DBTX, turn *models.Turn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	turn.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO lips_turns
            (id, session_id, order_index, status, prompt, part_of_speech,
             creative_nudge, placeholder, assigned_handle, response_window_minutes,
             created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err := q.Exec(ctx, query,
		turn.ID,
		turn.SessionID,
		turn.OrderIndex,
		string(turn.Status),
		turn.Prompt,
		turn.PartOfSpeech,
		turn.CreativeNudge,
		turn.Placeholder,
		turn.AssignedHandle,
		turn.ResponseWindowMinutes,
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка создания хода %d сессии %s: %w", turn.OrderIndex, turn.SessionID, err)
	}
	return nil
}

// GetTurn возвращает ход по идентификатору.
func (r *pgSessionRepository) GetTurn(ctx context.Context, q DBTX, id uuid.UUID) (*models.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM lips_turns WHERE id = $1`
	turn, err := scanTurn(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTurnNotFound
		}
		return nil, fmt.Errorf("ошибка чтения хода %s: %w", id, err)
	}
	return turn, nil
}

// ListTurns возвращает ходы сессии в порядке их следования.
func (r *pgSessionRepository) ListTurns(ctx context.Context, q DBTX, sessionID uuid.UUID) ([]*models.Turn, error) {
	query := `SELECT ` + turnColumns + `
        FROM lips_turns
        WHERE session_id = $1
        ORDER BY order_index ASC`

	rows, err := q.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса ходов сессии %s: %w", sessionID, err)
	}
	defer rows.Close()

	turns := make([]*models.Turn, 0)
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования хода: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по ходам: %w", err)
	}
	return turns, nil
}

// AssignTurnHandle закрепляет за ходом псевдоним исполнителя.
func (r *pgSessionRepository) AssignTurnHandle(ctx context.Context, q DBTX, turnID uuid.UUID, handle string) error {
	query := `UPDATE lips_turns SET assigned_handle = $2 WHERE id = $1`
	tag, err := q.Exec(ctx, query, turnID, handle)
	if err != nil {
		return fmt.Errorf("ошибка назначения псевдонима ходу %s: %w", turnID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTurnNotFound
	}
	return nil
}

// ActivateTurn открывает окно ответа хода: due_at = now,
// expires_at = now + responseWindow. Только для pending-ходов.
func (r *pgSessionRepository) ActivateTurn(ctx context.Context, q DBTX, turnID uuid.UUID, responseWindow time.Duration) error {
	now := time.Now().UTC()
	expiresAt := now.Add(responseWindow)
	minutes := int(responseWindow / time.Minute)

	query := `
        UPDATE lips_turns
        SET due_at = $2, expires_at = $3, response_window_minutes = $4
        WHERE id = $1 AND status = 'pending'
    `
	tag, err := q.Exec(ctx, query, turnID, now, expiresAt, minutes)
	if err != nil {
		return fmt.Errorf("ошибка активации хода %s: %w", turnID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTurnAlreadyResolved
	}
	return nil
}

// CloseTurnWindow снимает с хода окно ответа, не меняя статус. Ход
// перестает быть "текущим", но остается pending для auto-fill.
func (r *pgSessionRepository) CloseTurnWindow(ctx context.Context, q DBTX, turnID uuid.UUID) error {
	query := `UPDATE lips_turns SET due_at = NULL, expires_at = NULL WHERE id = $1`
	tag, err := q.Exec(ctx, query, turnID)
	if err != nil {
		return fmt.Errorf("ошибка закрытия окна хода %s: %w", turnID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTurnNotFound
	}
	return nil
}

// CurrentDueTurn возвращает текущий ход сессии (pending с открытым
// окном ответа) или nil, если такого нет.
func (r *pgSessionRepository) CurrentDueTurn(ctx context.Context, q DBTX, sessionID uuid.UUID) (*models.Turn, error) {
	query := `SELECT ` + turnColumns + `
        FROM lips_turns
        WHERE session_id = $1 AND status = 'pending' AND due_at IS NOT NULL
        ORDER BY order_index ASC
        LIMIT 1`
	turn, err := scanTurn(q.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска текущего хода сессии %s: %w", sessionID, err)
	}
	return turn, nil
}

// NextPendingTurnAfter возвращает ближайший pending-ход со строго
// большим order_index. Строгое сравнение гарантирует, что advance
// всегда двигается вперед и не активирует только что закрытый ход.
func (r *pgSessionRepository) NextPendingTurnAfter(ctx context.Context, q DBTX, sessionID uuid.UUID, afterIndex int) (*models.Turn, error) {
	query := `SELECT ` + turnColumns + `
        FROM lips_turns
        WHERE session_id = $1 AND status = 'pending' AND order_index > $2
        ORDER BY order_index ASC
        LIMIT 1`
	turn, err := scanTurn(q.QueryRow(ctx, query, sessionID, afterIndex))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска следующего хода сессии %s: %w", sessionID, err)
	}
	return turn, nil
}

// SubmitTurn записывает ответ игрока. Обновление проходит только пока
// ход pending и окно ответа открыто, поэтому из двух конкурентных
// записей выигрывает ровно одна, вторая получает ErrTurnNotSubmittable.
func (r *pgSessionRepository) SubmitTurn(ctx context.Context, q DBTX, turnID uuid.UUID, text string, handle *string) (*models.Turn, error) {
	query := `
        UPDATE lips_turns
        SET status = 'submitted',
            submitted_text = $2,
            submission_handle = $3,
            submitted_at = now(),
            due_at = NULL,
            expires_at = NULL
        WHERE id = $1 AND status = 'pending' AND due_at IS NOT NULL
        RETURNING ` + turnColumns
	turn, err := scanTurn(q.QueryRow(ctx, query, turnID, text, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTurnNotSubmittable
		}
		return nil, fmt.Errorf("ошибка записи ответа хода %s: %w", turnID, err)
	}
	return turn, nil
}

// AutoFillTurn закрывает ход автозаполнением. Требует лишь статус
// pending: так восстанавливаются пропущенные ходы с закрытым окном.
func (r *pgSessionRepository) AutoFillTurn(ctx context.Context, q DBTX, turnID uuid.UUID, text string, handle *string) (*models.Turn, error) {
	query := `
        UPDATE lips_turns
        SET status = 'auto_filled',
            auto_filled = TRUE,
            auto_fill_text = $2,
            submission_handle = COALESCE($3, submission_handle),
            submitted_at = now(),
            due_at = NULL,
            expires_at = NULL
        WHERE id = $1 AND status = 'pending'
        RETURNING ` + turnColumns
	turn, err := scanTurn(q.QueryRow(ctx, query, turnID, text, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTurnAlreadyResolved
		}
		return nil, fmt.Errorf("ошибка автозаполнения хода %s: %w", turnID, err)
	}
	return turn, nil
}

// InsertTurnEvent добавляет запись в журнал событий хода.
func (r *pgSessionRepository) InsertTurnEvent(ctx context.Context, q DBTX, turnID uuid.UUID, eventType models.EventType, payload json.RawMessage) error {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	query := `
        INSERT INTO lips_turn_events (id, turn_id, event_type, payload)
        VALUES ($1, $2, $3, $4)
    `
	if _, err := q.Exec(ctx, query, uuid.New(), turnID, string(eventType), payload); err != nil {
		return fmt.Errorf("ошибка записи события %s хода %s: %w", eventType, turnID, err)
	}
	return nil
}

// ListTurnEvents группирует события журнала по ходам.
func (r *pgSessionRepository) ListTurnEvents(ctx context.Context, q DBTX, turnIDs []uuid.UUID) (map[uuid.UUID][]*models.TurnEvent, error) {
	result := make(map[uuid.UUID][]*models.TurnEvent, len(turnIDs))
	if len(turnIDs) == 0 {
		return result, nil
	}
	query := `
        SELECT id, turn_id, event_type, payload, created_at
        FROM lips_turn_events
        WHERE turn_id = ANY($1::uuid[])
        ORDER BY created_at ASC, id ASC
    `
	rows, err := q.Query(ctx, query, turnIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса событий ходов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var event models.TurnEvent
		var eventType string
		var raw json.RawMessage
		if err := rows.Scan(&event.ID, &event.TurnID, &eventType, &raw, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события хода: %w", err)
		}
		event.EventType = models.EventType(eventType)
		payload, err := models.ParseEventPayload(event.EventType, raw)
		if err != nil {
			r.logger.Warn("Failed to parse turn event payload, keeping raw form",
				zap.Error(err))
		}
		event.Payload = payload
		result[event.TurnID] = append(result[event.TurnID], &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по событиям ходов: %w", err)
	}
	return result, nil
}
