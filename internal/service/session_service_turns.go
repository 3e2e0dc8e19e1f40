package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lips-server/internal/models"
	"lips-server/internal/repository"
	"lips-server/internal/story"
)

// Start активирует сессию: раздает псевдонимы по кругу и открывает окно
// первого хода. Только ведущий. Повторный вызов на активной сессии -
// no-op. Блокировка строки сессии сериализует конкурентные старты.
func (s *SessionService) Start(ctx context.Context, sessionID uuid.UUID, requesterID string) (*models.Session, error) {
	var started bool
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		session, err := s.repo.GetSessionForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireHost(session, requesterID); err != nil {
			return err
		}
		if session.Status == models.SessionStatusActive {
			return nil
		}
		if session.Status == models.SessionStatusCompleted {
			return fmt.Errorf("%w: сессия уже завершена", models.ErrSessionNotActive)
		}

		participants, err := s.repo.ListParticipants(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		active := make([]*models.Participant, 0, len(participants))
		for _, p := range participants {
			if p.IsActive() {
				active = append(active, p)
			}
		}
		if len(active) == 0 {
			return models.ErrNoAcceptedParticipants
		}

		turns, err := s.repo.ListTurns(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		// Раздача по кругу: ход i достается участнику i % n.
		for _, turn := range turns {
			assignee := active[turn.OrderIndex%len(active)]
			handle := assignee.DisplayHandle(turn.OrderIndex % len(active))
			if err := s.repo.AssignTurnHandle(ctx, tx, turn.ID, handle); err != nil {
				return err
			}
		}
		if len(turns) > 0 {
			window := time.Duration(session.ResponseWindowMinutes) * time.Minute
			if err := s.repo.ActivateTurn(ctx, tx, turns[0].ID, window); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateSessionStatus(ctx, tx, sessionID, models.SessionStatusActive); err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Start: %w", err)
	}

	if started {
		s.broadcast(ctx, sessionID, models.EventSessionStarted, map[string]any{
			"sessionId": sessionID.String(),
		})
	}
	return s.GetSession(ctx, sessionID)
}

// Advance закрывает окно текущего хода и открывает следующий pending-ход
// со строго большим индексом. Только ведущий. Если pending-ходов впереди
// не осталось, сессия завершается. Пропущенный ход остается pending и
// закрывается через AutoFill.
func (s *SessionService) Advance(ctx context.Context, sessionID uuid.UUID, requesterID string) (*models.Session, error) {
	var completed bool
	var activated *models.Turn
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		session, err := s.repo.GetSessionForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireHost(session, requesterID); err != nil {
			return err
		}
		if session.Status != models.SessionStatusActive {
			return fmt.Errorf("%w: advance доступен только в активной сессии", models.ErrSessionNotActive)
		}

		afterIndex := -1
		current, err := s.repo.CurrentDueTurn(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if current != nil {
			if err := s.repo.CloseTurnWindow(ctx, tx, current.ID); err != nil {
				return err
			}
			afterIndex = current.OrderIndex
		}

		next, err := s.repo.NextPendingTurnAfter(ctx, tx, sessionID, afterIndex)
		if err != nil {
			return err
		}
		if next == nil {
			if err := s.repo.UpdateSessionStatus(ctx, tx, sessionID, models.SessionStatusCompleted); err != nil {
				return err
			}
			completed = true
			return nil
		}

		window := time.Duration(session.ResponseWindowMinutes) * time.Minute
		if err := s.repo.ActivateTurn(ctx, tx, next.ID, window); err != nil {
			return err
		}
		activated = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Advance: %w", err)
	}

	if completed {
		s.broadcast(ctx, sessionID, models.EventSessionCompleted, map[string]any{
			"sessionId": sessionID.String(),
		})
	} else if activated != nil {
		s.broadcast(ctx, sessionID, models.EventTurnAdvanced, map[string]any{
			"turnId":     activated.ID.String(),
			"orderIndex": activated.OrderIndex,
		})
	}
	return s.GetSession(ctx, sessionID)
}

// Submit записывает ответ игрока в текущий ход. Писать может только
// участник с принятым приглашением (или ведущий). Побеждает ровно один
// писатель: проигравший гонку получает ErrTurnNotSubmittable.
func (s *SessionService) Submit(ctx context.Context, turnID uuid.UUID, userID, text string) (*models.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: текст ответа пуст", models.ErrInvalidInput)
	}

	var submitted *models.Turn
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		turn, err := s.repo.GetTurn(ctx, tx, turnID)
		if err != nil {
			return err
		}
		participant, err := s.repo.GetParticipant(ctx, tx, turn.SessionID, userID)
		if err != nil {
			return err
		}
		if !participant.IsActive() {
			return models.ErrInvitationNotAccepted
		}
		handle := participant.DisplayHandle(0)
		updated, err := s.repo.SubmitTurn(ctx, tx, turnID, text, &handle)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(models.SubmissionPayload{Handle: &handle})
		if err != nil {
			return fmt.Errorf("ошибка сериализации события submit: %w", err)
		}
		if err := s.repo.InsertTurnEvent(ctx, tx, turnID, models.EventSubmitted, payload); err != nil {
			return err
		}
		submitted = updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Submit: %w", err)
	}

	s.broadcast(ctx, submitted.SessionID, models.EventSubmitted, map[string]any{
		"turnId":     submitted.ID.String(),
		"orderIndex": submitted.OrderIndex,
		"handle":     submitted.SubmissionHandle,
	})
	return submitted, nil
}

// AutoFill закрывает pending-ход автозаполнением. Только ведущий.
// Пустой текст заменяется fallback-значением из имени слота. В отличие
// от Submit не требует открытого окна - это путь восстановления для
// пропущенных ходов.
func (s *SessionService) AutoFill(ctx context.Context, turnID uuid.UUID, requesterID, text string) (*models.Turn, error) {
	var filled *models.Turn
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		turn, err := s.repo.GetTurn(ctx, tx, turnID)
		if err != nil {
			return err
		}
		session, err := s.repo.GetSession(ctx, tx, turn.SessionID)
		if err != nil {
			return err
		}
		if err := requireHost(session, requesterID); err != nil {
			return err
		}

		fillText := strings.TrimSpace(text)
		if fillText == "" {
			fillText = story.FillValue(turn)
		}
		handle := "@ai-cohost"
		updated, err := s.repo.AutoFillTurn(ctx, tx, turnID, fillText, &handle)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(models.SubmissionPayload{Handle: &handle})
		if err != nil {
			return fmt.Errorf("ошибка сериализации события auto-fill: %w", err)
		}
		if err := s.repo.InsertTurnEvent(ctx, tx, turnID, models.EventAutoFilled, payload); err != nil {
			return err
		}
		filled = updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("AutoFill: %w", err)
	}

	s.broadcast(ctx, filled.SessionID, models.EventAutoFilled, map[string]any{
		"turnId":     filled.ID.String(),
		"orderIndex": filled.OrderIndex,
	})
	return filled, nil
}

// LogTurnEvent добавляет пользовательское событие в журнал хода.
// Доступно любому участнику сессии.
func (s *SessionService) LogTurnEvent(ctx context.Context, turnID uuid.UUID, userID string, eventType string, data map[string]any) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("%w: тип события пуст", models.ErrInvalidInput)
	}

	var sessionID uuid.UUID
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		turn, err := s.repo.GetTurn(ctx, tx, turnID)
		if err != nil {
			return err
		}
		if _, err := s.repo.GetParticipant(ctx, tx, turn.SessionID, userID); err != nil {
			return err
		}
		payload, err := json.Marshal(models.CustomPayload(data))
		if err != nil {
			return fmt.Errorf("ошибка сериализации пользовательского события: %w", err)
		}
		if err := s.repo.InsertTurnEvent(ctx, tx, turnID, models.EventType(eventType), payload); err != nil {
			return err
		}
		sessionID = turn.SessionID
		return nil
	})
	if err != nil {
		return fmt.Errorf("LogTurnEvent: %w", err)
	}

	s.broadcast(ctx, sessionID, models.EventType(eventType), map[string]any{
		"turnId": turnID.String(),
		"data":   data,
	})
	return nil
}
