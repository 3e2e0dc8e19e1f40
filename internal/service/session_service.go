// Package service реализует Session API: жизненный цикл сессий, ходов
// и vault-записей. Каждая мутирующая операция выполняется ровно в одной
// транзакции; события публикуются только после commit.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lips-server/internal/ai"
	"lips-server/internal/messaging"
	"lips-server/internal/models"
	"lips-server/internal/repository"
	"lips-server/internal/story"
	"lips-server/internal/templates"
)

// Награды за игровые действия (начисляются асинхронно).
const (
	rewardHostSession  = 10
	rewardAcceptInvite = 5
)

const defaultResponseWindowMinutes = 5

// TransactionManager - контракт транзакционной обертки (реализуется
// repository.TxManager, в тестах подменяется моком).
type TransactionManager interface {
	Pool() repository.DBTX
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.DBTX) error) error
}

// SessionService - публичный API движка ходов.
type SessionService struct {
	repo        repository.SessionRepository
	tx          TransactionManager
	assembler   story.Assembler
	broadcaster messaging.EventBroadcaster
	rewards     messaging.RewardPublisher
	aiClient    ai.Client
	logger      *zap.Logger
}

// NewSessionService создает сервис со всеми зависимостями.
func NewSessionService(
	repo repository.SessionRepository,
	tx TransactionManager,
	assembler story.Assembler,
	broadcaster messaging.EventBroadcaster,
	rewards messaging.RewardPublisher,
	aiClient ai.Client,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		repo:        repo,
		tx:          tx,
		assembler:   assembler,
		broadcaster: broadcaster,
		rewards:     rewards,
		aiClient:    aiClient,
		logger:      logger.Named("SessionService"),
	}
}

// CreateSessionInput - параметры создания сессии.
type CreateSessionInput struct {
	HostID                *string
	Title                 *string
	Genre                 *string
	TemplateSource        string
	TemplateLength        string
	SeedText              *string
	ResponseWindowMinutes int
	AllowAICohost         bool
	VaultMode             string
	InviteeIDs            []string
}

// CreateSession создает сессию-черновик: генерирует шаблон, раздает
// ходы по пропускам и приглашает участников. Все в одной транзакции.
func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	source := models.NormalizeTemplateSource(input.TemplateSource)
	length := models.NormalizeTemplateLength(input.TemplateLength)

	seedText := ""
	if input.SeedText != nil {
		seedText = strings.TrimSpace(*input.SeedText)
	}
	if source == models.TemplateSourceCustom && seedText == "" {
		return nil, models.ErrSeedTextRequired
	}

	genre := ""
	if input.Genre != nil {
		genre = *input.Genre
	}
	tmpl := templates.Generate(templates.Options{
		Genre:    genre,
		Length:   string(length),
		SeedText: seedText,
	})

	window := input.ResponseWindowMinutes
	if window <= 0 {
		window = defaultResponseWindowMinutes
	}

	vaultMode := models.VisibilityInviteOnly
	if models.VaultVisibility(input.VaultMode) == models.VisibilityPublic {
		vaultMode = models.VisibilityPublic
	}

	session := &models.Session{
		HostID:                input.HostID,
		Title:                 input.Title,
		Genre:                 input.Genre,
		TemplateSource:        source,
		TemplateLength:        length,
		Status:                models.SessionStatusDraft,
		PreviewText:           &tmpl.OriginalText,
		TemplateText:          &tmpl.Template,
		ResponseWindowMinutes: window,
		AllowAICohost:         input.AllowAICohost,
		VaultMode:             vaultMode,
	}
	if seedText != "" {
		session.SeedText = &seedText
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		if err := s.repo.CreateSession(ctx, tx, session); err != nil {
			return err
		}
		if session.HostID != nil {
			if err := s.repo.UpsertHostParticipant(ctx, tx, session.ID, *session.HostID); err != nil {
				return err
			}
		}
		invitees := dedupeInvitees(input.InviteeIDs, session.HostID)
		if err := s.repo.UpsertInvitedParticipants(ctx, tx, session.ID, invitees); err != nil {
			return err
		}

		for i, blank := range tmpl.Blanks {
			placeholder := templates.PlaceholderToken(blank.ID, blank.Slot)
			turn := &models.Turn{
				SessionID:     session.ID,
				OrderIndex:    i,
				Status:        models.TurnStatusPending,
				Prompt:        strPtr(blank.Prompt),
				PartOfSpeech:  strPtr(blank.Slot),
				CreativeNudge: strPtr(blank.Description),
				Placeholder:   strPtr(placeholder),
			}
			if err := s.repo.InsertTurn(ctx, tx, turn); err != nil {
				return err
			}
			payload, err := json.Marshal(models.SeededPayload{
				Slot:        blank.Slot,
				Placeholder: placeholder,
				Prompt:      blank.Prompt,
				Description: blank.Description,
				Example:     blank.Example,
			})
			if err != nil {
				return fmt.Errorf("ошибка сериализации seed-события: %w", err)
			}
			if err := s.repo.InsertTurnEvent(ctx, tx, turn.ID, models.EventTurnSeeded, payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CreateSession: %w", err)
	}

	s.broadcast(ctx, session.ID, models.EventSessionCreated, map[string]any{
		"sessionId":  session.ID.String(),
		"status":     session.Status,
		"blankCount": tmpl.Metadata.BlankCount,
	})
	if session.HostID != nil {
		s.dispatchReward(*session.HostID, session.ID, "host_session", rewardHostSession)
	}

	return s.GetSession(ctx, session.ID)
}

// GetSession возвращает сессию с участниками, ходами и журналом событий.
func (s *SessionService) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	pool := s.tx.Pool()
	session, err := s.repo.GetSession(ctx, pool, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, pool, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.repo.ListTurns(ctx, pool, sessionID)
	if err != nil {
		return nil, err
	}
	turnIDs := make([]uuid.UUID, len(turns))
	for i, turn := range turns {
		turnIDs[i] = turn.ID
	}
	events, err := s.repo.ListTurnEvents(ctx, pool, turnIDs)
	if err != nil {
		return nil, err
	}
	for _, turn := range turns {
		turn.Events = events[turn.ID]
	}
	session.Participants = participants
	session.Turns = turns
	return session, nil
}

// ListSessions возвращает сессии по фильтру вместе с участниками.
func (s *SessionService) ListSessions(ctx context.Context, filter repository.ListSessionsFilter) ([]*models.Session, error) {
	pool := s.tx.Pool()
	sessions, err := s.repo.ListSessions(ctx, pool, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(sessions))
	for i, session := range sessions {
		ids[i] = session.ID
	}
	participants, err := s.repo.ListParticipantsForSessions(ctx, pool, ids)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		session.Participants = participants[session.ID]
	}
	return sessions, nil
}

// ListParticipants возвращает участников сессии.
func (s *SessionService) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	if _, err := s.repo.GetSession(ctx, s.tx.Pool(), sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListParticipants(ctx, s.tx.Pool(), sessionID)
}

// Invite приглашает пользователей в сессию. Только ведущий.
// Идемпотентно: повторное приглашение возвращает участника в invited.
func (s *SessionService) Invite(ctx context.Context, sessionID uuid.UUID, requesterID string, inviteeIDs []string) error {
	if len(inviteeIDs) == 0 {
		return fmt.Errorf("%w: список приглашаемых пуст", models.ErrInvalidInput)
	}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		session, err := s.repo.GetSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireHost(session, requesterID); err != nil {
			return err
		}
		invitees := dedupeInvitees(inviteeIDs, session.HostID)
		return s.repo.UpsertInvitedParticipants(ctx, tx, sessionID, invitees)
	})
	if err != nil {
		return fmt.Errorf("Invite: %w", err)
	}
	return nil
}

// Respond фиксирует ответ участника на приглашение.
// Принятие приглашения асинхронно начисляет награду.
func (s *SessionService) Respond(ctx context.Context, sessionID uuid.UUID, userID string, status models.ParticipantStatus) (*models.Participant, error) {
	switch status {
	case models.ParticipantAccepted, models.ParticipantDeclined, models.ParticipantLeft:
	default:
		return nil, fmt.Errorf("%w: недопустимый статус приглашения '%s'", models.ErrInvalidInput, status)
	}

	var participant *models.Participant
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		if _, err := s.repo.GetSession(ctx, tx, sessionID); err != nil {
			return err
		}
		updated, err := s.repo.UpdateParticipantStatus(ctx, tx, sessionID, userID, status)
		if err != nil {
			return err
		}
		participant = updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Respond: %w", err)
	}

	s.broadcast(ctx, sessionID, models.EventParticipantStatus, map[string]any{
		"userId": userID,
		"status": status,
	})
	if status == models.ParticipantAccepted {
		s.dispatchReward(userID, sessionID, "accept_invite", rewardAcceptInvite)
	}
	return participant, nil
}

// broadcast публикует событие в realtime-канал сессии. Best effort:
// ошибка логируется и не влияет на результат операции.
func (s *SessionService) broadcast(ctx context.Context, sessionID uuid.UUID, event models.EventType, data any) {
	if err := s.broadcaster.PublishSessionEvent(ctx, sessionID, event, data); err != nil {
		s.logger.Warn("Failed to broadcast session event",
			zap.String("sessionID", sessionID.String()),
			zap.String("event", string(event)),
			zap.Error(err))
	}
}

// dispatchReward начисляет награду в фоне со своим таймаутом.
func (s *SessionService) dispatchReward(userID string, sessionID uuid.UUID, reason string, amount int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		payload := messaging.RewardPayload{
			UserID:    userID,
			SessionID: sessionID.String(),
			Reason:    reason,
			Amount:    amount,
		}
		if err := s.rewards.PublishReward(ctx, payload); err != nil {
			s.logger.Warn("Failed to publish reward",
				zap.String("userID", userID),
				zap.String("reason", reason),
				zap.Error(err))
		}
	}()
}

func requireHost(session *models.Session, userID string) error {
	if session.HostID == nil || *session.HostID != userID {
		return models.ErrNotSessionHost
	}
	return nil
}

func dedupeInvitees(userIDs []string, hostID *string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	result := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if hostID != nil && id == *hostID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func strPtr(s string) *string {
	return &s
}
