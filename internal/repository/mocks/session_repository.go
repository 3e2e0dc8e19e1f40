package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"lips-server/internal/models"
	"lips-server/internal/repository"
)

// Mock SessionRepository
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) CreateSession(ctx context.Context, q repository.DBTX, session *models.Session) error {
	args := m.Called(ctx, q, session)
	return args.Error(0)
}

func (m *SessionRepository) GetSession(ctx context.Context, q repository.DBTX, id uuid.UUID) (*models.Session, error) {
	args := m.Called(ctx, q, id)
	var session *models.Session
	if args.Get(0) != nil {
		session = args.Get(0).(*models.Session)
	}
	return session, args.Error(1)
}

func (m *SessionRepository) GetSessionForUpdate(ctx context.Context, q repository.DBTX, id uuid.UUID) (*models.Session, error) {
	args := m.Called(ctx, q, id)
	var session *models.Session
	if args.Get(0) != nil {
		session = args.Get(0).(*models.Session)
	}
	return session, args.Error(1)
}

func (m *SessionRepository) ListSessions(ctx context.Context, q repository.DBTX, filter repository.ListSessionsFilter) ([]*models.Session, error) {
	args := m.Called(ctx, q, filter)
	var sessions []*models.Session
	if args.Get(0) != nil {
		sessions = args.Get(0).([]*models.Session)
	}
	return sessions, args.Error(1)
}

func (m *SessionRepository) UpdateSessionStatus(ctx context.Context, q repository.DBTX, id uuid.UUID, status models.SessionStatus) error {
	args := m.Called(ctx, q, id, status)
	return args.Error(0)
}

func (m *SessionRepository) UpdateSessionVaultMode(ctx context.Context, q repository.DBTX, id uuid.UUID, mode models.VaultVisibility) error {
	args := m.Called(ctx, q, id, mode)
	return args.Error(0)
}

func (m *SessionRepository) UpsertHostParticipant(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, hostID string) error {
	args := m.Called(ctx, q, sessionID, hostID)
	return args.Error(0)
}

func (m *SessionRepository) UpsertInvitedParticipants(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, userIDs []string) error {
	args := m.Called(ctx, q, sessionID, userIDs)
	return args.Error(0)
}

func (m *SessionRepository) ListParticipants(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) ([]*models.Participant, error) {
	args := m.Called(ctx, q, sessionID)
	var participants []*models.Participant
	if args.Get(0) != nil {
		participants = args.Get(0).([]*models.Participant)
	}
	return participants, args.Error(1)
}

func (m *SessionRepository) ListParticipantsForSessions(ctx context.Context, q repository.DBTX, sessionIDs []uuid.UUID) (map[uuid.UUID][]*models.Participant, error) {
	args := m.Called(ctx, q, sessionIDs)
	var result map[uuid.UUID][]*models.Participant
	if args.Get(0) != nil {
		result = args.Get(0).(map[uuid.UUID][]*models.Participant)
	}
	return result, args.Error(1)
}

func (m *SessionRepository) GetParticipant(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, userID string) (*models.Participant, error) {
	args := m.Called(ctx, q, sessionID, userID)
	var participant *models.Participant
	if args.Get(0) != nil {
		participant = args.Get(0).(*models.Participant)
	}
	return participant, args.Error(1)
}

func (m *SessionRepository) UpdateParticipantStatus(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, userID string, status models.ParticipantStatus) (*models.Participant, error) {
	args := m.Called(ctx, q, sessionID, userID, status)
	var participant *models.Participant
	if args.Get(0) != nil {
		participant = args.Get(0).(*models.Participant)
	}
	return participant, args.Error(1)
}

func (m *SessionRepository) InsertTurn(ctx context.Context, q repository.DBTX, turn *models.Turn) error {
	args := m.Called(ctx, q, turn)
	return args.Error(0)
}

func (m *SessionRepository) GetTurn(ctx context.Context, q repository.DBTX, id uuid.UUID) (*models.Turn, error) {
	args := m.Called(ctx, q, id)
	var turn *models.Turn
	if args.Get(0) != nil {
		turn = args.Get(0).(*models.Turn)
	}
	return turn, args.Error(1)
}

func (m *SessionRepository) ListTurns(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) ([]*models.Turn, error) {
	args := m.Called(ctx, q, sessionID)
	var turns []*models.Turn
	if args.Get(0) != nil {
		turns = args.Get(0).([]*models.Turn)
	}
	return turns, args.Error(1)
}

func (m *SessionRepository) AssignTurnHandle(ctx context.Context, q repository.DBTX, turnID uuid.UUID, handle string) error {
	args := m.Called(ctx, q, turnID, handle)
	return args.Error(0)
}

func (m *SessionRepository) ActivateTurn(ctx context.Context, q repository.DBTX, turnID uuid.UUID, responseWindow time.Duration) error {
	args := m.Called(ctx, q, turnID, responseWindow)
	return args.Error(0)
}

func (m *SessionRepository) CloseTurnWindow(ctx context.Context, q repository.DBTX, turnID uuid.UUID) error {
	args := m.Called(ctx, q, turnID)
	return args.Error(0)
}

func (m *SessionRepository) CurrentDueTurn(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) (*models.Turn, error) {
	args := m.Called(ctx, q, sessionID)
	var turn *models.Turn
	if args.Get(0) != nil {
		turn = args.Get(0).(*models.Turn)
	}
	return turn, args.Error(1)
}

func (m *SessionRepository) NextPendingTurnAfter(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, afterIndex int) (*models.Turn, error) {
	args := m.Called(ctx, q, sessionID, afterIndex)
	var turn *models.Turn
	if args.Get(0) != nil {
		turn = args.Get(0).(*models.Turn)
	}
	return turn, args.Error(1)
}

func (m *SessionRepository) SubmitTurn(ctx context.Context, q repository.DBTX, turnID uuid.UUID, text string, handle *string) (*models.Turn, error) {
	args := m.Called(ctx, q, turnID, text, handle)
	var turn *models.Turn
	if args.Get(0) != nil {
		turn = args.Get(0).(*models.Turn)
	}
	return turn, args.Error(1)
}

func (m *SessionRepository) AutoFillTurn(ctx context.Context, q repository.DBTX, turnID uuid.UUID, text string, handle *string) (*models.Turn, error) {
	args := m.Called(ctx, q, turnID, text, handle)
	var turn *models.Turn
	if args.Get(0) != nil {
		turn = args.Get(0).(*models.Turn)
	}
	return turn, args.Error(1)
}

func (m *SessionRepository) InsertTurnEvent(ctx context.Context, q repository.DBTX, turnID uuid.UUID, eventType models.EventType, payload json.RawMessage) error {
	args := m.Called(ctx, q, turnID, eventType, payload)
	return args.Error(0)
}

func (m *SessionRepository) ListTurnEvents(ctx context.Context, q repository.DBTX, turnIDs []uuid.UUID) (map[uuid.UUID][]*models.TurnEvent, error) {
	args := m.Called(ctx, q, turnIDs)
	var events map[uuid.UUID][]*models.TurnEvent
	if args.Get(0) != nil {
		events = args.Get(0).(map[uuid.UUID][]*models.TurnEvent)
	}
	return events, args.Error(1)
}

func (m *SessionRepository) UpsertVaultEntry(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, title, storyText string, visibility models.VaultVisibility) (*models.VaultEntry, error) {
	args := m.Called(ctx, q, sessionID, title, storyText, visibility)
	var entry *models.VaultEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*models.VaultEntry)
	}
	return entry, args.Error(1)
}

func (m *SessionRepository) GetVaultEntryBySession(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) (*models.VaultEntry, error) {
	args := m.Called(ctx, q, sessionID)
	var entry *models.VaultEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*models.VaultEntry)
	}
	return entry, args.Error(1)
}

func (m *SessionRepository) SetVaultSummary(ctx context.Context, q repository.DBTX, entryID uuid.UUID, summaryText string, themePrompt *string) (*models.VaultEntry, error) {
	args := m.Called(ctx, q, entryID, summaryText, themePrompt)
	var entry *models.VaultEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*models.VaultEntry)
	}
	return entry, args.Error(1)
}

func (m *SessionRepository) SetVaultAIStory(ctx context.Context, q repository.DBTX, entryID uuid.UUID, aiStoryText string, themePrompt *string) (*models.VaultEntry, error) {
	args := m.Called(ctx, q, entryID, aiStoryText, themePrompt)
	var entry *models.VaultEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*models.VaultEntry)
	}
	return entry, args.Error(1)
}

func (m *SessionRepository) SetVaultPublication(ctx context.Context, q repository.DBTX, entryID uuid.UUID, visibility models.VaultVisibility, publishedBy *string) (*models.VaultEntry, error) {
	args := m.Called(ctx, q, entryID, visibility, publishedBy)
	var entry *models.VaultEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*models.VaultEntry)
	}
	return entry, args.Error(1)
}

func (m *SessionRepository) ListPublishedEntries(ctx context.Context, q repository.DBTX, limit, offset int) ([]*models.FeedEntry, error) {
	args := m.Called(ctx, q, limit, offset)
	var entries []*models.FeedEntry
	if args.Get(0) != nil {
		entries = args.Get(0).([]*models.FeedEntry)
	}
	return entries, args.Error(1)
}
