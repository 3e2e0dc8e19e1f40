package service_test

import (
	"context"
	"errors"
	"testing"

	repoMocks "lips-server/internal/repository/mocks"
	"lips-server/internal/service"
	svcMocks "lips-server/internal/service/mocks"
	"lips-server/internal/story"

	"lips-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testDeps собирает сервис со всеми замоканными зависимостями.
type testDeps struct {
	repo        *repoMocks.SessionRepository
	broadcaster *svcMocks.EventBroadcaster
	rewards     *svcMocks.RewardPublisher
	aiClient    *svcMocks.AIClient
	service     *service.SessionService
}

func newTestService() *testDeps {
	deps := &testDeps{
		repo:        new(repoMocks.SessionRepository),
		broadcaster: new(svcMocks.EventBroadcaster),
		rewards:     new(svcMocks.RewardPublisher),
		aiClient:    new(svcMocks.AIClient),
	}
	deps.service = service.NewSessionService(
		deps.repo,
		&svcMocks.TxManager{},
		story.NewAssembler(),
		deps.broadcaster,
		deps.rewards,
		deps.aiClient,
		zap.NewNop(),
	)
	// Награды начисляются в фоне, в тестах их публикация не детерминирована
	deps.rewards.On("PublishReward", mock.Anything, mock.Anything).Return(nil).Maybe()
	return deps
}

// expectGetSession настраивает моки read-пути GetSession.
func expectGetSession(deps *testDeps, session *models.Session) {
	deps.repo.On("GetSession", mock.Anything, mock.Anything, session.ID).Return(session, nil)
	deps.repo.On("ListParticipants", mock.Anything, mock.Anything, session.ID).Return([]*models.Participant{}, nil)
	deps.repo.On("ListTurns", mock.Anything, mock.Anything, session.ID).Return([]*models.Turn{}, nil)
	deps.repo.On("ListTurnEvents", mock.Anything, mock.Anything, mock.Anything).Return(map[uuid.UUID][]*models.TurnEvent{}, nil)
}

func strPtr(s string) *string { return &s }

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	hostID := "host-1"

	t.Run("Successful creation with invitees", func(t *testing.T) {
		deps := newTestService()
		sessionID := uuid.New()

		deps.repo.On("CreateSession", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.Session) bool {
			assert.Equal(t, models.SessionStatusDraft, s.Status)
			assert.Equal(t, models.TemplateSourceAI, s.TemplateSource)
			assert.Equal(t, models.TemplateLengthQuick, s.TemplateLength)
			assert.NotNil(t, s.TemplateText)
			assert.NotNil(t, s.PreviewText)
			assert.Equal(t, 5, s.ResponseWindowMinutes)
			return true
		})).Run(func(args mock.Arguments) {
			args.Get(2).(*models.Session).ID = sessionID
		}).Return(nil).Once()

		deps.repo.On("UpsertHostParticipant", mock.Anything, mock.Anything, sessionID, hostID).Return(nil).Once()
		// Ведущий и дубликаты выкидываются из списка приглашенных
		deps.repo.On("UpsertInvitedParticipants", mock.Anything, mock.Anything, sessionID, []string{"p2", "p3"}).Return(nil).Once()
		deps.repo.On("InsertTurn", mock.Anything, mock.Anything, mock.Anything).Return(nil).Times(23)
		deps.repo.On("InsertTurnEvent", mock.Anything, mock.Anything, mock.Anything, models.EventTurnSeeded, mock.Anything).Return(nil).Times(23)

		deps.broadcaster.On("PublishSessionEvent", mock.Anything, sessionID, models.EventSessionCreated, mock.Anything).Return(nil).Once()

		expectGetSession(deps, &models.Session{ID: sessionID, HostID: &hostID, Status: models.SessionStatusDraft})

		session, err := deps.service.CreateSession(ctx, service.CreateSessionInput{
			HostID:     &hostID,
			Genre:      strPtr("heist"),
			InviteeIDs: []string{"p2", hostID, "p2", "p3", "  "},
		})

		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, sessionID, session.ID)

		deps.repo.AssertExpectations(t)
		deps.broadcaster.AssertExpectations(t)
	})

	t.Run("Custom template requires seed text", func(t *testing.T) {
		deps := newTestService()

		session, err := deps.service.CreateSession(ctx, service.CreateSessionInput{
			HostID:         &hostID,
			TemplateSource: "custom",
		})

		require.Error(t, err)
		assert.Nil(t, session)
		assert.True(t, errors.Is(err, models.ErrSeedTextRequired))
		deps.repo.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Repository error aborts creation", func(t *testing.T) {
		deps := newTestService()
		dbError := errors.New("database error")
		deps.repo.On("CreateSession", mock.Anything, mock.Anything, mock.Anything).Return(dbError).Once()

		session, err := deps.service.CreateSession(ctx, service.CreateSessionInput{HostID: &hostID})

		require.Error(t, err)
		assert.Nil(t, session)
		assert.True(t, errors.Is(err, dbError))
		deps.broadcaster.AssertNotCalled(t, "PublishSessionEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Headless session without host", func(t *testing.T) {
		deps := newTestService()
		sessionID := uuid.New()

		deps.repo.On("CreateSession", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			args.Get(2).(*models.Session).ID = sessionID
		}).Return(nil).Once()
		deps.repo.On("UpsertInvitedParticipants", mock.Anything, mock.Anything, sessionID, []string{}).Return(nil).Once()
		deps.repo.On("InsertTurn", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		deps.repo.On("InsertTurnEvent", mock.Anything, mock.Anything, mock.Anything, models.EventTurnSeeded, mock.Anything).Return(nil)
		deps.broadcaster.On("PublishSessionEvent", mock.Anything, sessionID, models.EventSessionCreated, mock.Anything).Return(nil).Once()
		expectGetSession(deps, &models.Session{ID: sessionID, Status: models.SessionStatusDraft})

		session, err := deps.service.CreateSession(ctx, service.CreateSessionInput{})

		require.NoError(t, err)
		require.NotNil(t, session)
		deps.repo.AssertNotCalled(t, "UpsertHostParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestInvite(t *testing.T) {
	ctx := context.Background()
	hostID := "host-1"
	sessionID := uuid.New()

	t.Run("Empty invitee list is rejected", func(t *testing.T) {
		deps := newTestService()

		err := deps.service.Invite(ctx, sessionID, hostID, nil)

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})

	t.Run("Only host can invite", func(t *testing.T) {
		deps := newTestService()
		deps.repo.On("GetSession", mock.Anything, mock.Anything, sessionID).
			Return(&models.Session{ID: sessionID, HostID: &hostID}, nil).Once()

		err := deps.service.Invite(ctx, sessionID, "stranger", []string{"p2"})

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrNotSessionHost))
		deps.repo.AssertNotCalled(t, "UpsertInvitedParticipants", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Successful invite deduplicates", func(t *testing.T) {
		deps := newTestService()
		deps.repo.On("GetSession", mock.Anything, mock.Anything, sessionID).
			Return(&models.Session{ID: sessionID, HostID: &hostID}, nil).Once()
		deps.repo.On("UpsertInvitedParticipants", mock.Anything, mock.Anything, sessionID, []string{"p2"}).Return(nil).Once()

		err := deps.service.Invite(ctx, sessionID, hostID, []string{"p2", hostID, "p2"})

		require.NoError(t, err)
		deps.repo.AssertExpectations(t)
	})
}

func TestRespond(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()

	t.Run("Invalid status is rejected", func(t *testing.T) {
		deps := newTestService()

		participant, err := deps.service.Respond(ctx, sessionID, "p2", models.ParticipantStatus("banana"))

		require.Error(t, err)
		assert.Nil(t, participant)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
		deps.repo.AssertNotCalled(t, "UpdateParticipantStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Accepting updates status and broadcasts", func(t *testing.T) {
		deps := newTestService()
		updated := &models.Participant{SessionID: sessionID, UserID: "p2", Status: models.ParticipantAccepted}
		deps.repo.On("GetSession", mock.Anything, mock.Anything, sessionID).
			Return(&models.Session{ID: sessionID}, nil).Once()
		deps.repo.On("UpdateParticipantStatus", mock.Anything, mock.Anything, sessionID, "p2", models.ParticipantAccepted).
			Return(updated, nil).Once()
		deps.broadcaster.On("PublishSessionEvent", mock.Anything, sessionID, models.EventParticipantStatus, mock.Anything).Return(nil).Once()

		participant, err := deps.service.Respond(ctx, sessionID, "p2", models.ParticipantAccepted)

		require.NoError(t, err)
		assert.Equal(t, updated, participant)
		deps.repo.AssertExpectations(t)
		deps.broadcaster.AssertExpectations(t)
	})

	t.Run("Unknown participant", func(t *testing.T) {
		deps := newTestService()
		deps.repo.On("GetSession", mock.Anything, mock.Anything, sessionID).
			Return(&models.Session{ID: sessionID}, nil).Once()
		deps.repo.On("UpdateParticipantStatus", mock.Anything, mock.Anything, sessionID, "ghost", models.ParticipantDeclined).
			Return(nil, models.ErrParticipantNotFound).Once()

		participant, err := deps.service.Respond(ctx, sessionID, "ghost", models.ParticipantDeclined)

		require.Error(t, err)
		assert.Nil(t, participant)
		assert.True(t, errors.Is(err, models.ErrParticipantNotFound))
		deps.broadcaster.AssertNotCalled(t, "PublishSessionEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
