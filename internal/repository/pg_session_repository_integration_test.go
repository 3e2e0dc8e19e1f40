package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"lips-server/internal/database"
	"lips-server/internal/models"
	"lips-server/internal/repository"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// RepositoryIntegrationSuite гоняет репозиторий против настоящего
// PostgreSQL в контейнере: именно здесь проверяются conditional update
// гонки, которые не видны на моках.
type RepositoryIntegrationSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool
	repo        repository.SessionRepository
	txManager   *repository.TxManager
	logger      *zap.Logger
}

func (s *RepositoryIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err, "Failed to create logger for tests")

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("lips_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get postgres connection string")

	require.NoError(s.T(), database.ApplyMigrations(connStr), "Failed to run migrations")

	s.pool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to connect to test postgres")

	s.repo = repository.NewPgSessionRepository(s.logger)
	s.txManager = repository.NewTxManager(s.pool, s.logger)
}

func (s *RepositoryIntegrationSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Error("Failed to terminate postgres container", zap.Error(err))
		}
	}
}

func (s *RepositoryIntegrationSuite) SetupTest() {
	// Каскад FK вычищает участников, ходы, события и vault-записи
	_, err := s.pool.Exec(s.ctx, "TRUNCATE TABLE lips_sessions CASCADE")
	require.NoError(s.T(), err, "Failed to truncate lips_sessions")
}

func TestRepositoryIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Fatalf("Docker client init error: %v. Ensure Docker is running and accessible.", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Fatalf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(RepositoryIntegrationSuite))
}

// --- Хелперы ---

func (s *RepositoryIntegrationSuite) createSession(hostID string) *models.Session {
	t := s.T()
	template := "We [[VERB_1::verb]] into the [[PLACE_11::place]]."
	preview := "We _____ into the _____."
	title := "Integration Heist"
	session := &models.Session{
		HostID:                &hostID,
		Title:                 &title,
		TemplateSource:        models.TemplateSourceAI,
		TemplateLength:        models.TemplateLengthQuick,
		PreviewText:           &preview,
		TemplateText:          &template,
		Status:                models.SessionStatusDraft,
		ResponseWindowMinutes: 5,
		VaultMode:             models.VisibilityInviteOnly,
	}
	require.NoError(t, s.repo.CreateSession(s.ctx, s.pool, session))
	require.NotEqual(t, uuid.Nil, session.ID, "CreateSession should assign an ID")
	return session
}

func (s *RepositoryIntegrationSuite) createTurn(sessionID uuid.UUID, orderIndex int, slot string) *models.Turn {
	t := s.T()
	placeholder := "[[" + slot + "]]"
	turn := &models.Turn{
		SessionID:    sessionID,
		OrderIndex:   orderIndex,
		Status:       models.TurnStatusPending,
		PartOfSpeech: &slot,
		Placeholder:  &placeholder,
	}
	require.NoError(t, s.repo.InsertTurn(s.ctx, s.pool, turn))
	require.NotEqual(t, uuid.Nil, turn.ID)
	return turn
}

func strPtr(v string) *string { return &v }

// --- Тесты ---

func (s *RepositoryIntegrationSuite) TestSessionRoundtrip() {
	t := s.T()
	session := s.createSession("host-1")

	loaded, err := s.repo.GetSession(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.HostID)
	require.Equal(t, "host-1", *loaded.HostID)
	require.Equal(t, models.SessionStatusDraft, loaded.Status)
	require.Equal(t, models.TemplateSourceAI, loaded.TemplateSource)
	require.Equal(t, 5, loaded.ResponseWindowMinutes)
	require.Equal(t, models.VisibilityInviteOnly, loaded.VaultMode)

	_, err = s.repo.GetSession(s.ctx, s.pool, uuid.New())
	require.True(t, errors.Is(err, models.ErrSessionNotFound))

	require.NoError(t, s.repo.UpdateSessionStatus(s.ctx, s.pool, session.ID, models.SessionStatusActive))
	loaded, err = s.repo.GetSession(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, loaded.Status)

	err = s.repo.UpdateSessionStatus(s.ctx, s.pool, uuid.New(), models.SessionStatusActive)
	require.True(t, errors.Is(err, models.ErrSessionNotFound))
}

func (s *RepositoryIntegrationSuite) TestParticipants() {
	t := s.T()
	session := s.createSession("host-1")

	require.NoError(t, s.repo.UpsertHostParticipant(s.ctx, s.pool, session.ID, "host-1"))
	require.NoError(t, s.repo.UpsertInvitedParticipants(s.ctx, s.pool, session.ID, []string{"p2", "p3"}))

	participants, err := s.repo.ListParticipants(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.Len(t, participants, 3)

	host, err := s.repo.GetParticipant(s.ctx, s.pool, session.ID, "host-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleHost, host.Role)
	require.Equal(t, models.ParticipantAccepted, host.Status)

	// Чужак не участник, а ответ на несуществующее приглашение - not found
	_, err = s.repo.GetParticipant(s.ctx, s.pool, session.ID, "ghost")
	require.True(t, errors.Is(err, models.ErrNotSessionParticipant))
	_, err = s.repo.UpdateParticipantStatus(s.ctx, s.pool, session.ID, "ghost", models.ParticipantAccepted)
	require.True(t, errors.Is(err, models.ErrParticipantNotFound))

	// Принятие приглашения
	updated, err := s.repo.UpdateParticipantStatus(s.ctx, s.pool, session.ID, "p2", models.ParticipantAccepted)
	require.NoError(t, err)
	require.Equal(t, models.ParticipantAccepted, updated.Status)

	// Повторное приглашение отклонившего возвращает его в invited
	_, err = s.repo.UpdateParticipantStatus(s.ctx, s.pool, session.ID, "p3", models.ParticipantDeclined)
	require.NoError(t, err)
	require.NoError(t, s.repo.UpsertInvitedParticipants(s.ctx, s.pool, session.ID, []string{"p3"}))
	p3, err := s.repo.GetParticipant(s.ctx, s.pool, session.ID, "p3")
	require.NoError(t, err)
	require.Equal(t, models.ParticipantInvited, p3.Status)

	// Дубликат не создается: уникальность пары (session, user)
	participants, err = s.repo.ListParticipants(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.Len(t, participants, 3)
}

func (s *RepositoryIntegrationSuite) TestListSessionsFilters() {
	t := s.T()
	first := s.createSession("host-1")
	second := s.createSession("host-2")
	require.NoError(t, s.repo.UpsertHostParticipant(s.ctx, s.pool, first.ID, "host-1"))
	require.NoError(t, s.repo.UpsertHostParticipant(s.ctx, s.pool, second.ID, "host-2"))
	require.NoError(t, s.repo.UpsertInvitedParticipants(s.ctx, s.pool, second.ID, []string{"p2"}))
	require.NoError(t, s.repo.UpdateSessionStatus(s.ctx, s.pool, second.ID, models.SessionStatusActive))

	all, err := s.repo.ListSessions(s.ctx, s.pool, repository.ListSessionsFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	active := models.SessionStatusActive
	byStatus, err := s.repo.ListSessions(s.ctx, s.pool, repository.ListSessionsFilter{Status: &active})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	require.Equal(t, second.ID, byStatus[0].ID)

	p2 := "p2"
	byUser, err := s.repo.ListSessions(s.ctx, s.pool, repository.ListSessionsFilter{UserID: &p2})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, second.ID, byUser[0].ID)

	limited, err := s.repo.ListSessions(s.ctx, s.pool, repository.ListSessionsFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func (s *RepositoryIntegrationSuite) TestTurnWindowAndSingleWriter() {
	t := s.T()
	session := s.createSession("host-1")
	first := s.createTurn(session.ID, 0, "VERB_1::verb")
	second := s.createTurn(session.ID, 1, "PLACE_11::place")
	third := s.createTurn(session.ID, 2, "ANIMAL_8::animal")

	// До активации текущего хода нет и submit невозможен
	current, err := s.repo.CurrentDueTurn(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.Nil(t, current)

	_, err = s.repo.SubmitTurn(s.ctx, s.pool, first.ID, "sprint", strPtr("@p2"))
	require.True(t, errors.Is(err, models.ErrTurnNotSubmittable), "submit до открытия окна должен отклоняться")

	// Активация открывает окно
	require.NoError(t, s.repo.ActivateTurn(s.ctx, s.pool, first.ID, 5*time.Minute))
	current, err = s.repo.CurrentDueTurn(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, first.ID, current.ID)
	require.NotNil(t, current.DueAt)
	require.NotNil(t, current.ExpiresAt)
	require.True(t, current.ExpiresAt.After(*current.DueAt))

	// Побеждает ровно один писатель
	submitted, err := s.repo.SubmitTurn(s.ctx, s.pool, first.ID, "sprint", strPtr("@p2"))
	require.NoError(t, err)
	require.Equal(t, models.TurnStatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedText)
	require.Equal(t, "sprint", *submitted.SubmittedText)
	require.Nil(t, submitted.DueAt, "окно закрывается при submit")

	_, err = s.repo.SubmitTurn(s.ctx, s.pool, first.ID, "crawl", strPtr("@p3"))
	require.True(t, errors.Is(err, models.ErrTurnNotSubmittable), "второй писатель проигрывает гонку")

	// Следующий pending со строго большим индексом
	next, err := s.repo.NextPendingTurnAfter(s.ctx, s.pool, session.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, second.ID, next.ID)

	// Пропуск хода: окно открыли и закрыли, ход остается pending
	require.NoError(t, s.repo.ActivateTurn(s.ctx, s.pool, second.ID, 5*time.Minute))
	require.NoError(t, s.repo.CloseTurnWindow(s.ctx, s.pool, second.ID))
	current, err = s.repo.CurrentDueTurn(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.Nil(t, current)

	// AutoFill закрывает пропущенный ход без открытого окна
	filled, err := s.repo.AutoFillTurn(s.ctx, s.pool, second.ID, "floating market", strPtr("@ai-cohost"))
	require.NoError(t, err)
	require.Equal(t, models.TurnStatusAutoFilled, filled.Status)
	require.True(t, filled.AutoFilled)
	require.NotNil(t, filled.AutoFillText)
	require.Equal(t, "floating market", *filled.AutoFillText)

	_, err = s.repo.AutoFillTurn(s.ctx, s.pool, second.ID, "again", nil)
	require.True(t, errors.Is(err, models.ErrTurnAlreadyResolved))

	// Разрешенный ход нельзя активировать заново
	err = s.repo.ActivateTurn(s.ctx, s.pool, first.ID, 5*time.Minute)
	require.True(t, errors.Is(err, models.ErrTurnAlreadyResolved))

	// После третьего хода pending-ходов не остается
	last, err := s.repo.NextPendingTurnAfter(s.ctx, s.pool, session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, third.ID, last.ID)
	none, err := s.repo.NextPendingTurnAfter(s.ctx, s.pool, session.ID, 2)
	require.NoError(t, err)
	require.Nil(t, none)

	turns, err := s.repo.ListTurns(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, 0, turns[0].OrderIndex)
	require.Equal(t, 2, turns[2].OrderIndex)
}

func (s *RepositoryIntegrationSuite) TestTurnEventsJournal() {
	t := s.T()
	session := s.createSession("host-1")
	turn := s.createTurn(session.ID, 0, "VERB_1::verb")

	seeded, err := json.Marshal(models.SeededPayload{Slot: "verb", Placeholder: "[[VERB_1::verb]]", Prompt: "Verb"})
	require.NoError(t, err)
	require.NoError(t, s.repo.InsertTurnEvent(s.ctx, s.pool, turn.ID, models.EventTurnSeeded, seeded))

	handle := "@p2"
	submittedPayload, err := json.Marshal(models.SubmissionPayload{Handle: &handle})
	require.NoError(t, err)
	require.NoError(t, s.repo.InsertTurnEvent(s.ctx, s.pool, turn.ID, models.EventSubmitted, submittedPayload))

	// Пустая нагрузка допустима
	require.NoError(t, s.repo.InsertTurnEvent(s.ctx, s.pool, turn.ID, models.EventType("player_reaction"), nil))

	events, err := s.repo.ListTurnEvents(s.ctx, s.pool, []uuid.UUID{turn.ID})
	require.NoError(t, err)
	journal := events[turn.ID]
	require.Len(t, journal, 3)

	require.Equal(t, models.EventTurnSeeded, journal[0].EventType)
	require.NotNil(t, journal[0].Payload.Seeded)
	require.Equal(t, "verb", journal[0].Payload.Seeded.Slot)

	require.Equal(t, models.EventSubmitted, journal[1].EventType)
	require.NotNil(t, journal[1].Payload.Submission)
	require.Equal(t, "@p2", *journal[1].Payload.Submission.Handle)

	require.Equal(t, models.EventType("player_reaction"), journal[2].EventType)
	require.NotNil(t, journal[2].Payload.Custom)
}

func (s *RepositoryIntegrationSuite) TestVaultLifecycleAndFeed() {
	t := s.T()
	session := s.createSession("host-1")

	entry, err := s.repo.UpsertVaultEntry(s.ctx, s.pool, session.ID, "First Title", "Raw story.", models.VisibilityInviteOnly)
	require.NoError(t, err)
	require.Equal(t, models.VisibilityInviteOnly, entry.Visibility)

	// Публичная лента пуста, пока ничего не опубликовано
	feed, err := s.repo.ListPublishedEntries(s.ctx, s.pool, 10, 0)
	require.NoError(t, err)
	require.Empty(t, feed)

	// AI-поля и резюме
	summary, err := s.repo.SetVaultSummary(s.ctx, s.pool, entry.ID, "A punchy recap.", strPtr("space"))
	require.NoError(t, err)
	require.NotNil(t, summary.SummaryText)
	require.Equal(t, "A punchy recap.", *summary.SummaryText)
	require.NotNil(t, summary.ThemePrompt)

	aiStory, err := s.repo.SetVaultAIStory(s.ctx, s.pool, entry.ID, "A polished story.", nil)
	require.NoError(t, err)
	require.NotNil(t, aiStory.AIStoryText)
	// Nil theme не затирает ранее сохраненный
	require.NotNil(t, aiStory.ThemePrompt)
	require.Equal(t, "space", *aiStory.ThemePrompt)

	// Повторный upsert обновляет текст, не трогая AI-поля
	updated, err := s.repo.UpsertVaultEntry(s.ctx, s.pool, session.ID, "Second Title", "Edited story.", models.VisibilityInviteOnly)
	require.NoError(t, err)
	require.Equal(t, entry.ID, updated.ID, "upsert не должен создавать вторую запись")
	require.Equal(t, "Second Title", updated.Title)
	require.Equal(t, "Edited story.", updated.StoryText)
	require.NotNil(t, updated.SummaryText)

	// Публикация
	published, err := s.repo.SetVaultPublication(s.ctx, s.pool, entry.ID, models.VisibilityPublic, strPtr("host-1"))
	require.NoError(t, err)
	require.Equal(t, models.VisibilityPublic, published.Visibility)
	require.NotNil(t, published.PublishedAt)
	require.NotNil(t, published.PublishedBy)
	require.Equal(t, "host-1", *published.PublishedBy)

	feed, err = s.repo.ListPublishedEntries(s.ctx, s.pool, 10, 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Equal(t, "Second Title", feed[0].Title)
	require.NotNil(t, feed[0].SessionTitle)
	require.Equal(t, "Integration Heist", *feed[0].SessionTitle)
	require.NotNil(t, feed[0].HostID)
	require.Equal(t, "host-1", *feed[0].HostID)

	// Снятие с публикации очищает метки
	hidden, err := s.repo.SetVaultPublication(s.ctx, s.pool, entry.ID, models.VisibilityInviteOnly, nil)
	require.NoError(t, err)
	require.Equal(t, models.VisibilityInviteOnly, hidden.Visibility)
	require.Nil(t, hidden.PublishedAt)
	require.Nil(t, hidden.PublishedBy)

	feed, err = s.repo.ListPublishedEntries(s.ctx, s.pool, 10, 0)
	require.NoError(t, err)
	require.Empty(t, feed)

	_, err = s.repo.GetVaultEntryBySession(s.ctx, s.pool, uuid.New())
	require.True(t, errors.Is(err, models.ErrVaultNotFound))
}

func (s *RepositoryIntegrationSuite) TestTransactionRollback() {
	t := s.T()
	boom := errors.New("boom")

	var sessionID uuid.UUID
	err := s.txManager.WithTransaction(s.ctx, func(ctx context.Context, tx repository.DBTX) error {
		session := &models.Session{
			HostID:         strPtr("host-1"),
			TemplateSource: models.TemplateSourceAI,
			TemplateLength: models.TemplateLengthQuick,
			Status:         models.SessionStatusDraft,
			VaultMode:      models.VisibilityInviteOnly,
		}
		if err := s.repo.CreateSession(ctx, tx, session); err != nil {
			return err
		}
		sessionID = session.ID
		return boom
	})
	require.True(t, errors.Is(err, boom))

	_, err = s.repo.GetSession(s.ctx, s.pool, sessionID)
	require.True(t, errors.Is(err, models.ErrSessionNotFound), "rollback должен отменить создание сессии")
}

func (s *RepositoryIntegrationSuite) TestSessionForUpdateLocksRow() {
	t := s.T()
	session := s.createSession("host-1")

	// Блокировка берется и отпускается в рамках транзакции
	err := s.txManager.WithTransaction(s.ctx, func(ctx context.Context, tx repository.DBTX) error {
		locked, err := s.repo.GetSessionForUpdate(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		require.Equal(t, session.ID, locked.ID)
		return s.repo.UpdateSessionStatus(ctx, tx, session.ID, models.SessionStatusActive)
	})
	require.NoError(t, err)

	loaded, err := s.repo.GetSession(s.ctx, s.pool, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, loaded.Status)
}
