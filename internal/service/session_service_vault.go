package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lips-server/internal/ai"
	"lips-server/internal/models"
	"lips-server/internal/repository"
)

const (
	summarySystemPrompt = "You are the hype narrator for a collaborative fill-in-the-blank story game. " +
		"Write a punchy, spoiler-safe recap of the finished story in 2-3 energetic sentences. " +
		"Do not reveal the final twist verbatim."
	rewriteSystemPrompt = "You are an editor for a collaborative fill-in-the-blank story game. " +
		"Rewrite the raw assembled story into a cohesive short story, under three paragraphs, " +
		"preserving every comedic beat the players created."
)

const untitledStoryTitle = "Untitled Story"

// CompleteSessionInput - необязательные переопределения завершения.
// Nil-поле означает значение по умолчанию: текст собирается из ходов,
// заголовок берется из сессии, видимость - из ее vault_mode.
type CompleteSessionInput struct {
	StoryText  *string
	Title      *string
	Visibility *models.VaultVisibility
}

// Complete завершает сессию и фиксирует итоговую историю в vault.
// Идемпотентный upsert: повторный вызов пересобирает текст и
// перезаписывает запись, переопределения из input имеют приоритет.
// Последний вызов побеждает. Доступно любому участнику сессии.
func (s *SessionService) Complete(ctx context.Context, sessionID uuid.UUID, requesterID string, input CompleteSessionInput) (*models.VaultEntry, error) {
	if input.Visibility != nil {
		switch *input.Visibility {
		case models.VisibilityPublic, models.VisibilityInviteOnly:
		default:
			return nil, fmt.Errorf("%w: недопустимая видимость '%s'", models.ErrInvalidInput, *input.Visibility)
		}
	}

	var entry *models.VaultEntry
	var completedNow bool
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		locked, transitioned, err := s.completeLocked(ctx, tx, sessionID, requesterID, input)
		if err != nil {
			return err
		}
		entry = locked
		completedNow = transitioned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Complete: %w", err)
	}
	if completedNow {
		s.broadcast(ctx, sessionID, models.EventSessionCompleted, map[string]any{
			"sessionId": sessionID.String(),
		})
	}
	return entry, nil
}

// completeLocked - ядро завершения, выполняется внутри транзакции
// вызывающего. Блокирует строку сессии, разрешает переопределения и
// всегда делает upsert vault-записи (upsert не трогает summary_text и
// ai_story_text). Второй результат сообщает, произошел ли переход в
// completed именно сейчас (событие публикуется после commit).
func (s *SessionService) completeLocked(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, requesterID string, input CompleteSessionInput) (*models.VaultEntry, bool, error) {
	session, err := s.repo.GetSessionForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.repo.GetParticipant(ctx, tx, sessionID, requesterID); err != nil {
		return nil, false, err
	}
	if session.Status != models.SessionStatusCompleted && session.Status != models.SessionStatusActive {
		return nil, false, fmt.Errorf("%w: нельзя завершить черновик", models.ErrSessionNotActive)
	}

	storyText := ""
	if input.StoryText != nil {
		storyText = strings.TrimSpace(*input.StoryText)
	}
	if storyText == "" {
		turns, err := s.repo.ListTurns(ctx, tx, sessionID)
		if err != nil {
			return nil, false, err
		}
		storyText = s.assembler.Assemble(session.TemplateText, turns)
	}

	title := untitledStoryTitle
	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		title = strings.TrimSpace(*input.Title)
	} else if session.Title != nil && strings.TrimSpace(*session.Title) != "" {
		title = *session.Title
	}

	visibility := session.VaultMode
	if input.Visibility != nil {
		visibility = *input.Visibility
	}
	if visibility != models.VisibilityPublic {
		visibility = models.VisibilityInviteOnly
	}

	entry, err := s.repo.UpsertVaultEntry(ctx, tx, sessionID, title, storyText, visibility)
	if err != nil {
		return nil, false, err
	}
	if visibility != session.VaultMode {
		if err := s.repo.UpdateSessionVaultMode(ctx, tx, sessionID, visibility); err != nil {
			return nil, false, err
		}
	}
	transitioned := false
	if session.Status != models.SessionStatusCompleted {
		if err := s.repo.UpdateSessionStatus(ctx, tx, sessionID, models.SessionStatusCompleted); err != nil {
			return nil, false, err
		}
		transitioned = true
	}
	return entry, transitioned, nil
}

// Summarize завершает сессию (если нужно) и генерирует AI-резюме.
// Доступно любому участнику. AI вызывается вне транзакции: при ошибке
// генерации vault-запись остается нетронутой.
func (s *SessionService) Summarize(ctx context.Context, sessionID uuid.UUID, requesterID string, themePrompt *string) (*models.VaultEntry, error) {
	session, err := s.repo.GetSession(ctx, s.tx.Pool(), sessionID)
	if err != nil {
		return nil, err
	}
	entry, err := s.Complete(ctx, sessionID, requesterID, CompleteSessionInput{})
	if err != nil {
		return nil, err
	}

	userInput := buildAIInput(session, entry.StoryText, themePrompt)
	temperature := 0.8
	maxTokens := 300
	summary, _, err := s.aiClient.GenerateText(ctx, requesterID, summarySystemPrompt, userInput, ai.Params{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("Summarize: %w", err)
	}

	updated, err := s.repo.SetVaultSummary(ctx, s.tx.Pool(), entry.ID, summary, themePrompt)
	if err != nil {
		return nil, fmt.Errorf("Summarize: %w", err)
	}
	return updated, nil
}

// GenerateAIStory завершает сессию (если нужно) и переписывает историю
// с помощью AI. Только ведущий.
func (s *SessionService) GenerateAIStory(ctx context.Context, sessionID uuid.UUID, requesterID string, themePrompt *string) (*models.VaultEntry, error) {
	session, err := s.repo.GetSession(ctx, s.tx.Pool(), sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(session, requesterID); err != nil {
		return nil, err
	}

	entry, err := s.Complete(ctx, sessionID, requesterID, CompleteSessionInput{})
	if err != nil {
		return nil, err
	}

	userInput := buildAIInput(session, entry.StoryText, themePrompt)
	temperature := 0.9
	maxTokens := 900
	rewritten, _, err := s.aiClient.GenerateText(ctx, requesterID, rewriteSystemPrompt, userInput, ai.Params{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("GenerateAIStory: %w", err)
	}

	updated, err := s.repo.SetVaultAIStory(ctx, s.tx.Pool(), entry.ID, rewritten, themePrompt)
	if err != nil {
		return nil, fmt.Errorf("GenerateAIStory: %w", err)
	}
	return updated, nil
}

// Publish завершает сессию (пересобирая vault-запись с запрошенной
// видимостью) и проставляет публикационные поля. Только ведущий.
// Публикация ставит published_at/published_by, снятие с публикации
// очищает их.
func (s *SessionService) Publish(ctx context.Context, sessionID uuid.UUID, requesterID string, visibility models.VaultVisibility) (*models.VaultEntry, error) {
	switch visibility {
	case models.VisibilityPublic, models.VisibilityInviteOnly:
	default:
		return nil, fmt.Errorf("%w: недопустимая видимость '%s'", models.ErrInvalidInput, visibility)
	}

	var entry *models.VaultEntry
	var completedNow bool
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, tx repository.DBTX) error {
		session, err := s.repo.GetSessionForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireHost(session, requesterID); err != nil {
			return err
		}
		completed, transitioned, err := s.completeLocked(ctx, tx, sessionID, requesterID, CompleteSessionInput{Visibility: &visibility})
		if err != nil {
			return err
		}
		completedNow = transitioned
		var publishedBy *string
		if visibility == models.VisibilityPublic {
			publishedBy = &requesterID
		}
		updated, err := s.repo.SetVaultPublication(ctx, tx, completed.ID, visibility, publishedBy)
		if err != nil {
			return err
		}
		entry = updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Publish: %w", err)
	}
	if completedNow {
		s.broadcast(ctx, sessionID, models.EventSessionCompleted, map[string]any{
			"sessionId": sessionID.String(),
		})
	}
	return entry, nil
}

// Feed возвращает страницу публичной ленты историй.
func (s *SessionService) Feed(ctx context.Context, limit, offset int) ([]*models.FeedEntry, error) {
	return s.repo.ListPublishedEntries(ctx, s.tx.Pool(), limit, offset)
}

// buildAIInput собирает пользовательский ввод для AI: метаданные сессии,
// подсказка темы (если есть) и текст истории.
func buildAIInput(session *models.Session, storyText string, themePrompt *string) string {
	title := untitledStoryTitle
	if session.Title != nil && strings.TrimSpace(*session.Title) != "" {
		title = *session.Title
	}
	genre := "Unspecified"
	if session.Genre != nil && strings.TrimSpace(*session.Genre) != "" {
		genre = *session.Genre
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session title: %s\nGenre: %s\n", title, genre)
	if themePrompt != nil && strings.TrimSpace(*themePrompt) != "" {
		fmt.Fprintf(&b, "Theme hint: %s\n", strings.TrimSpace(*themePrompt))
	}
	fmt.Fprintf(&b, "\nStory:\n%s", storyText)
	return b.String()
}
