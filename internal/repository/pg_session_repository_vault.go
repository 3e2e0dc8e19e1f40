package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lips-server/internal/models"
)

const vaultColumns = `id, session_id, title, story_text, visibility, summary_text,
       ai_story_text, theme_prompt, published_at, published_by, created_at`

func scanVaultEntry(row pgx.Row) (*models.VaultEntry, error) {
	var e models.VaultEntry
	var visibility string
	err := row.Scan(
		&e.ID,
		&e.SessionID,
		&e.Title,
		&e.StoryText,
		&visibility,
		&e.SummaryText,
		&e.AIStoryText,
		&e.ThemePrompt,
		&e.PublishedAt,
		&e.PublishedBy,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Visibility = models.VaultVisibility(visibility)
	return &e, nil
}

// UpsertVaultEntry создает или обновляет vault-запись сессии.
// Повторное завершение сессии перезаписывает текст, но не трогает
// AI-поля и состояние публикации.
func (r *pgSessionRepository) UpsertVaultEntry(ctx context.Context, q DBTX, sessionID uuid.UUID, title, storyText string, visibility models.VaultVisibility) (*models.VaultEntry, error) {
	query := `
        INSERT INTO lips_vault_entries (id, session_id, title, story_text, visibility)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (session_id)
        DO UPDATE SET title = EXCLUDED.title, story_text = EXCLUDED.story_text
        RETURNING ` + vaultColumns
	entry, err := scanVaultEntry(q.QueryRow(ctx, query, uuid.New(), sessionID, title, storyText, string(visibility)))
	if err != nil {
		return nil, fmt.Errorf("ошибка upsert vault-записи сессии %s: %w", sessionID, err)
	}
	return entry, nil
}

// GetVaultEntryBySession возвращает vault-запись сессии.
func (r *pgSessionRepository) GetVaultEntryBySession(ctx context.Context, q DBTX, sessionID uuid.UUID) (*models.VaultEntry, error) {
	query := `SELECT ` + vaultColumns + ` FROM lips_vault_entries WHERE session_id = $1`
	entry, err := scanVaultEntry(q.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVaultNotFound
		}
		return nil, fmt.Errorf("ошибка чтения vault-записи сессии %s: %w", sessionID, err)
	}
	return entry, nil
}

// SetVaultSummary сохраняет AI-резюме истории.
func (r *pgSessionRepository) SetVaultSummary(ctx context.Context, q DBTX, entryID uuid.UUID, summaryText string, themePrompt *string) (*models.VaultEntry, error) {
	query := `
        UPDATE lips_vault_entries
        SET summary_text = $2, theme_prompt = COALESCE($3, theme_prompt)
        WHERE id = $1
        RETURNING ` + vaultColumns
	entry, err := scanVaultEntry(q.QueryRow(ctx, query, entryID, summaryText, themePrompt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVaultNotFound
		}
		return nil, fmt.Errorf("ошибка сохранения резюме vault-записи %s: %w", entryID, err)
	}
	return entry, nil
}

// SetVaultAIStory сохраняет AI-переписанную версию истории.
func (r *pgSessionRepository) SetVaultAIStory(ctx context.Context, q DBTX, entryID uuid.UUID, aiStoryText string, themePrompt *string) (*models.VaultEntry, error) {
	query := `
        UPDATE lips_vault_entries
        SET ai_story_text = $2, theme_prompt = COALESCE($3, theme_prompt)
        WHERE id = $1
        RETURNING ` + vaultColumns
	entry, err := scanVaultEntry(q.QueryRow(ctx, query, entryID, aiStoryText, themePrompt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVaultNotFound
		}
		return nil, fmt.Errorf("ошибка сохранения AI-истории vault-записи %s: %w", entryID, err)
	}
	return entry, nil
}

// SetVaultPublication переключает видимость записи. Публикация
// проставляет published_at/published_by, снятие с публикации очищает их.
func (r *pgSessionRepository) SetVaultPublication(ctx context.Context, q DBTX, entryID uuid.UUID, visibility models.VaultVisibility, publishedBy *string) (*models.VaultEntry, error) {
	query := `
        UPDATE lips_vault_entries
        SET visibility = $2,
            published_at = CASE WHEN $2 = 'public' THEN now() ELSE NULL END,
            published_by = CASE WHEN $2 = 'public' THEN $3 ELSE NULL END
        WHERE id = $1
        RETURNING ` + vaultColumns
	entry, err := scanVaultEntry(q.QueryRow(ctx, query, entryID, string(visibility), publishedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVaultNotFound
		}
		return nil, fmt.Errorf("ошибка публикации vault-записи %s: %w", entryID, err)
	}
	return entry, nil
}

// ListPublishedEntries возвращает страницу публичной ленты: свежие
// публикации первыми, с метаданными сессии.
func (r *pgSessionRepository) ListPublishedEntries(ctx context.Context, q DBTX, limit, offset int) ([]*models.FeedEntry, error) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
        SELECT v.id, v.session_id, v.title, v.story_text, v.visibility,
               v.summary_text, v.ai_story_text, v.theme_prompt,
               v.published_at, v.published_by, v.created_at,
               s.title AS session_title, s.genre, s.host_id
        FROM lips_vault_entries v
        JOIN lips_sessions s ON s.id = v.session_id
        WHERE v.visibility = 'public'
        ORDER BY v.published_at DESC NULLS LAST, v.created_at DESC
        LIMIT $1 OFFSET $2
    `
	rows, err := q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса публичной ленты: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.FeedEntry, 0)
	if err := pgxscan.ScanAll(&entries, rows); err != nil {
		return nil, fmt.Errorf("ошибка сканирования публичной ленты: %w", err)
	}
	return entries, nil
}
