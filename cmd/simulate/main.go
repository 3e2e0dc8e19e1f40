// Симуляция полной игры против запущенного сервера: создание сессии,
// принятие приглашений, старт, ответы на все ходы, завершение и
// публикация итоговой истории.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type turnView struct {
	ID             string  `json:"id"`
	OrderIndex     int     `json:"orderIndex"`
	Status         string  `json:"status"`
	Prompt         *string `json:"prompt"`
	PartOfSpeech   *string `json:"partOfSpeech"`
	AssignedHandle *string `json:"assignedHandle"`
	DueAt          *string `json:"dueAt"`
}

type sessionResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Turns        []turnView `json:"turns"`
	Participants []struct {
		UserID string `json:"userId"`
		Status string `json:"status"`
	} `json:"participants"`
}

type vaultResponse struct {
	Title       string  `json:"title"`
	StoryText   string  `json:"storyText"`
	Visibility  string  `json:"visibility"`
	SummaryText *string `json:"summaryText"`
}

type simulator struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8084", "адрес запущенного lips-server")
	hostID := flag.String("host", "sim-host", "идентификатор ведущего")
	withAI := flag.Bool("with-ai", false, "вызывать summarize (требует настроенного AI)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	sim := &simulator{
		baseURL: *baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}

	players := []string{"sim-player-2", "sim-player-3"}

	if err := sim.run(*hostID, players, *withAI); err != nil {
		log.Fatal().Err(err).Msg("симуляция провалилась")
	}
	log.Info().Msg("симуляция успешно завершена")
}

func (s *simulator) run(hostID string, players []string, withAI bool) error {
	// 1. Создаем сессию с приглашениями
	var session sessionResponse
	err := s.post("/sessions", hostID, map[string]any{
		"title":          "Simulated Heist",
		"genre":          "heist",
		"templateSource": "ai",
		"templateLength": "quick",
		"inviteeIds":     players,
	}, &session)
	if err != nil {
		return fmt.Errorf("создание сессии: %w", err)
	}
	s.log.Info().Str("sessionID", session.ID).Int("turns", len(session.Turns)).Msg("сессия создана")

	// 2. Игроки принимают приглашения
	for _, player := range players {
		if err := s.post("/sessions/"+session.ID+"/respond", player, map[string]any{"status": "accepted"}, nil); err != nil {
			return fmt.Errorf("принятие приглашения %s: %w", player, err)
		}
		s.log.Info().Str("player", player).Msg("приглашение принято")
	}

	// 3. Старт
	if err := s.post("/sessions/"+session.ID+"/start", hostID, map[string]any{}, &session); err != nil {
		return fmt.Errorf("старт сессии: %w", err)
	}
	s.log.Info().Str("status", session.Status).Msg("сессия запущена")

	// 4. Играем все ходы: ответ текущего хода + advance
	allUsers := append([]string{hostID}, players...)
	for i := 0; ; i++ {
		current := currentDueTurn(&session)
		if current == nil {
			break
		}
		answer := fmt.Sprintf("simulated-%s-%d", deref(current.PartOfSpeech), i)
		submitter := allUsers[i%len(allUsers)]
		if err := s.post("/turns/"+current.ID+"/submit", submitter, map[string]any{"text": answer}, nil); err != nil {
			return fmt.Errorf("ответ на ход %d: %w", current.OrderIndex, err)
		}
		s.log.Info().Int("turn", current.OrderIndex).Str("by", submitter).Str("text", answer).Msg("ход заполнен")

		if err := s.post("/sessions/"+session.ID+"/advance", hostID, map[string]any{}, &session); err != nil {
			return fmt.Errorf("advance после хода %d: %w", current.OrderIndex, err)
		}
		if session.Status == "completed" {
			break
		}
	}
	s.log.Info().Str("status", session.Status).Msg("все ходы сыграны")

	// 5. Завершение и публикация
	var entry vaultResponse
	if err := s.post("/sessions/"+session.ID+"/complete", hostID, map[string]any{}, &entry); err != nil {
		return fmt.Errorf("завершение: %w", err)
	}
	s.log.Info().Str("title", entry.Title).Int("storyLength", len(entry.StoryText)).Msg("история собрана")

	if withAI {
		if err := s.post("/sessions/"+session.ID+"/summarize", hostID, map[string]any{}, &entry); err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		s.log.Info().Str("summary", deref(entry.SummaryText)).Msg("AI-резюме получено")
	}

	if err := s.post("/sessions/"+session.ID+"/publish", hostID, map[string]any{"visibility": "public"}, &entry); err != nil {
		return fmt.Errorf("публикация: %w", err)
	}
	s.log.Info().Str("visibility", entry.Visibility).Msg("история опубликована")
	return nil
}

func currentDueTurn(session *sessionResponse) *turnView {
	for i := range session.Turns {
		turn := &session.Turns[i]
		if turn.Status == "pending" && turn.DueAt != nil {
			return turn
		}
	}
	return nil
}

func (s *simulator) post(path, userID string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s -> %d (%s: %s)", http.MethodPost, path, resp.StatusCode, apiErr.Code, apiErr.Message)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
