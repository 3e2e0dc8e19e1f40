package handler

// Запросы и ответы HTTP API. Идентификатор инициатора приходит в
// заголовке X-User-ID (аутентификация выполняется выше по стеку).

type createSessionRequest struct {
	Title                 *string  `json:"title"`
	Genre                 *string  `json:"genre"`
	TemplateSource        string   `json:"templateSource"`
	TemplateLength        string   `json:"templateLength"`
	SeedText              *string  `json:"seedText"`
	ResponseWindowMinutes int      `json:"responseWindowMinutes"`
	AllowAICohost         bool     `json:"allowAiCohost"`
	VaultMode             string   `json:"vaultMode"`
	InviteeIDs            []string `json:"inviteeIds"`
}

type inviteRequest struct {
	UserIDs []string `json:"userIds" binding:"required"`
}

type respondRequest struct {
	Status string `json:"status" binding:"required"`
}

type submitRequest struct {
	Text string `json:"text" binding:"required"`
}

type autoFillRequest struct {
	Text string `json:"text"`
}

type turnEventRequest struct {
	EventType string         `json:"eventType" binding:"required"`
	Data      map[string]any `json:"data"`
}

type completeRequest struct {
	StoryText  *string `json:"storyText"`
	Title      *string `json:"title"`
	Visibility *string `json:"visibility"`
}

type themedRequest struct {
	ThemePrompt *string `json:"themePrompt"`
}

type publishRequest struct {
	Visibility string `json:"visibility"`
}

// ErrorResponse - тело ответа с ошибкой.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Коды ошибок API.
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodePrecondition = "PRECONDITION_FAILED"
	ErrCodeAIUpstream   = "AI_UPSTREAM_ERROR"
	ErrCodeInternal     = "INTERNAL_ERROR"
)
