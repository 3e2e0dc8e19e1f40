// Package handler - HTTP-поверхность Session API поверх gin.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lips-server/internal/models"
	"lips-server/internal/realtime"
	"lips-server/internal/repository"
	"lips-server/internal/service"
)

// SessionHandler регистрирует и обслуживает маршруты Session API.
type SessionHandler struct {
	service *service.SessionService
	tokens  realtime.TokenIssuer
	logger  *zap.Logger
}

// NewSessionHandler создает обработчик.
func NewSessionHandler(svc *service.SessionService, tokens realtime.TokenIssuer, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		tokens:  tokens,
		logger:  logger.Named("SessionHandler"),
	}
}

// RegisterRoutes навешивает маршруты API на роутер.
func (h *SessionHandler) RegisterRoutes(router *gin.Engine) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.createSession)
		sessions.GET("", h.listSessions)
		sessions.GET("/:id", h.getSession)
		sessions.GET("/:id/participants", h.listParticipants)
		sessions.POST("/:id/invite", h.invite)
		sessions.POST("/:id/respond", h.respond)
		sessions.POST("/:id/start", h.start)
		sessions.POST("/:id/advance", h.advance)
		sessions.POST("/:id/complete", h.complete)
		sessions.POST("/:id/summarize", h.summarize)
		sessions.POST("/:id/ai-story", h.generateAIStory)
		sessions.POST("/:id/publish", h.publish)
	}

	turns := router.Group("/turns")
	{
		turns.POST("/:turnId/submit", h.submit)
		turns.POST("/:turnId/auto-fill", h.autoFill)
		turns.POST("/:turnId/events", h.logTurnEvent)
	}

	router.GET("/feed", h.feed)
	router.GET("/realtime/token", h.realtimeToken)
}

// requesterID достает идентификатор инициатора из заголовка X-User-ID.
func requesterID(c *gin.Context) (string, bool) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: "X-User-ID header is required",
		})
		return "", false
	}
	return userID, true
}

func sessionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: "invalid session id",
		})
		return uuid.Nil, false
	}
	return id, true
}

func turnIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("turnId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: "invalid turn id",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *SessionHandler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	// Ведущий опционален: headless-сессии создаются без X-User-ID.
	var hostID *string
	if id := c.GetHeader("X-User-ID"); id != "" {
		hostID = &id
	}

	session, err := h.service.CreateSession(c.Request.Context(), service.CreateSessionInput{
		HostID:                hostID,
		Title:                 req.Title,
		Genre:                 req.Genre,
		TemplateSource:        req.TemplateSource,
		TemplateLength:        req.TemplateLength,
		SeedText:              req.SeedText,
		ResponseWindowMinutes: req.ResponseWindowMinutes,
		AllowAICohost:         req.AllowAICohost,
		VaultMode:             req.VaultMode,
		InviteeIDs:            req.InviteeIDs,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) listSessions(c *gin.Context) {
	filter := repository.ListSessionsFilter{}
	if status := c.Query("status"); status != "" {
		s := models.SessionStatus(status)
		filter.Status = &s
	}
	if userID := c.Query("userId"); userID != "" {
		filter.UserID = &userID
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) getSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) listParticipants(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	participants, err := h.service.ListParticipants(c.Request.Context(), sessionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

func (h *SessionHandler) invite(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	if err := h.service.Invite(c.Request.Context(), sessionID, userID, req.UserIDs); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invited": len(req.UserIDs)})
}

func (h *SessionHandler) respond(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	participant, err := h.service.Respond(c.Request.Context(), sessionID, userID, models.ParticipantStatus(req.Status))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *SessionHandler) start(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	session, err := h.service.Start(c.Request.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) advance(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	session, err := h.service.Advance(c.Request.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) complete(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	input := service.CompleteSessionInput{
		StoryText: req.StoryText,
		Title:     req.Title,
	}
	if req.Visibility != nil {
		visibility := models.VaultVisibility(*req.Visibility)
		input.Visibility = &visibility
	}
	entry, err := h.service.Complete(c.Request.Context(), sessionID, userID, input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *SessionHandler) summarize(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req themedRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	entry, err := h.service.Summarize(c.Request.Context(), sessionID, userID, req.ThemePrompt)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *SessionHandler) generateAIStory(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req themedRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	entry, err := h.service.GenerateAIStory(c.Request.Context(), sessionID, userID, req.ThemePrompt)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *SessionHandler) publish(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	visibility := models.VisibilityPublic
	if req.Visibility != "" {
		visibility = models.VaultVisibility(req.Visibility)
	}
	entry, err := h.service.Publish(c.Request.Context(), sessionID, userID, visibility)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *SessionHandler) submit(c *gin.Context) {
	turnID, ok := turnIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	turn, err := h.service.Submit(c.Request.Context(), turnID, userID, req.Text)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

func (h *SessionHandler) autoFill(c *gin.Context) {
	turnID, ok := turnIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req autoFillRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	turn, err := h.service.AutoFill(c.Request.Context(), turnID, userID, req.Text)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

func (h *SessionHandler) logTurnEvent(c *gin.Context) {
	turnID, ok := turnIDParam(c)
	if !ok {
		return
	}
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req turnEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}
	if err := h.service.LogTurnEvent(c.Request.Context(), turnID, userID, req.EventType, req.Data); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"logged": true})
}

func (h *SessionHandler) feed(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	entries, err := h.service.Feed(c.Request.Context(), limit, offset)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *SessionHandler) realtimeToken(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(c.Query("sessionId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "sessionId query parameter is required"})
		return
	}
	// Токен выдается только участникам сессии.
	participants, err := h.service.ListParticipants(c.Request.Context(), sessionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	isParticipant := false
	for _, p := range participants {
		if p.UserID == userID {
			isParticipant = true
			break
		}
	}
	if !isParticipant {
		handleServiceError(c, models.ErrNotSessionParticipant)
		return
	}

	token, err := h.tokens.IssueSessionToken(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.logger.Error("Failed to issue realtime token", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Code: ErrCodeInternal, Message: "failed to issue realtime token"})
		return
	}
	c.JSON(http.StatusOK, token)
}
