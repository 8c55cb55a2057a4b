package handlers

import (
	"net/http"

	"livepoll/middleware"
	"livepoll/models"
	"livepoll/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SessionHandler struct {
	sessionService  *services.SessionService
	questionService *services.QuestionService
	responseService *services.ResponseService
}

func NewSessionHandler(sessionService *services.SessionService, questionService *services.QuestionService, responseService *services.ResponseService) *SessionHandler {
	return &SessionHandler{
		sessionService:  sessionService,
		questionService: questionService,
		responseService: responseService,
	}
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	presenterID, ok := middleware.PresenterID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.CreateSession(presenterID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	presenterID, ok := middleware.PresenterID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	sessions, err := h.sessionService.ListSessions(presenterID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Activate(c *gin.Context) { h.transition(c, h.sessionService.Activate) }
func (h *SessionHandler) Pause(c *gin.Context)    { h.transition(c, h.sessionService.Pause) }
func (h *SessionHandler) Resume(c *gin.Context)   { h.transition(c, h.sessionService.Resume) }
func (h *SessionHandler) End(c *gin.Context)      { h.transition(c, h.sessionService.End) }

func (h *SessionHandler) transition(c *gin.Context, op func(uint) (*models.Session, error)) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := op(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type JoinSessionRequest struct {
	JoinCode    string `json:"join_code" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
}

// Join resolves a join code to a session and hands the participant an
// ephemeral identity. An ended session is reported as terminal so the
// client can redirect instead of retrying.
func (h *SessionHandler) Join(c *gin.Context) {
	var req JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.ResolveSession(req.JoinCode)
	if err != nil {
		respondError(c, err)
		return
	}
	if session.Status == models.SessionStatusEnded {
		c.JSON(http.StatusGone, gin.H{"error": "Session has ended", "ended": true})
		return
	}

	participantID := uuid.NewString()
	payload := gin.H{
		"participant_id": participantID,
		"session":        session,
	}
	if question, err := h.questionService.ActiveQuestion(session.ID); err == nil {
		payload["active_question"] = question
	}
	c.JSON(http.StatusOK, payload)
}

// ResolveSession is the public lookup surface for a join code.
func (h *SessionHandler) ResolveSession(c *gin.Context) {
	session, err := h.sessionService.ResolveSession(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
