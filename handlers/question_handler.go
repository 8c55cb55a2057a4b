package handlers

import (
	"errors"
	"net/http"

	"livepoll/services"

	"github.com/gin-gonic/gin"
)

type QuestionHandler struct {
	questionService *services.QuestionService
}

func NewQuestionHandler(questionService *services.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	questions, err := h.questionService.ListQuestions(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

func (h *QuestionHandler) Activate(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	question, err := h.questionService.Activate(sessionID, c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

func (h *QuestionHandler) Complete(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	question, err := h.questionService.Complete(sessionID, c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

func (h *QuestionHandler) ResetAll(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	questions, err := h.questionService.ResetAll(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": len(questions), "questions": questions})
}

type ReorderRequest struct {
	DisplayOrder int `json:"display_order" binding:"required"`
}

func (h *QuestionHandler) Reorder(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.questionService.Reorder(sessionID, c.Param("key"), req.DisplayOrder); err != nil {
		respondError(c, err)
		return
	}

	questions, err := h.questionService.ListQuestions(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

// EnableNext activates the next pending question. Running out of questions
// is an outcome, not a failure, so it comes back as 200 with a flag.
func (h *QuestionHandler) EnableNext(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	question, err := h.questionService.EnableNext(sessionID)
	if err != nil {
		if errors.Is(err, services.ErrNoPendingQuestions) {
			c.JSON(http.StatusOK, gin.H{"no_pending_questions": true})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}
