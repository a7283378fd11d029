package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"qanda/middleware"
	"qanda/models"
	"qanda/services"

	"github.com/gin-gonic/gin"
)

const (
	msgAnswerSubmitted   = "Answer submitted successfully!"
	msgAnswerEmpty       = "Answer cannot be empty."
	msgQuestionSubmitted = "Question submitted successfully!"
	msgQuestionEmpty     = "Question cannot be empty."
)

type QuestionHandler struct {
	qaService    *services.QAService
	flashService *services.FlashService
	hub          *services.Hub
	metrics      *services.Metrics
}

func NewQuestionHandler(qaService *services.QAService, flashService *services.FlashService, hub *services.Hub, metrics *services.Metrics) *QuestionHandler {
	return &QuestionHandler{
		qaService:    qaService,
		flashService: flashService,
		hub:          hub,
		metrics:      metrics,
	}
}

type AnswerForm struct {
	Text string `form:"answer_text"`
}

type QuestionForm struct {
	Text string `form:"question_text"`
}

// PageData is shared by every rendered page.
type PageData struct {
	Title    string
	Messages []services.Flash
}

type QuestionListPage struct {
	PageData
	Questions []models.Question
}

type QuestionDetailPage struct {
	PageData
	Question   *models.Question
	Answers    []models.Answer
	AnswerText string
}

type AskQuestionPage struct {
	PageData
	QuestionText string
}

type ErrorPage struct {
	PageData
	StatusCode int
	Error      string
}

func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	questions, err := h.qaService.ListQuestions(c.Request.Context(), services.Newest)
	if err != nil {
		h.renderError(c, http.StatusInternalServerError, "Could not load questions", err)
		return
	}

	c.HTML(http.StatusOK, "question_list.html", QuestionListPage{
		PageData:  h.pageData(c, "Questions"),
		Questions: questions,
	})
}

// ViewQuestion renders a question with its answers. On POST it also accepts
// an answer: empty text re-renders with an error, anything else is stored
// and the browser is redirected back to the same page.
func (h *QuestionHandler) ViewQuestion(c *gin.Context) {
	ctx := c.Request.Context()

	questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		h.renderError(c, http.StatusNotFound, "Question not found", err)
		return
	}

	question, err := h.qaService.GetQuestion(ctx, uint(questionID))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.renderError(c, http.StatusNotFound, "Question not found", err)
			return
		}
		h.renderError(c, http.StatusInternalServerError, "Could not load question", err)
		return
	}

	var validation []services.Flash
	var submitted string
	if c.Request.Method == http.MethodPost {
		var form AnswerForm
		if err := c.ShouldBind(&form); err != nil {
			h.renderError(c, http.StatusBadRequest, "Invalid form submission", err)
			return
		}

		text := services.CleanText(form.Text)
		if text == "" {
			h.metrics.ValidationRejected("answer")
			validation = append(validation, services.Flash{Level: services.FlashError, Message: msgAnswerEmpty})
			submitted = form.Text
		} else {
			answer, err := h.qaService.CreateAnswer(ctx, question.ID, text)
			if err != nil {
				if errors.Is(err, services.ErrNotFound) {
					h.renderError(c, http.StatusNotFound, "Question not found", err)
					return
				}
				h.renderError(c, http.StatusInternalServerError, "Could not save answer", err)
				return
			}

			answer.Question = question
			log.Printf("Stored %s (answer %d)", answer, answer.ID)
			if h.hub != nil {
				h.hub.BroadcastToQuestion(question.ID, "answer_created", answer)
			}

			h.flashSuccess(c, msgAnswerSubmitted)
			c.Redirect(http.StatusSeeOther, fmt.Sprintf("/questions/%d", question.ID))
			return
		}
	}

	answers, err := h.qaService.ListAnswers(ctx, question.ID, services.Oldest)
	if err != nil {
		h.renderError(c, http.StatusInternalServerError, "Could not load answers", err)
		return
	}

	page := h.pageData(c, question.String())
	page.Messages = append(page.Messages, validation...)

	c.HTML(http.StatusOK, "question_detail.html", QuestionDetailPage{
		PageData:   page,
		Question:   question,
		Answers:    answers,
		AnswerText: submitted,
	})
}

// AskQuestion renders the submission form and, on POST, stores a non-empty
// question before redirecting to the list.
func (h *QuestionHandler) AskQuestion(c *gin.Context) {
	var validation []services.Flash
	var submitted string

	if c.Request.Method == http.MethodPost {
		var form QuestionForm
		if err := c.ShouldBind(&form); err != nil {
			h.renderError(c, http.StatusBadRequest, "Invalid form submission", err)
			return
		}

		text := services.CleanText(form.Text)
		if text == "" {
			h.metrics.ValidationRejected("question")
			validation = append(validation, services.Flash{Level: services.FlashError, Message: msgQuestionEmpty})
			submitted = form.Text
		} else {
			question, err := h.qaService.CreateQuestion(c.Request.Context(), text)
			if err != nil {
				h.renderError(c, http.StatusInternalServerError, "Could not save question", err)
				return
			}
			log.Printf("Stored question %d: %s", question.ID, question)

			h.flashSuccess(c, msgQuestionSubmitted)
			c.Redirect(http.StatusSeeOther, "/")
			return
		}
	}

	page := h.pageData(c, "Ask a question")
	page.Messages = append(page.Messages, validation...)

	c.HTML(http.StatusOK, "ask_question.html", AskQuestionPage{
		PageData:     page,
		QuestionText: submitted,
	})
}

// NotFound renders the shared 404 page for unmatched routes.
func (h *QuestionHandler) NotFound(c *gin.Context) {
	h.renderError(c, http.StatusNotFound, "Page not found", fmt.Errorf("no route for %s %s", c.Request.Method, c.Request.URL.Path))
}

// pageData collects the session's pending flash messages. A Redis failure
// only costs the messages; the page still renders.
func (h *QuestionHandler) pageData(c *gin.Context, title string) PageData {
	page := PageData{Title: title}

	sessionID := middleware.SessionID(c)
	if sessionID == "" {
		return page
	}

	flashes, err := h.flashService.Pop(c.Request.Context(), sessionID)
	if err != nil {
		log.Printf("Failed to load flash messages for session %s: %v", sessionID, err)
		return page
	}
	page.Messages = flashes
	return page
}

func (h *QuestionHandler) flashSuccess(c *gin.Context, message string) {
	sessionID := middleware.SessionID(c)
	if sessionID == "" {
		return
	}
	if err := h.flashService.Success(c.Request.Context(), sessionID, message); err != nil {
		log.Printf("Failed to store flash message for session %s: %v", sessionID, err)
	}
}

func (h *QuestionHandler) renderError(c *gin.Context, statusCode int, message string, err error) {
	log.Printf("[ERROR] %d %s %s: %s - %v", statusCode, c.Request.Method, c.Request.URL.Path, message, err)

	c.HTML(statusCode, "error.html", ErrorPage{
		PageData:   PageData{Title: message},
		StatusCode: statusCode,
		Error:      message,
	})
}
