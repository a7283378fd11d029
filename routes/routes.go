package routes

import (
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"qanda/handlers"
	"qanda/middleware"
	"qanda/services"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Options struct {
	Templates     *template.Template
	SessionSecret string
	SSL           bool
	Metrics       *services.Metrics
	Gatherer      prometheus.Gatherer
}

func SetupRoutes(
	router *gin.Engine,
	questionHandler *handlers.QuestionHandler,
	qaService *services.QAService,
	hub *services.Hub,
	opts Options,
) {
	secureConfig := secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
	if opts.SSL {
		secureConfig.SSLRedirect = true
		secureConfig.STSSeconds = 31536000
		secureConfig.STSIncludeSubdomains = true
	}
	router.Use(secure.New(secureConfig))
	router.Use(middleware.Metrics(opts.Metrics))

	router.SetHTMLTemplate(opts.Templates)

	// Pages
	pages := router.Group("/")
	pages.Use(middleware.Session(opts.SessionSecret))
	{
		pages.GET("", questionHandler.ListQuestions)
		pages.GET("/questions/:id", questionHandler.ViewQuestion)
		pages.POST("/questions/:id", questionHandler.ViewQuestion)
		pages.GET("/ask", questionHandler.AskQuestion)
		pages.POST("/ask", questionHandler.AskQuestion)
	}
	router.NoRoute(questionHandler.NotFound)

	// Live answer feed for a question page
	router.GET("/ws/questions/:id", func(c *gin.Context) {
		questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
			return
		}

		if _, err := qaService.GetQuestion(c.Request.Context(), uint(questionID)); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
				return
			}
			log.Printf("Failed to load question %d for websocket: %v", questionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load question"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for question %d: %v", questionID, err)
			return
		}

		hub.RegisterClient(conn, uint(questionID))
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
