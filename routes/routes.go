package routes

import (
	"log"
	"net/http"
	"strconv"

	"livepoll/handlers"
	"livepoll/middleware"
	"livepoll/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	questionHandler *handlers.QuestionHandler,
	responseHandler *handlers.ResponseHandler,
	hub *services.Hub,
	sessionService *services.SessionService,
	jwtSecret string,
) {
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Presenter routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			protected.GET("/auth/profile", authHandler.GetProfile)

			sessions := protected.Group("/sessions")
			{
				sessions.GET("", sessionHandler.ListSessions)
				sessions.POST("", sessionHandler.CreateSession)
				sessions.GET("/:id", sessionHandler.GetSession)
				sessions.POST("/:id/activate", sessionHandler.Activate)
				sessions.POST("/:id/pause", sessionHandler.Pause)
				sessions.POST("/:id/resume", sessionHandler.Resume)
				sessions.POST("/:id/end", sessionHandler.End)

				sessions.GET("/:id/questions", questionHandler.ListQuestions)
				sessions.POST("/:id/questions/next", questionHandler.EnableNext)
				sessions.POST("/:id/questions/reset", questionHandler.ResetAll)
				sessions.POST("/:id/questions/:key/activate", questionHandler.Activate)
				sessions.POST("/:id/questions/:key/complete", questionHandler.Complete)
				sessions.PUT("/:id/questions/:key/order", questionHandler.Reorder)
			}
		}

		// Participant routes (anonymous)
		public := api.Group("/sessions")
		{
			public.POST("/join", sessionHandler.Join)
			public.GET("/code/:code", sessionHandler.ResolveSession)
			public.POST("/:id/responses", responseHandler.Submit)
			public.GET("/:id/questions/:key/results", responseHandler.Results)
			public.GET("/:id/questions/:key/submission", responseHandler.SubmissionStatus)
		}
	}

	// WebSocket endpoint for the session-scoped change feed. Presenters
	// identify with their token; participants with the ephemeral id they
	// got from the join call.
	router.GET("/ws/:sessionID", func(c *gin.Context) {
		sessionID, err := strconv.ParseUint(c.Param("sessionID"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
			return
		}

		if _, err := sessionService.GetSession(uint(sessionID)); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}

		token := c.Query("token")
		participantID := c.Query("participant_id")
		displayName := c.Query("display_name")

		presenter := false
		if token != "" {
			if !validPresenterToken(token, jwtSecret) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}
			presenter = true
		} else if participantID == "" || displayName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id and display_name required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for session %d: %v", sessionID, err)
			return
		}

		hub.RegisterClient(conn, uint(sessionID), participantID, displayName, presenter)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func validPresenterToken(tokenString, jwtSecret string) bool {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	return err == nil && token.Valid
}
