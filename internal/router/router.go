package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/handler"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Student *handler.StudentHandler
	Admin   *handler.AdminHandler
	Monitor *handler.MonitorHandler
	Live    *handler.LiveHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// Rate limiter buckets are evicted until stop is closed.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
	stop <-chan struct{},
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when configured; otherwise allow all (*).
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// Answers arrive at most every few seconds per student; a burst above this is a script.
	answerLimiter := middleware.NewRateLimiter(120, time.Minute, middleware.ByIdentity)
	notifyLimiter := middleware.NewRateLimiter(30, time.Minute, middleware.ByIdentity)
	upgradeLimiter := middleware.NewRateLimiter(20, time.Minute, middleware.ByClientIP)
	go answerLimiter.Run(stop)
	go notifyLimiter.Run(stop)
	go upgradeLimiter.Run(stop)

	// ─── 1. Student Group (JWT + student role) ─────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireIdentity(auth),
		middleware.RequireStudent(),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/exams", handlers.Student.ListExams)
		studentAPI.POST("/exams/:exam_id/attempt", handlers.Student.StartAttempt)
		studentAPI.GET("/exams/:exam_id/attempt", handlers.Student.GetAttempt)
		studentAPI.GET("/exams/:exam_id/paper", handlers.Student.GetPaper)
		studentAPI.PUT("/exams/:exam_id/answers", answerLimiter.Middleware(), handlers.Student.SaveAnswer)
		studentAPI.POST("/exams/:exam_id/submit", handlers.Student.Submit)
		studentAPI.GET("/exams/:exam_id/result", handlers.Student.GetResult)
		studentAPI.POST("/exams/:exam_id/result/persist", handlers.Student.RetryPersist)
		studentAPI.GET("/results", handlers.Student.ListResults)
	}

	// ─── 2. WebSocket (any verified identity, token in query) ──────────
	ws := router.Group("/ws/v1")
	ws.Use(upgradeLimiter.Middleware(), middleware.RequireIdentity(auth))
	{
		ws.GET("/live", handlers.Live.Live)
	}

	// ─── 3. Supervisor Group (JWT + teacher/admin role) ────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.RequireIdentity(auth),
		middleware.RequireSupervisor(),
	)
	{
		adminAPI.GET("/exams/:id/results", middleware.PrivateCache(10), handlers.Admin.ListExamResults)
		adminAPI.GET("/exams/:id/attempts", middleware.NoStore(), handlers.Admin.ListLiveAttempts)
		adminAPI.GET("/exams/:id/monitor", handlers.Monitor.MonitorExamSSE)
		adminAPI.POST("/exams/:id/cache/refresh", handlers.Admin.RefreshExamCache)
		adminAPI.GET("/results/:id", middleware.PrivateCache(10), handlers.Admin.GetResult)
		adminAPI.POST("/results/:id/feedback", handlers.Admin.AddFeedback)
		adminAPI.POST("/notifications", notifyLimiter.Middleware(), handlers.Admin.NotifyExam)
	}

	return router
}
