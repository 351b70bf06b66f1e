package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cortexhq/cortex-server/internal/common"
	"github.com/cortexhq/cortex-server/internal/config"
	"github.com/cortexhq/cortex-server/internal/httpapi/handlers"
	"github.com/cortexhq/cortex-server/internal/httpapi/middleware"
	"github.com/cortexhq/cortex-server/internal/store/rabbitmq"
	"github.com/cortexhq/cortex-server/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	// permissive CORS; preflight is answered before any business logic
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, rabbit, log)

	r.GET("/ping", h.Ping)

	// accounts
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	// voice/text commands: user identity comes from the request body,
	// matching the caller contract of the edge deployment
	r.POST("/voice/commands", h.HandleCommand)
	r.POST("/voice/commands/stream", h.HandleCommandStream)
	r.POST("/voice/commands/async", h.HandleCommandAsync)
	r.GET("/voice/jobs/:job_id", h.GetCommandJob)

	// JWT required
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/me/profile", h.GetProfile)
	authGroup.PUT("/me/profile", h.UpdateProfile)
	authGroup.GET("/conversations", h.ListConversations)
	authGroup.GET("/conversations/:conversation_id/messages", h.ListConversationMessages)

	return r
}
