package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gridmesh/gpumarket/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "gpumarket-api",
		})
	})

	marketHandler := handler.NewMarketHandler(deps)

	// API v1 routes; every operation requires a verified caller identity
	v1 := r.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", marketHandler.CreateJob)
			jobs.GET("", marketHandler.ListJobs)
			jobs.GET("/mine", marketHandler.ListMyJobs)
			jobs.GET("/:job_id", marketHandler.GetJob)
			jobs.POST("/:job_id/claim", marketHandler.ClaimJob)
			jobs.POST("/:job_id/assign", marketHandler.AssignProvider)
			jobs.POST("/:job_id/result", marketHandler.SubmitResult)
			jobs.POST("/:job_id/release", marketHandler.Release)
			jobs.POST("/:job_id/extend", marketHandler.ExtendDeadline)
			jobs.GET("/:job_id/escrow", marketHandler.GetEscrow)
			jobs.GET("/:job_id/eligible-nodes", marketHandler.EligibleNodes)
		}

		nodes := v1.Group("/nodes")
		{
			nodes.POST("", marketHandler.RegisterNode)
			nodes.GET("", marketHandler.ListNodes)
			nodes.GET("/:node_id", marketHandler.GetNode)
			nodes.POST("/:node_id/offline", marketHandler.SetNodeOffline)
		}

		accounts := v1.Group("/accounts")
		{
			accounts.POST("/deposit", marketHandler.Deposit)
			accounts.GET("/balance", marketHandler.Balance)
		}
	}

	return r
}
