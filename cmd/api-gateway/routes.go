package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/activity-points-api/api/swagger"
	"github.com/noah-isme/activity-points-api/internal/handler"
	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/service"
	"github.com/noah-isme/activity-points-api/pkg/config"
	"github.com/noah-isme/activity-points-api/pkg/storage"
)

type routeHandlers struct {
	identity     *service.IdentityService
	me           *handler.IdentityHandler
	activities   *handler.ActivityHandler
	complaints   *handler.ComplaintHandler
	rosters      *handler.RosterHandler
	students     *handler.StudentHandler
	reports      *handler.ReportHandler
	metrics      *handler.MetricsHandler
	localStorage *storage.LocalStorage
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h routeHandlers) {
	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if h.localStorage != nil {
		api.GET("/evidence/:token", handler.NewEvidenceHandler(h.localStorage).Download)
	}

	staff := []models.UserRole{models.RoleCounsellor, models.RoleAdmin, models.RoleSuperadmin}
	admin := middleware.RequireRoles(models.RoleAdmin)
	superadmin := middleware.RequireRoles(models.RoleSuperadmin)
	student := middleware.RequireRoles(models.RoleStudent)

	secured := api.Group("")
	secured.Use(middleware.Authenticate(h.identity))
	secured.GET("/me", h.me.Me)

	activities := secured.Group("/activities")
	activities.GET("", h.activities.List)
	activities.GET("/upcoming", h.activities.Upcoming)
	activities.GET("/mine", admin, h.activities.Mine)
	activities.GET("/pending-rosters", superadmin, h.rosters.Pending)
	activities.POST("", admin, h.activities.Create)
	activities.GET("/:id", h.activities.Get)
	activities.GET("/:id/complaints", admin, h.activities.Complaints)
	activities.POST("/:id/approve", superadmin, h.rosters.Approve)
	activities.POST("/:id/disapprove", superadmin, h.rosters.Disapprove)

	complaints := secured.Group("/complaints")
	complaints.POST("", student, h.complaints.Submit)
	complaints.GET("/mine", student, h.complaints.Mine)
	complaints.POST("/:id/approve", admin, h.complaints.Approve)
	complaints.POST("/:id/reject", admin, h.complaints.Reject)

	students := secured.Group("/students")
	students.GET("", middleware.RequireRoles(staff...), h.students.List)
	students.GET("/leaderboard", middleware.RequireRoles(staff...), h.students.Leaderboard)
	students.GET("/me/points", student, h.students.MyPoints)
	students.GET("/:usn/activities", middleware.RequireRoles(append(staff, models.RoleStudent)...), h.students.Activities)
	students.POST("/:usn/reconcile", superadmin, h.students.Reconcile)

	secured.GET("/reports/points", middleware.RequireRoles(models.RoleCounsellor, models.RoleSuperadmin), h.reports.Points)
	secured.POST("/rosters/preview", superadmin, h.rosters.Preview)
}
