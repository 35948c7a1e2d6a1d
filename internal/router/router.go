package router

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/faculty-records-api/internal/handler"
	"github.com/noah-isme/faculty-records-api/internal/middleware"
	"github.com/noah-isme/faculty-records-api/internal/models"
	"github.com/noah-isme/faculty-records-api/internal/service"
	"github.com/noah-isme/faculty-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/faculty-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/faculty-records-api/pkg/middleware/requestid"
)

// Options carries everything the route table needs.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Tokens         middleware.TokenValidator
	Audit          middleware.AuditWriter

	Auth      *handler.AuthHandler
	Records   *handler.RecordHandler
	Summary   *handler.SummaryHandler
	Exports   *handler.ExportHandler
	Employees *handler.EmployeeHandler
	System    *handler.MetricsHandler
}

// New builds the gin engine with the global middleware chain and every route.
func New(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	prefix := "/" + strings.Trim(opts.APIPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))

	r.GET("/health", opts.System.Health)
	r.GET("/ready", opts.System.Ready)
	r.GET("/metrics", opts.System.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	auth := api.Group("/auth")
	auth.POST("/login", opts.Auth.Login)
	auth.POST("/refresh", opts.Auth.Refresh)

	requireJWT := middleware.JWT(opts.Tokens)
	optionalJWT := middleware.OptionalJWT(opts.Tokens)

	// Signed-token downloads. Claims, when sent, only enrich the access and audit logs.
	api.GET("/records/:type/:id/attachment", optionalJWT,
		middleware.Audit(opts.Audit, opts.Logger, models.AuditActionAttachmentView, "records"),
		opts.Records.DownloadAttachment)
	api.GET("/exports/download/:token", optionalJWT,
		middleware.Audit(opts.Audit, opts.Logger, models.AuditActionExportDownload, "exports"),
		opts.Exports.Download)

	secured := api.Group("")
	secured.Use(requireJWT)

	secured.POST("/auth/logout", opts.Auth.Logout)
	secured.POST("/auth/change-password", opts.Auth.ChangePassword)
	secured.GET("/auth/me", opts.Auth.Me)

	secured.GET("/record-types", opts.Records.RecordTypes)
	secured.GET("/summary", opts.Summary.Summary)

	records := secured.Group("/records/:type")
	records.POST("", middleware.RequireRoles(models.RoleFaculty), opts.Records.Submit)
	records.GET("", opts.Records.List)
	records.GET("/:id", opts.Records.Get)
	records.PATCH("/:id/status", middleware.Reviewers(), opts.Records.Review)
	records.GET("/:id/attachment-url", opts.Records.AttachmentURL)

	exports := secured.Group("/exports")
	exports.Use(middleware.Reviewers())
	exports.GET("/records/:type", opts.Exports.ExportRecords)
	exports.GET("/summary", opts.Exports.ExportSummary)
	exports.POST("/jobs", opts.Exports.CreateJob)
	exports.GET("/jobs/:id", opts.Exports.JobStatus)

	employees := secured.Group("/employees")
	employees.Use(middleware.RequireRoles(models.RoleAdmin))
	employees.GET("", opts.Employees.List)
	employees.POST("", opts.Employees.Create)
	employees.GET("/:id", opts.Employees.Get)
	employees.PUT("/:id", opts.Employees.Update)

	secured.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleAdmin), opts.System.Snapshot)

	return r
}
