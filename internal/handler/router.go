package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vikram-labs/schoolpay-api/internal/middleware"
	"github.com/vikram-labs/schoolpay-api/internal/models"
	"github.com/vikram-labs/schoolpay-api/internal/repository"
	"github.com/vikram-labs/schoolpay-api/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Students   *StudentHandler
	Structures *FeeStructureHandler
	Payments   *PaymentHandler
	Gateway    *GatewayHandler
	Analytics  *FeeAnalyticsHandler
	Reminders  *FeeReminderHandler
	Exports    *ExportHandler
	Metrics    *MetricsHandler
}

// RouterConfig tunes route registration.
type RouterConfig struct {
	APIPrefix        string
	AnalyticsEnabled bool
}

// RegisterRoutes mounts the API under the configured prefix. Download and
// health endpoints stay outside JWT; everything else requires a valid token.
func RegisterRoutes(r *gin.Engine, cfg RouterConfig, h Handlers, auth *service.AuthService, users *repository.UserRepository) {
	prefix := strings.TrimRight(cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)

	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.POST("/auth/forgot-password", h.Auth.ForgotPassword)
	api.POST("/auth/reset-password", h.Auth.ResetPassword)

	// Export downloads authenticate through the signed token in the URL.
	api.GET("/export/:token", h.Exports.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth))

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.POST("/auth/change-password", h.Auth.ChangePassword)
	authed.GET("/auth/me", h.Auth.Me)

	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleSchoolAdmin)
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleSchoolAdmin, models.RoleTeacher)

	userRoutes := authed.Group("/users")
	userRoutes.GET("", admins, h.Users.List)
	userRoutes.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleSchoolAdmin), middleware.AllowSelf), h.Users.Get)
	userRoutes.POST("", admins, h.Users.Create)
	userRoutes.PUT("/:id", admins, h.Users.Update)
	userRoutes.DELETE("/:id", admins, h.Users.Delete)

	studentRoutes := authed.Group("/students")
	studentRoutes.GET("", staff, h.Students.List)
	studentRoutes.GET("/:id", staff, h.Students.Get)
	studentRoutes.POST("", admins, h.Students.Create)
	studentRoutes.PUT("/:id", admins, h.Students.Update)
	studentRoutes.DELETE("/:id", admins, h.Students.Delete)
	studentRoutes.GET("/:id/payments", staff, h.Payments.StudentPayments)

	feeRoutes := authed.Group("/fees")
	feeRoutes.GET("/structures", staff, h.Structures.List)
	feeRoutes.GET("/structures/:id", staff, h.Structures.Get)
	feeRoutes.POST("/structures", admins, middleware.Audit(users, models.AuditActionStructureWrite, "fee_structures"), h.Structures.Create)
	feeRoutes.PUT("/structures/:id", admins, middleware.Audit(users, models.AuditActionStructureWrite, "fee_structures"), h.Structures.Update)
	feeRoutes.DELETE("/structures/:id", admins, middleware.Audit(users, models.AuditActionStructureWrite, "fee_structures"), h.Structures.Delete)
	feeRoutes.GET("/students/:id/status", h.Structures.StudentStatus)
	feeRoutes.GET("/defaulters", staff, h.Structures.Defaulters)
	feeRoutes.POST("/overdue/refresh", admins, h.Structures.RefreshOverdue)
	feeRoutes.POST("/reminders", admins, h.Reminders.Send)

	paymentRoutes := authed.Group("/payments")
	paymentRoutes.POST("", admins, middleware.Audit(users, models.AuditActionPaymentRecord, "payments"), h.Payments.Record)
	paymentRoutes.GET("", staff, h.Payments.List)
	paymentRoutes.GET("/:id", staff, h.Payments.Get)
	paymentRoutes.GET("/:id/receipt", h.Payments.Receipt)
	paymentRoutes.GET("/:id/history", admins, h.Payments.History)
	paymentRoutes.POST("/:id/refund", admins, middleware.Audit(users, models.AuditActionPaymentRefund, "payments"), h.Payments.Refund)
	authed.GET("/receipts/:receiptNo", staff, h.Payments.GetByReceipt)

	gatewayRoutes := authed.Group("/gateway")
	gatewayRoutes.POST("/order", h.Gateway.CreateOrder)
	gatewayRoutes.POST("/callback", h.Gateway.Callback)

	if cfg.AnalyticsEnabled {
		authed.GET("/analytics/fees", admins, middleware.WithResponseMeta(), h.Analytics.Collect)
	}

	authed.POST("/exports", admins, h.Exports.Generate)
}
