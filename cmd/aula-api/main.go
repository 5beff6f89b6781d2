package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/aulalabs/aula-api/api/swagger"
	"github.com/aulalabs/aula-api/internal/handler"
	"github.com/aulalabs/aula-api/internal/middleware"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/internal/service"
	"github.com/aulalabs/aula-api/pkg/cache"
	"github.com/aulalabs/aula-api/pkg/config"
	"github.com/aulalabs/aula-api/pkg/database"
	"github.com/aulalabs/aula-api/pkg/logger"
	corsmiddleware "github.com/aulalabs/aula-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aulalabs/aula-api/pkg/middleware/requestid"
)

// @title Aula API
// @version 0.3.0
// @description Course management backend
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	itemRepo := repository.NewItemRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	accessSvc := service.NewAccessService(enrollmentRepo, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	categorySvc := service.NewCategoryService(categoryRepo, courseRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, sectionRepo, itemRepo, enrollmentRepo, accessSvc, cacheRepo, cfg.Catalog.CacheTTL, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, courseRepo, accessSvc, validate, logr)
	itemSvc := service.NewItemService(itemRepo, sectionRepo, courseRepo, accessSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, courseRepo, accessSvc, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, itemRepo, enrollmentRepo, courseRepo, accessSvc, validate, logr)
	quizSvc := service.NewQuizService(questionRepo, quizRepo, gradeRepo, courseRepo, accessSvc, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, gradeRepo, enrollmentRepo, courseRepo, accessSvc, validate, logr)
	messageSvc := service.NewMessageService(messageRepo, userRepo, courseRepo, accessSvc, cacheRepo, validate, logr)
	auditSvc := service.NewAuditService(auditRepo, logr)
	metricsSvc := service.NewMetricsService()

	seedAdmin(cfg, userSvc, userRepo, logr)

	authH := handler.NewAuthHandler(authSvc)
	userH := handler.NewUserHandler(userSvc)
	categoryH := handler.NewCategoryHandler(categorySvc)
	courseH := handler.NewCourseHandler(courseSvc)
	sectionH := handler.NewSectionHandler(sectionSvc)
	itemH := handler.NewItemHandler(itemSvc)
	enrollmentH := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeH := handler.NewGradeHandler(gradeSvc)
	quizH := handler.NewQuizHandler(quizSvc)
	assignmentH := handler.NewAssignmentHandler(assignmentSvc)
	messageH := handler.NewMessageHandler(messageSvc)
	auditH := handler.NewAuditHandler(auditSvc)
	metricsH := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsH.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", middleware.Audit(auditSvc, "auth.login", "user"), authH.Login)
	api.POST("/auth/register", middleware.Audit(auditSvc, "auth.register", "user"), authH.Register)
	api.POST("/auth/forgot-password", authH.ForgotPassword)
	api.POST("/auth/reset-password", authH.ResetPassword)

	auth := api.Group("", middleware.JWT(authSvc))
	auth.GET("/auth/me", authH.Me)

	users := auth.Group("/users")
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userH.List)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditSvc, "user.create", "user"), userH.Create)
		users.PUT("/bulk", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditSvc, "user.bulk_update", "user"), userH.BulkUpdate)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userH.Get)
		users.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), middleware.Audit(auditSvc, "user.update", "user"), userH.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditSvc, "user.deactivate", "user"), userH.Deactivate)
	}

	categories := auth.Group("/course-categories")
	{
		categories.GET("", categoryH.List)
		categories.GET("/tree", categoryH.Tree)
		categories.GET("/:id", categoryH.Get)
		categories.POST("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditSvc, "category.create", "category"), categoryH.Create)
		categories.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditSvc, "category.update", "category"), categoryH.Update)
		categories.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditSvc, "category.delete", "category"), categoryH.Delete)
	}

	courses := auth.Group("/courses")
	{
		courses.GET("", courseH.List)
		courses.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), middleware.Audit(auditSvc, "course.create", "course"), courseH.Create)
		courses.PUT("/bulk", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditSvc, "course.bulk_update", "course"), courseH.BulkUpdate)
		courses.GET("/:id", courseH.Get)
		courses.PUT("/:id", middleware.Audit(auditSvc, "course.update", "course"), courseH.Update)
		courses.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditSvc, "course.delete", "course"), courseH.Delete)
		courses.POST("/:id/duplicate", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), middleware.Audit(auditSvc, "course.duplicate", "course"), courseH.Duplicate)
		courses.GET("/:id/stats", courseH.Stats)

		courses.GET("/:id/sections", sectionH.List)
		courses.POST("/:id/sections", middleware.Audit(auditSvc, "section.create", "section"), sectionH.Create)

		courses.GET("/:id/enrollments", enrollmentH.List)
		courses.POST("/:id/enrollments", middleware.Audit(auditSvc, "enrollment.create", "enrollment"), enrollmentH.Enroll)
		courses.POST("/:id/enrollments/bulk", middleware.Audit(auditSvc, "enrollment.bulk_create", "enrollment"), enrollmentH.BulkEnroll)
		courses.POST("/:id/self-enroll", enrollmentH.SelfEnroll)
		courses.GET("/:id/enrollment-methods", enrollmentH.ListMethods)
		courses.POST("/:id/enrollment-methods", middleware.Audit(auditSvc, "enrollment_method.create", "enrollment_method"), enrollmentH.CreateMethod)

		courses.PUT("/:id/grades", middleware.Audit(auditSvc, "grade.set", "grade"), gradeH.SetGrade)
		courses.GET("/:id/grades/:userId", gradeH.StudentGrades)
		courses.GET("/:id/gradebook", gradeH.Gradebook)
		courses.GET("/:id/gradebook/export", gradeH.Export)

		courses.GET("/:id/questions", quizH.ListQuestions)
		courses.POST("/:id/questions", quizH.CreateQuestion)
		courses.GET("/:id/question-categories", quizH.ListQuestionCategories)
		courses.POST("/:id/question-categories", quizH.CreateQuestionCategory)
		courses.GET("/:id/quizzes", quizH.ListQuizzes)
		courses.POST("/:id/quizzes", quizH.CreateQuiz)

		courses.GET("/:id/assignments", assignmentH.List)
		courses.POST("/:id/assignments", assignmentH.Create)

		courses.GET("/:id/announcements", messageH.Announcements)
	}

	sections := auth.Group("/sections")
	{
		sections.PUT("/:id", middleware.Audit(auditSvc, "section.update", "section"), sectionH.Update)
		sections.PUT("/:id/move", middleware.Audit(auditSvc, "section.move", "section"), sectionH.Move)
		sections.DELETE("/:id", middleware.Audit(auditSvc, "section.delete", "section"), sectionH.Delete)
		sections.GET("/:id/items", itemH.List)
		sections.POST("/:id/items", middleware.Audit(auditSvc, "item.create", "item"), itemH.Create)
	}

	items := auth.Group("/items")
	{
		items.GET("/:id", itemH.Get)
		items.PUT("/:id", middleware.Audit(auditSvc, "item.update", "item"), itemH.Update)
		items.PUT("/:id/move", middleware.Audit(auditSvc, "item.move", "item"), itemH.Move)
		items.POST("/:id/duplicate", middleware.Audit(auditSvc, "item.duplicate", "item"), itemH.Duplicate)
		items.DELETE("/:id", middleware.Audit(auditSvc, "item.delete", "item"), itemH.Delete)
	}

	enrollments := auth.Group("/enrollments")
	{
		enrollments.GET("/my-courses", enrollmentH.MyCourses)
		enrollments.PUT("/:id", middleware.Audit(auditSvc, "enrollment.update", "enrollment"), enrollmentH.Update)
		enrollments.DELETE("/:id", middleware.Audit(auditSvc, "enrollment.delete", "enrollment"), enrollmentH.Unenroll)
	}

	auth.GET("/grades/my", gradeH.MyGrades)

	questions := auth.Group("/questions")
	{
		questions.PUT("/:id", quizH.UpdateQuestion)
		questions.DELETE("/:id", quizH.DeleteQuestion)
	}

	quizzes := auth.Group("/quizzes")
	{
		quizzes.GET("/:id", quizH.GetQuiz)
		quizzes.PUT("/:id", quizH.UpdateQuiz)
		quizzes.DELETE("/:id", quizH.DeleteQuiz)
		quizzes.POST("/:id/attempts", quizH.StartAttempt)
		quizzes.GET("/:id/attempts", quizH.ListAttempts)
	}
	auth.PUT("/attempts/:id/submit", quizH.SubmitAttempt)

	assignments := auth.Group("/assignments")
	{
		assignments.GET("/:id", assignmentH.Get)
		assignments.PUT("/:id", assignmentH.Update)
		assignments.DELETE("/:id", assignmentH.Delete)
		assignments.POST("/:id/submissions", assignmentH.Submit)
		assignments.GET("/:id/submissions", assignmentH.ListSubmissions)
	}
	auth.PUT("/submissions/:id/grade", middleware.Audit(auditSvc, "submission.grade", "submission"), assignmentH.GradeSubmission)

	messages := auth.Group("/messages")
	{
		messages.GET("/threads", messageH.Inbox)
		messages.POST("/threads", messageH.CreateThread)
		messages.GET("/threads/:id", messageH.GetThread)
		messages.POST("/threads/:id/reply", messageH.Reply)
		messages.GET("/unread-count", messageH.UnreadCount)
	}

	auth.GET("/audit-logs", middleware.RequireRoles(models.RoleAdmin), auditH.List)
	auth.GET("/admin/metrics", middleware.RequireRoles(models.RoleAdmin), metricsH.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("shutdown error", zap.Error(err))
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("failed to close redis", zap.Error(err))
	}
}

// seedAdmin creates the bootstrap administrator on first start.
func seedAdmin(cfg *config.Config, users *service.UserService, repo *repository.UserRepository, logr *zap.Logger) {
	if cfg.Seed.AdminEmail == "" || cfg.Seed.AdminPassword == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := repo.FindByEmail(ctx, cfg.Seed.AdminEmail); err == nil {
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		logr.Warn("failed to check seed admin", zap.Error(err))
		return
	}

	if _, err := users.Create(ctx, models.CreateUserRequest{
		Email:     cfg.Seed.AdminEmail,
		Password:  cfg.Seed.AdminPassword,
		FirstName: "Admin",
		LastName:  "Aula",
		Role:      models.RoleAdmin,
	}); err != nil {
		logr.Warn("failed to seed admin account", zap.Error(err))
		return
	}
	logr.Info("seeded bootstrap admin", zap.String("email", cfg.Seed.AdminEmail))
}
