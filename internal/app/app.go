// Package app wires repositories, services and handlers from configuration.
package app

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"studio-backend/internal/attendance"
	"studio-backend/internal/config"
	"studio-backend/internal/database"
	"studio-backend/internal/handler"
	"studio-backend/internal/lock"
	"studio-backend/internal/logging"
	"studio-backend/internal/metrics"
	"studio-backend/internal/middleware"
	"studio-backend/internal/notification"
	"studio-backend/internal/repository"
	"studio-backend/internal/service"
	"studio-backend/internal/storage"
	"studio-backend/internal/terminal"
	"studio-backend/internal/websocket"
)

type App struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *gorm.DB
	Hub    *websocket.Hub
	Auth   *middleware.Auth
	Files  *storage.LocalStore

	Users         service.UserService
	Catalog       service.CatalogService
	Workflow      service.MusicWorkflowService
	Notifications service.NotificationService
	Audit         service.AuditService
	Attendance    service.AttendanceService
	Sync          service.AttendanceSyncService
	Statistics    service.StatisticsService

	closers []func() error
}

// New connects to the database and builds every service.
func New(cfg *config.Config) (*App, error) {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	logging.SetDefault(logger)

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	policy, err := attendance.LoadPolicy(cfg.Attendance.PolicyPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Log:    logger,
		DB:     db,
		Hub:    websocket.NewHub(logger),
		Auth:   middleware.NewAuth(cfg.JWTSecret, cfg.GinMode == config.Production),
		Files:  storage.NewLocalStore(cfg.Upload.Path, cfg.Upload.PublicBaseURL, cfg.Upload.MaxSize),
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisLocker, err := lock.NewRedisLockerFromURL(cfg.RedisURL, "studio")
		if err != nil {
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		locker = redisLocker
		a.closers = append(a.closers, redisLocker.Close)
	}

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	songRepo := repository.NewSongRepository(db)
	performerRepo := repository.NewPerformerRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	machineRepo := repository.NewMachineRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	txManager := repository.NewTransactionManager(db)

	var mailer notification.Mailer
	if m := notification.NewSMTPMailer(cfg.Mail); m != nil {
		mailer = m
	}
	notifier := notification.NewNotifier(notificationRepo, userRepo, a.Hub, mailer)
	a.closers = append(a.closers, func() error {
		notifier.Wait()
		return nil
	})

	a.Users = service.NewUserService(service.UserDeps{
		Users:      userRepo,
		Performers: performerRepo,
		Audit:      auditRepo,
		Tx:         txManager,
		JWTSecret:  cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
	})
	a.Catalog = service.NewCatalogService(songRepo, performerRepo, auditRepo, txManager)
	a.Workflow = service.NewMusicWorkflowService(service.MusicWorkflowDeps{
		Submissions: repository.NewSubmissionRepository(db),
		Songs:       songRepo,
		Performers:  performerRepo,
		Users:       userRepo,
		Audit:       auditRepo,
		Tx:          txManager,
		Notifier:    notifier,
		Files:       a.Files,
	})
	a.Notifications = service.NewNotificationService(notificationRepo)
	a.Audit = service.NewAuditService(auditRepo)
	a.Statistics = service.NewStatisticsService(repository.NewDashboardRepository(db))
	a.Attendance = service.NewAttendanceService(machineRepo, employeeRepo, attendanceRepo,
		repository.NewStatisticsRepository(db), auditRepo, txManager, cfg.Location())
	a.Sync = service.NewAttendanceSyncService(service.AttendanceSyncDeps{
		Machines:   machineRepo,
		Employees:  employeeRepo,
		Logs:       repository.NewAttendanceLogRepository(db),
		Attendance: attendanceRepo,
		SyncLogs:   repository.NewSyncLogRepository(db),
		Tx:         txManager,
		Client:     terminal.NewClient(cfg.Attendance.DeviceTimeout),
		Locker:     locker,
		Policy:     policy,
		Location:   cfg.Location(),
		LockTTL:    cfg.Attendance.LockTTL,
	})
	return a, nil
}

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	gin.SetMode(a.Config.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(a.Log))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = a.Config.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", logging.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.MaxMultipartMemory = 8 << 20

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET(a.Config.MetricsPath, gin.WrapH(metrics.Handler()))
	router.Static("/uploads", a.Files.Root())

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(a.Hub, c, []byte(a.Config.JWTSecret))
	})

	loc := a.Config.Location()
	root := router.Group("")
	handler.NewUserHandler(a.Users, a.Auth).RegisterRoutes(root)
	handler.NewCatalogHandler(a.Catalog, a.Auth).RegisterRoutes(root)
	handler.NewMusicWorkflowHandler(a.Workflow, a.Auth, a.Config.Upload.MaxSize).RegisterRoutes(root)
	handler.NewNotificationHandler(a.Notifications, a.Auth).RegisterRoutes(root)
	handler.NewAuditHandler(a.Audit, a.Auth).RegisterRoutes(root)
	handler.NewStatisticsHandler(a.Statistics, a.Auth).RegisterRoutes(root)
	handler.NewRoleHandler(service.NewRoleService(), a.Auth).RegisterRoutes(root)
	handler.NewAttendanceMachineHandler(a.Attendance, a.Sync, a.Auth, loc).RegisterRoutes(root)
	handler.NewAttendanceHandler(a.Attendance, a.Sync, a.Auth, loc).RegisterRoutes(root)
	return router
}

// Close releases the database pool and the lock backend.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Log.WithError(err).Warn("shutdown step failed")
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
