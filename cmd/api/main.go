package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "studio-backend/api/swagger" // swagger docs
	"studio-backend/internal/app"
	"studio-backend/internal/config"
	"studio-backend/internal/scheduler"
)

// @title           Studio Backend API
// @version         1.0
// @description     Music production workflow and attendance machine management.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("configs/.env")
	if err != nil {
		log.Fatalf("Config failed: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer a.Close()
	a.Log.Info("Connected to PostgreSQL successfully.")

	go a.Hub.Run()

	var sched *scheduler.Scheduler
	if cfg.Attendance.CronSpec != "" {
		sched = scheduler.New(cfg.Location(), a.Log, cfg.Attendance.LockTTL)
		if err := sched.Add("attendance", cfg.Attendance.CronSpec, a.Sync.RunScheduled); err != nil {
			a.Log.WithError(err).Fatal("invalid ATTENDANCE_CRON")
		}
		sched.Start()
		a.Log.WithField("cron", cfg.Attendance.CronSpec).Info("attendance scheduler started")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.Log.Infof("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	stop()
	a.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.WithError(err).Warn("forced shutdown")
	}
}
