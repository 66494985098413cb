package database

import (
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"studio-backend/internal/config"
	"studio-backend/internal/logging"
	"studio-backend/internal/model"
)

// GormConfig routes SQL logs through logrus and has the dialector translate
// driver errors such as unique violations into gorm.ErrDuplicatedKey.
func GormConfig(logger *logrus.Logger, level string) *gorm.Config {
	return &gorm.Config{
		Logger:         logging.Gorm(logger, level),
		TranslateError: true,
	}
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(opts config.DatabaseOptions, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN()), GormConfig(logger, opts.LogLevel))
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.User{},
		&model.Song{},
		&model.Performer{},
		&model.Submission{},
		&model.AuditLog{},
		&model.Notification{},
		&model.AttendanceMachine{},
		&model.Employee{},
		&model.AttendanceLog{},
		&model.Attendance{},
		&model.MachineSyncLog{},
	)
	if err != nil {
		logger.WithError(err).Warn("failed to auto-migrate models")
	}

	return db, nil
}
