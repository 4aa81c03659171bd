package bootstrap

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/config"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/code-100-precent/calltrack/pkg/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options controls database initialization behavior
type Options struct {
	// InitSQLPath points to a .sql script file (optional); skip if empty
	InitSQLPath string
	// AutoMigrate whether to execute entity migration
	AutoMigrate bool
	// SeedNonProd whether to write demo routing data outside production
	SeedNonProd bool
}

// SetupDatabase connect database -> run initialization SQL -> migrate entities -> (non-production) seed
func SetupDatabase(logWriter io.Writer, opts *Options) (*gorm.DB, error) {
	if opts == nil {
		opts = &Options{AutoMigrate: true, SeedNonProd: true}
	}
	if config.GlobalConfig == nil {
		return nil, errors.New("config not loaded")
	}

	db, err := utils.InitDatabase(logWriter, config.GlobalConfig.DBDriver, config.GlobalConfig.DSN)
	if err != nil {
		logger.Error("init database failed", zap.Error(err))
		return nil, err
	}

	if opts.InitSQLPath != "" {
		if err := RunInitSQL(db, opts.InitSQLPath); err != nil {
			logger.Error("run init sql failed", zap.String("path", opts.InitSQLPath), zap.Error(err))
			return nil, err
		}
	}

	if opts.AutoMigrate {
		if err := RunMigrations(db); err != nil {
			logger.Error("migration failed", zap.Error(err))
			return nil, err
		}
		logger.Info("migration success", zap.String("database", config.GlobalConfig.DBDriver))
	}

	if opts.SeedNonProd && utils.GetEnv("APP_ENV") != "production" {
		service := SeedService{db: db}
		if err := service.SeedAll(); err != nil {
			logger.Error("seed failed", zap.Error(err))
			return nil, err
		}
	}

	logger.Info("system bootstrap - database is initialization complete")
	return db, nil
}

// RunInitSQL executes a .sql file statement by statement (split on a trailing ;)
func RunInitSQL(db *gorm.DB, sqlFilePath string) error {
	f, err := os.Open(sqlFilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var (
		sb      strings.Builder
		scanner = bufio.NewScanner(f)
	)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "--") || strings.HasPrefix(trim, "#") {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		if strings.HasSuffix(trim, ";") {
			stmt := strings.TrimSpace(sb.String())
			sb.Reset()
			if err := db.Exec(stmt).Error; err != nil {
				return err
			}
		}
	}
	if rest := strings.TrimSpace(sb.String()); rest != "" {
		if err := db.Exec(rest).Error; err != nil {
			return err
		}
	}
	return scanner.Err()
}

// RunMigrations executes entity migration
func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}
	return utils.MakeMigrates(db, models.AllModels())
}

// LogConfigInfo logs the effective configuration without secrets
func LogConfigInfo() {
	cfg := config.GlobalConfig
	if cfg == nil {
		return
	}
	logger.Info("configuration",
		zap.String("server", cfg.ServerName),
		zap.String("addr", cfg.Addr),
		zap.String("mode", cfg.Mode),
		zap.String("db-driver", cfg.DBDriver),
		zap.String("public-base-url", cfg.PublicBaseURL),
		zap.Bool("record-calls", cfg.RecordCalls),
		zap.Bool("provider-token-set", cfg.ProviderAuthToken != ""),
		zap.Bool("api-key-set", cfg.APISecretKey != ""),
		zap.String("cache", cfg.Cache.Type),
		zap.Strings("kafka-brokers", cfg.KafkaBrokers),
		zap.String("report-tz", cfg.ReportTimezone),
	)
}
