package db

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/tradelens/backend/internal/config"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Engine names the relational engine behind a Database.
type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
	EngineMySQL    Engine = "mysql"
)

// Database is an open gorm handle plus the engine details the store needs
// for storage accounting and backups.
type Database struct {
	DB     *gorm.DB
	Engine Engine

	sqlitePath string
}

// Open selects the engine from configuration and connects. An empty
// DATABASE_URL opens the embedded sqlite file.
func Open(cfg *config.Config) (*Database, error) {
	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Error),
		TranslateError: true,
	}

	if cfg.UsesEmbeddedEngine() {
		return OpenSQLite(cfg.SQLitePath, gcfg)
	}

	raw := strings.TrimSpace(cfg.DatabaseURL)
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		gdb, err := gorm.Open(postgres.Open(raw), gcfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("Database connected", map[string]interface{}{"engine": EnginePostgres})
		return &Database{DB: gdb, Engine: EnginePostgres}, nil
	default:
		dsn, err := MySQLDSN(raw)
		if err != nil {
			return nil, err
		}
		gdb, err := gorm.Open(mysql.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		logger.Info("Database connected", map[string]interface{}{"engine": EngineMySQL})
		return &Database{DB: gdb, Engine: EngineMySQL}, nil
	}
}

// OpenSQLite opens (creating if needed) the embedded database file. The pool
// is pinned to one connection so writers never contend for the file lock.
func OpenSQLite(path string, gcfg *gorm.Config) (*Database, error) {
	if gcfg == nil {
		gcfg = &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
			TranslateError: true,
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	gdb, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	logger.Info("Database connected", map[string]interface{}{
		"engine": EngineSQLite,
		"path":   path,
	})
	return &Database{DB: gdb, Engine: EngineSQLite, sqlitePath: path}, nil
}

// MySQLDSN accepts either a mysql:// URL or a go-sql-driver DSN and returns
// a DSN with time parsing enabled.
func MySQLDSN(raw string) (string, error) {
	var mc *mysqldriver.Config
	if strings.HasPrefix(raw, "mysql://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse mysql url: %w", err)
		}
		mc = mysqldriver.NewConfig()
		mc.Net = "tcp"
		mc.Addr = u.Host
		if u.Port() == "" {
			mc.Addr = u.Host + ":3306"
		}
		mc.DBName = strings.TrimPrefix(u.Path, "/")
		if u.User != nil {
			mc.User = u.User.Username()
			mc.Passwd, _ = u.User.Password()
		}
		if len(u.Query()) > 0 {
			mc.Params = map[string]string{}
			for k, v := range u.Query() {
				mc.Params[k] = v[0]
			}
		}
	} else {
		var err error
		mc, err = mysqldriver.ParseDSN(raw)
		if err != nil {
			return "", fmt.Errorf("unsupported DATABASE_URL: %w", err)
		}
	}
	if mc.DBName == "" {
		return "", fmt.Errorf("mysql DATABASE_URL must name a database")
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}

// AutoMigrate creates or updates the journal tables.
func (d *Database) AutoMigrate() error {
	for _, m := range []interface{}{
		&models.File{},
		&models.AnalysisRecord{},
		&models.ChatMessageRecord{},
	} {
		if err := d.DB.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	logger.Info("Database migrated successfully", map[string]interface{}{"engine": d.Engine})
	return nil
}

// StorageSize reports the bytes used by the database.
func (d *Database) StorageSize(ctx context.Context) (int64, error) {
	var size int64
	switch d.Engine {
	case EngineSQLite:
		fi, err := os.Stat(d.sqlitePath)
		if err != nil {
			return 0, err
		}
		size = fi.Size()
		if wal, err := os.Stat(d.sqlitePath + "-wal"); err == nil {
			size += wal.Size()
		}
	case EnginePostgres:
		err := d.DB.WithContext(ctx).Raw("SELECT pg_database_size(current_database())").Scan(&size).Error
		if err != nil {
			return 0, err
		}
	case EngineMySQL:
		err := d.DB.WithContext(ctx).Raw(
			"SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = DATABASE()",
		).Scan(&size).Error
		if err != nil {
			return 0, err
		}
	}
	return size, nil
}

// Ping checks the connection with a cheap round-trip.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
