package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DBOptions describes how to reach the SQL database.
type DBOptions struct {
	Driver   string // mysql or postgres
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	Debug    bool
}

// DSN builds the driver specific connection string.
func (o DBOptions) DSN() (string, error) {
	if o.User == "" {
		return "", fmt.Errorf("database user is not set")
	}
	switch o.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			o.User, o.Password, o.Host, o.Port, o.Name), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			o.Host, o.Port, o.User, o.Password, o.Name), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", o.Driver)
}

func (o DBOptions) dialector(dsn string) gorm.Dialector {
	if o.Driver == "postgres" {
		return postgres.Open(dsn)
	}
	return mysql.Open(dsn)
}

// InitDB opens the database and tunes the connection pool.
func InitDB(opts DBOptions, logger *logrus.Logger) (*gorm.DB, error) {
	dsn, err := opts.DSN()
	if err != nil {
		return nil, err
	}

	level := gormlogger.Warn
	if opts.Debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(opts.dialector(dsn), &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	logger.WithField("driver", opts.Driver).Info("Database connected")
	return db, nil
}

// RedisOptions describes how to reach redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// InitRedis connects to redis and pings it once.
func InitRedis(ctx context.Context, opts RedisOptions, logger *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	logger.WithField("addr", opts.Addr).Info("Redis connected")
	return client, nil
}
