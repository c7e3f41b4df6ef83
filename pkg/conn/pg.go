package conn

import (
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Option configures the journal database connection.
type Option struct {
	ConnString   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	Config       *gorm.Config
}

// Client wraps the gorm connection pool backing the audit journal.
type Client struct {
	db *gorm.DB
}

// New opens a PostgreSQL connection pool. Query logging is silenced
// unless the caller supplies its own gorm config.
func New(option Option) (*Client, error) {
	if option.ConnString == "" {
		return nil, errors.New("conn: empty connection string")
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}

	db, err := gorm.Open(postgres.Open(option.ConnString), config)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "resolve connection pool")
	}
	if option.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(option.MaxOpenConns)
	}
	if option.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(option.MaxIdleConns)
	}
	if option.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(option.MaxLifetime)
	}

	return &Client{db: db}, nil
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
