package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"turn-coordinator/internal/repository"
)

type (
	txKey   struct{}
	connKey struct{}
)

// withConn pins conn for every query made with the returned ctx.
func withConn(ctx context.Context, conn *gorm.DB) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// dbFrom returns the transaction stored in ctx by Transactor, then the
// connection pinned by AdvisoryLocker, or base.
func dbFrom(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	if conn, ok := ctx.Value(connKey{}).(*gorm.DB); ok && conn != nil {
		return conn.WithContext(ctx)
	}
	return base.WithContext(ctx)
}

// Transactor implements repository.Transactor on top of gorm.
type Transactor struct {
	db *gorm.DB
}

var _ repository.Transactor = (*Transactor)(nil)

func NewTransactor(db *gorm.DB) *Transactor {
	if db == nil {
		panic("database connection cannot be nil for Transactor")
	}
	return &Transactor{db: db}
}

// WithinTransaction joins an already running transaction instead of nesting.
// Under an advisory lock the transaction begins on the locked connection.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return dbFrom(ctx, t.db).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// isDuplicateEntry recognises unique violations from both supported drivers.
func isDuplicateEntry(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func wrapWrite(err error, format string, args ...any) error {
	if isDuplicateEntry(err) {
		return repository.ErrDuplicateEntry
	}
	return fmt.Errorf("gorm: "+format+": %w", append(args, err)...)
}
