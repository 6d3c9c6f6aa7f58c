package gormpersistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"turn-coordinator/internal/lock"
)

// AdvisoryLocker implements lock.Coordinator with database advisory locks, so
// every process sharing the database sees the same locks. The lock is held on
// one pinned connection for the whole critical section, and fn's queries run
// on that connection too.
type AdvisoryLocker struct {
	db     *gorm.DB
	log    *logrus.Entry
	locker advisoryDialect
}

type advisoryDialect interface {
	acquire(conn *gorm.DB, ns lock.Namespace, gameID uint) error
	release(conn *gorm.DB, ns lock.Namespace, gameID uint) error
}

var _ lock.Coordinator = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker picks the lock statements matching the gorm dialect.
func NewAdvisoryLocker(db *gorm.DB, logger *logrus.Logger) (*AdvisoryLocker, error) {
	if db == nil {
		panic("database connection cannot be nil for AdvisoryLocker")
	}
	var d advisoryDialect
	switch name := db.Dialector.Name(); name {
	case "mysql":
		d = mysqlAdvisory{}
	case "postgres":
		d = postgresAdvisory{}
	default:
		return nil, fmt.Errorf("advisory locks are not supported on %q", name)
	}
	return &AdvisoryLocker{
		db:     db,
		log:    logger.WithField("component", "advisory_lock"),
		locker: d,
	}, nil
}

// WithLock runs fn while holding the lock. Queries made through the
// repositories with fn's ctx reuse the locked connection, so a holder never
// waits on the pool behind callers blocked on the same lock.
func (l *AdvisoryLocker) WithLock(ctx context.Context, ns lock.Namespace, gameID uint, fn func(ctx context.Context) error) error {
	return l.db.WithContext(ctx).Connection(func(tx *gorm.DB) (err error) {
		conn := tx.Session(&gorm.Session{NewDB: true})
		if err := l.locker.acquire(conn, ns, gameID); err != nil {
			return fmt.Errorf("acquire %s: %w", lock.Name(ns, gameID), err)
		}
		defer func() {
			// ctx may already be cancelled here, the release must still run.
			relErr := l.locker.release(conn.WithContext(context.Background()), ns, gameID)
			if relErr != nil {
				l.log.WithError(relErr).WithField("lock", lock.Name(ns, gameID)).Error("Failed to release advisory lock")
				err = errors.Join(err, relErr)
			}
		}()
		return fn(withConn(ctx, conn))
	})
}

type mysqlAdvisory struct{}

func (mysqlAdvisory) acquire(conn *gorm.DB, ns lock.Namespace, gameID uint) error {
	var got sql.NullInt64
	if err := conn.Raw("SELECT GET_LOCK(?, -1)", lock.Name(ns, gameID)).Row().Scan(&got); err != nil {
		return err
	}
	if !got.Valid || got.Int64 != 1 {
		return errors.New("GET_LOCK was refused")
	}
	return nil
}

func (mysqlAdvisory) release(conn *gorm.DB, ns lock.Namespace, gameID uint) error {
	return conn.Exec("SELECT RELEASE_LOCK(?)", lock.Name(ns, gameID)).Error
}

type postgresAdvisory struct{}

// namespaceKey maps a namespace to the first key of the two-key lock form.
func namespaceKey(ns lock.Namespace) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ns))
	return int32(h.Sum32())
}

func (postgresAdvisory) acquire(conn *gorm.DB, ns lock.Namespace, gameID uint) error {
	return conn.Exec("SELECT pg_advisory_lock(?, ?)", namespaceKey(ns), int32(gameID)).Error
}

func (postgresAdvisory) release(conn *gorm.DB, ns lock.Namespace, gameID uint) error {
	return conn.Exec("SELECT pg_advisory_unlock(?, ?)", namespaceKey(ns), int32(gameID)).Error
}
