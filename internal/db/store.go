package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xtrntr/papertrade/internal/models"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned by CreateUser when the username is taken.
var ErrDuplicateUsername = errors.New("duplicate username")

// Store is the persistence layer used by the auth service and trading engine.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetPositions(ctx context.Context, userID int) ([]models.Position, error)
	GetTransactions(ctx context.Context, userID int) ([]models.Transaction, error)
	// DeleteUser removes the user together with their positions and ledger.
	DeleteUser(ctx context.Context, userID int) error

	// InTx runs fn in a single database transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Migrate(ctx context.Context) error
	Close() error
}

// Tx is the set of reads and writes a trade performs atomically.
type Tx interface {
	// LockUser reads the user row and holds it until the transaction ends
	// where the backend supports row locks.
	LockUser(ctx context.Context, userID int) (*models.User, error)
	GetPosition(ctx context.Context, userID int, ticker string) (*models.Position, error)
	CreatePosition(ctx context.Context, userID int, ticker string, shares int) (*models.Position, error)
	UpdatePositionShares(ctx context.Context, positionID, shares int) error
	DeletePosition(ctx context.Context, positionID int) error
	CreateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	UpdateCash(ctx context.Context, userID int, cash decimal.Decimal) error
}

// Open connects to the store named by url. postgres:// and postgresql://
// URLs use Postgres; sqlite:///relative.db and sqlite:////abs/path.db use SQLite.
// The schema is migrated before returning.
func Open(ctx context.Context, url string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		store, err = NewDB(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "/")
		store, err = NewSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported database url %q", url)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
