package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/xtrntr/papertrade/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/001_init.sql
var schema string

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Migrate creates the schema if it does not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const userColumns = "id, username, password_hash, cash::text, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var cash string
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &cash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if user.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("invalid cash %q: %w", cash, err)
	}
	return user, nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (*models.User, error) {
	user, err := scanUser(db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, cash) VALUES ($1, $2, $3::numeric) RETURNING "+userColumns,
		username, passwordHash, cash.String()))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id
func (db *DB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	user, err := scanUser(db.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(db.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetPositions retrieves a user's positions ordered by ticker
func (db *DB) GetPositions(ctx context.Context, userID int) ([]models.Position, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, user_id, ticker, shares FROM positions WHERE user_id = $1 ORDER BY ticker",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.UserID, &p.Ticker, &p.Shares); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	return positions, nil
}

// GetTransactions retrieves a user's transactions in creation order
func (db *DB) GetTransactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, user_id, type, ticker, shares, price::text, created_at FROM transactions WHERE user_id = $1 ORDER BY id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var (
			t     models.Transaction
			price string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Ticker, &t.Shares, &price, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return transactions, nil
}

// DeleteUser deletes a user and every row that references it
func (db *DB) DeleteUser(ctx context.Context, userID int) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM transactions WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM positions WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to delete positions: %w", err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete user %d: %w", userID, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction, committing only if fn succeeds
func (db *DB) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	q querier
}

// LockUser selects the user row FOR UPDATE so concurrent trades by the same
// user are serialized.
func (t *pgTx) LockUser(ctx context.Context, userID int) (*models.User, error) {
	user, err := scanUser(t.q.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1 FOR UPDATE", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	return user, nil
}

func (t *pgTx) GetPosition(ctx context.Context, userID int, ticker string) (*models.Position, error) {
	p := &models.Position{}
	err := t.q.QueryRow(ctx,
		"SELECT id, user_id, ticker, shares FROM positions WHERE user_id = $1 AND ticker = $2",
		userID, ticker).Scan(&p.ID, &p.UserID, &p.Ticker, &p.Shares)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

func (t *pgTx) CreatePosition(ctx context.Context, userID int, ticker string, shares int) (*models.Position, error) {
	p := &models.Position{}
	err := t.q.QueryRow(ctx,
		"INSERT INTO positions (user_id, ticker, shares) VALUES ($1, $2, $3) RETURNING id, user_id, ticker, shares",
		userID, ticker, shares).Scan(&p.ID, &p.UserID, &p.Ticker, &p.Shares)
	if err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}
	return p, nil
}

func (t *pgTx) UpdatePositionShares(ctx context.Context, positionID, shares int) error {
	tag, err := t.q.Exec(ctx, "UPDATE positions SET shares = $1 WHERE id = $2", shares, positionID)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update position %d: %w", positionID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) DeletePosition(ctx context.Context, positionID int) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM positions WHERE id = $1", positionID)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete position %d: %w", positionID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) CreateTransaction(ctx context.Context, rec *models.Transaction) (*models.Transaction, error) {
	out := &models.Transaction{}
	var price string
	err := t.q.QueryRow(ctx,
		"INSERT INTO transactions (user_id, type, ticker, shares, price) VALUES ($1, $2, $3, $4, $5::numeric) "+
			"RETURNING id, user_id, type, ticker, shares, price::text, created_at",
		rec.UserID, string(rec.Type), rec.Ticker, rec.Shares, rec.Price.String()).Scan(
		&out.ID, &out.UserID, &out.Type, &out.Ticker, &out.Shares, &price, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	if out.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	return out, nil
}

func (t *pgTx) UpdateCash(ctx context.Context, userID int, cash decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, "UPDATE users SET cash = $1::numeric WHERE id = $2", cash.String(), userID)
	if err != nil {
		return fmt.Errorf("failed to update cash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update cash for user %d: %w", userID, ErrNotFound)
	}
	return nil
}
