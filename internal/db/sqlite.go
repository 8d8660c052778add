package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xtrntr/papertrade/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Money columns hold decimal text so SQLite never rounds them through REAL.
type userRow struct {
	ID           int             `gorm:"primaryKey"`
	Username     string          `gorm:"size:80;uniqueIndex;not null"`
	PasswordHash string          `gorm:"size:255;not null"`
	Cash         decimal.Decimal `gorm:"type:text;not null"`
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (r userRow) model() *models.User {
	return &models.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Cash:         r.Cash,
		CreatedAt:    r.CreatedAt,
	}
}

type positionRow struct {
	ID     int    `gorm:"primaryKey"`
	UserID int    `gorm:"not null;uniqueIndex:idx_positions_user_ticker"`
	Ticker string `gorm:"size:10;not null;uniqueIndex:idx_positions_user_ticker"`
	Shares int    `gorm:"not null"`
}

func (positionRow) TableName() string { return "positions" }

func (r positionRow) model() *models.Position {
	return &models.Position{ID: r.ID, UserID: r.UserID, Ticker: r.Ticker, Shares: r.Shares}
}

type transactionRow struct {
	ID        int             `gorm:"primaryKey"`
	UserID    int             `gorm:"not null;index"`
	Type      string          `gorm:"size:4;not null"`
	Ticker    string          `gorm:"size:10;not null"`
	Shares    int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (transactionRow) TableName() string { return "transactions" }

func (r transactionRow) model() models.Transaction {
	return models.Transaction{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      models.TransactionType(r.Type),
		Ticker:    r.Ticker,
		Shares:    r.Shares,
		Price:     r.Price,
		CreatedAt: r.CreatedAt,
	}
}

// SQLite is a Store backed by a SQLite file through gorm.
type SQLite struct {
	db *gorm.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the SQLite database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &SQLite{db: db}, nil
}

// Migrate creates or updates the tables
func (s *SQLite) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &positionRow{}, &transactionRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateUser inserts a new user
func (s *SQLite) CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (*models.User, error) {
	row := userRow{Username: username, PasswordHash: passwordHash, Cash: cash}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return row.model(), nil
}

// GetUserByID retrieves a user by id
func (s *SQLite) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", notFound(err))
	}
	return row.model(), nil
}

// GetUserByUsername retrieves a user by username
func (s *SQLite) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "username = ?", username).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", notFound(err))
	}
	return row.model(), nil
}

// GetPositions retrieves a user's positions ordered by ticker
func (s *SQLite) GetPositions(ctx context.Context, userID int) ([]models.Position, error) {
	var rows []positionRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("ticker").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	positions := make([]models.Position, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, *r.model())
	}
	return positions, nil
}

// GetTransactions retrieves a user's transactions in creation order
func (s *SQLite) GetTransactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	var rows []transactionRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	transactions := make([]models.Transaction, 0, len(rows))
	for _, r := range rows {
		transactions = append(transactions, r.model())
	}
	return transactions, nil
}

// DeleteUser deletes a user and every row that references it
func (s *SQLite) DeleteUser(ctx context.Context, userID int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&transactionRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete transactions: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&positionRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete positions: %w", err)
		}
		res := tx.Delete(&userRow{}, userID)
		if res.Error != nil {
			return fmt.Errorf("failed to delete user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("failed to delete user %d: %w", userID, ErrNotFound)
		}
		return nil
	})
}

// InTx runs fn inside a gorm transaction, committing only if fn succeeds
func (s *SQLite) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteTx{db: tx})
	})
}

// sqliteTx implements Tx on a gorm transaction. The single connection
// already serializes writers, so LockUser is a plain read.
type sqliteTx struct {
	db *gorm.DB
}

// LockUser reads the user row
func (t *sqliteTx) LockUser(ctx context.Context, userID int) (*models.User, error) {
	var row userRow
	if err := t.db.WithContext(ctx).First(&row, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", notFound(err))
	}
	return row.model(), nil
}

// GetPosition retrieves the user's position in ticker
func (t *sqliteTx) GetPosition(ctx context.Context, userID int, ticker string) (*models.Position, error) {
	var row positionRow
	err := t.db.WithContext(ctx).First(&row, "user_id = ? AND ticker = ?", userID, ticker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return row.model(), nil
}

// CreatePosition opens a position
func (t *sqliteTx) CreatePosition(ctx context.Context, userID int, ticker string, shares int) (*models.Position, error) {
	row := positionRow{UserID: userID, Ticker: ticker, Shares: shares}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}
	return row.model(), nil
}

// UpdatePositionShares sets a position's share count
func (t *sqliteTx) UpdatePositionShares(ctx context.Context, positionID, shares int) error {
	res := t.db.WithContext(ctx).Model(&positionRow{}).Where("id = ?", positionID).Update("shares", shares)
	if res.Error != nil {
		return fmt.Errorf("failed to update position: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update position %d: %w", positionID, ErrNotFound)
	}
	return nil
}

// DeletePosition removes a closed position
func (t *sqliteTx) DeletePosition(ctx context.Context, positionID int) error {
	res := t.db.WithContext(ctx).Delete(&positionRow{}, positionID)
	if res.Error != nil {
		return fmt.Errorf("failed to delete position: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete position %d: %w", positionID, ErrNotFound)
	}
	return nil
}

// CreateTransaction appends a ledger entry
func (t *sqliteTx) CreateTransaction(ctx context.Context, rec *models.Transaction) (*models.Transaction, error) {
	row := transactionRow{
		UserID: rec.UserID,
		Type:   string(rec.Type),
		Ticker: rec.Ticker,
		Shares: rec.Shares,
		Price:  rec.Price,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	out := row.model()
	return &out, nil
}

// UpdateCash sets the user's cash balance
func (t *sqliteTx) UpdateCash(ctx context.Context, userID int, cash decimal.Decimal) error {
	res := t.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Update("cash", cash)
	if res.Error != nil {
		return fmt.Errorf("failed to update cash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update cash for user %d: %w", userID, ErrNotFound)
	}
	return nil
}
