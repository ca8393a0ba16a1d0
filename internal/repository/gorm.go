package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"auction-market/internal/biddingerrors"
	"auction-market/internal/models"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormRepo is the PostgreSQL implementation of Store. Row locks taken with
// SELECT ... FOR UPDATE inside transactions give it the same atomicity as
// MemoryRepo across processes.
type GormRepo struct {
	db *gorm.DB
}

var _ Store = (*GormRepo)(nil)

const defaultSlowThreshold = 200 * time.Millisecond

// GormOption customises the gorm configuration
type GormOption func(*gorm.Config)

// WithSlowThreshold sets the duration above which queries are logged as slow
func WithSlowThreshold(d time.Duration) GormOption {
	return func(c *gorm.Config) {
		c.Logger = newGormLogger(d)
	}
}

// NewGormRepo connects to PostgreSQL at dsn
func NewGormRepo(ctx context.Context, dsn string, opts ...GormOption) (*GormRepo, error) {
	cfg := &gorm.Config{Logger: newGormLogger(defaultSlowThreshold)}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &GormRepo{db: db}, nil
}

// newGormLogger routes gorm's own logging through logrus
func newGormLogger(slow time.Duration) logger.Interface {
	return logger.New(log.StandardLogger(), logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate creates or updates the schema
func (r *GormRepo) Migrate(ctx context.Context) error {
	err := r.db.WithContext(ctx).AutoMigrate(
		&models.Category{},
		&models.Auction{},
		&models.Bid{},
		&models.UserWallet{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *GormRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed getting database connection: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed close database connection: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func notFound(err, sentinel error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *GormRepo) CreateCategory(ctx context.Context, category models.Category) error {
	if err := r.db.WithContext(ctx).Create(&category).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create category %q: %w", category.Name, biddingerrors.ErrCategoryExists)
		}
		return fmt.Errorf("create category %q: %w", category.Name, err)
	}
	return nil
}

func (r *GormRepo) GetCategory(ctx context.Context, categoryID string) (models.Category, error) {
	var c models.Category
	if err := r.db.WithContext(ctx).Where("category_id = ?", categoryID).First(&c).Error; err != nil {
		return c, notFound(err, biddingerrors.ErrCategoryNotFound, "get category %s", categoryID)
	}
	return c, nil
}

func (r *GormRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	out := []models.Category{}
	if err := r.db.WithContext(ctx).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// DeleteCategory removes the category, its auctions and their bids in one
// transaction. The foreign keys cascade too; deleting explicitly keeps the
// behaviour independent of how the schema was created.
func (r *GormRepo) DeleteCategory(ctx context.Context, categoryID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Category
		if err := forUpdate(tx).Where("category_id = ?", categoryID).First(&c).Error; err != nil {
			return notFound(err, biddingerrors.ErrCategoryNotFound, "delete category %s", categoryID)
		}

		auctionIDs := tx.Model(&models.Auction{}).Select("auction_id").Where("category_id = ?", categoryID)
		if err := tx.Where("auction_id IN (?)", auctionIDs).Delete(&models.Bid{}).Error; err != nil {
			return fmt.Errorf("delete bids of category %s: %w", categoryID, err)
		}
		if err := tx.Where("category_id = ?", categoryID).Delete(&models.Auction{}).Error; err != nil {
			return fmt.Errorf("delete auctions of category %s: %w", categoryID, err)
		}
		if err := tx.Delete(&c).Error; err != nil {
			return fmt.Errorf("delete category %s: %w", categoryID, err)
		}
		return nil
	})
}

func (r *GormRepo) CreateAuction(ctx context.Context, auction models.Auction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Category
		if err := tx.Where("category_id = ?", auction.CategoryID).First(&c).Error; err != nil {
			return notFound(err, biddingerrors.ErrCategoryNotFound, "create auction %s", auction.AuctionID)
		}
		if err := tx.Omit(clause.Associations).Create(&auction).Error; err != nil {
			return fmt.Errorf("create auction %s: %w", auction.AuctionID, err)
		}
		return nil
	})
}

func (r *GormRepo) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	var a models.Auction
	if err := r.db.WithContext(ctx).Where("auction_id = ?", auctionID).First(&a).Error; err != nil {
		return a, notFound(err, biddingerrors.ErrAuctionNotFound, "get auction %s", auctionID)
	}
	return a, nil
}

func (r *GormRepo) UpdateAuction(ctx context.Context, auction models.Auction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Category
		if err := tx.Where("category_id = ?", auction.CategoryID).First(&c).Error; err != nil {
			return notFound(err, biddingerrors.ErrCategoryNotFound, "update auction %s", auction.AuctionID)
		}
		res := tx.Model(&models.Auction{AuctionID: auction.AuctionID}).
			Select("*").
			Omit(clause.Associations, "auction_id").
			Updates(&auction)
		if res.Error != nil {
			return fmt.Errorf("update auction %s: %w", auction.AuctionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("update auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionNotFound)
		}
		return nil
	})
}

func (r *GormRepo) ListAuctions(ctx context.Context, filter models.AuctionFilter) ([]models.Auction, error) {
	q := r.db.WithContext(ctx).Model(&models.Auction{})
	if filter.CategoryID != "" {
		q = q.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Search != nil && *filter.Search != "" {
		like := containsPattern(*filter.Search)
		q = q.Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`, like, like)
	}

	out := []models.Auction{}
	if err := q.Order("creation_date, auction_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern builds a case-insensitive LIKE pattern matching term
// literally anywhere in a column
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

func (r *GormRepo) ListAuctionsByAuctioneer(ctx context.Context, userID string) ([]models.Auction, error) {
	out := []models.Auction{}
	err := r.db.WithContext(ctx).
		Where("auctioneer_id = ?", userID).
		Order("creation_date, auction_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list auctions of %s: %w", userID, err)
	}
	return out, nil
}

func (r *GormRepo) ListDueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error) {
	out := []models.Auction{}
	err := r.db.WithContext(ctx).
		Where("status <> ?", models.StateSettled).
		Where("closing_date <= ? OR stock <= 0 OR status = ?", now, models.StateClosed).
		Order("closing_date").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list due auctions: %w", err)
	}
	return out, nil
}

func (r *GormRepo) MarkClosed(ctx context.Context, auctionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Auction
		if err := forUpdate(tx).Where("auction_id = ?", auctionID).First(&a).Error; err != nil {
			return notFound(err, biddingerrors.ErrAuctionNotFound, "close auction %s", auctionID)
		}
		if a.Status != models.StateOpen {
			return nil
		}
		if err := tx.Model(&a).Update("status", models.StateClosed).Error; err != nil {
			return fmt.Errorf("close auction %s: %w", auctionID, err)
		}
		return nil
	})
}

func (r *GormRepo) CloseWithoutSale(ctx context.Context, auctionID string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Auction
		if err := forUpdate(tx).Where("auction_id = ?", auctionID).First(&a).Error; err != nil {
			return notFound(err, biddingerrors.ErrAuctionNotFound, "close auction %s", auctionID)
		}
		if a.Status == models.StateSettled {
			return fmt.Errorf("close auction %s: %w", auctionID, biddingerrors.ErrAlreadySettled)
		}
		if err := a.Transition(models.StateSettled, at); err != nil {
			return err
		}
		err := tx.Model(&a).Updates(map[string]any{
			"status":     models.StateSettled,
			"settled_at": at,
		}).Error
		if err != nil {
			return fmt.Errorf("close auction %s: %w", auctionID, err)
		}
		return nil
	})
}

func (r *GormRepo) RecordBidForAuction(ctx context.Context, bid models.Bid) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Auction
		if err := forUpdate(tx).Where("auction_id = ?", bid.AuctionID).First(&a).Error; err != nil {
			return notFound(err, biddingerrors.ErrAuctionNotFound, "record bid for auction %s", bid.AuctionID)
		}
		if !a.IsOpenAt(bid.CreatedAt) {
			return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionClosed)
		}

		var top []models.Bid
		err := tx.Where("auction_id = ?", bid.AuctionID).
			Order("amount DESC, created_at ASC").
			Limit(1).
			Find(&top).Error
		if err != nil {
			return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, err)
		}
		if len(top) > 0 && !bid.Amount.GreaterThan(top[0].Amount) {
			return fmt.Errorf("record bid for auction %s: %w - current highest bid is %s",
				bid.AuctionID, biddingerrors.ErrBidTooLow, top[0].Amount.StringFixed(2))
		}

		if err := tx.Omit(clause.Associations).Create(&bid).Error; err != nil {
			return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, err)
		}
		return nil
	})
}

func (r *GormRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	out := []models.Bid{}
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	return out, nil
}

func (r *GormRepo) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	var b models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC, created_at ASC").
		First(&b).Error
	if err != nil {
		return b, notFound(err, biddingerrors.ErrNoBids, "get winning bid for auction %s", auctionID)
	}
	return b, nil
}

func (r *GormRepo) GetBidsByBidder(ctx context.Context, userID string) ([]models.Bid, error) {
	out := []models.Bid{}
	err := r.db.WithContext(ctx).
		Where("bidder_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("get bids of %s: %w", userID, err)
	}
	return out, nil
}

func (r *GormRepo) CountBids(ctx context.Context, auctionID string) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Bid{}).Where("auction_id = ?", auctionID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count bids for auction %s: %w", auctionID, err)
	}
	return int(n), nil
}

func (r *GormRepo) CreateWallet(ctx context.Context, wallet models.UserWallet) error {
	if err := r.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create wallet for user %s: %w", wallet.UserID, biddingerrors.ErrWalletExists)
		}
		return fmt.Errorf("create wallet for user %s: %w", wallet.UserID, err)
	}
	return nil
}

func (r *GormRepo) GetWallet(ctx context.Context, userID string) (models.UserWallet, error) {
	var w models.UserWallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return w, notFound(err, biddingerrors.ErrWalletNotFound, "get wallet for user %s", userID)
	}
	return w, nil
}

func (r *GormRepo) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var next decimal.Decimal
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w models.UserWallet
		if err := forUpdate(tx).Where("user_id = ?", userID).First(&w).Error; err != nil {
			return notFound(err, biddingerrors.ErrWalletNotFound, "adjust balance for user %s", userID)
		}
		next = w.Balance.Add(delta)
		if next.IsNegative() {
			return fmt.Errorf("adjust balance for user %s by %s: %w", userID, delta, biddingerrors.ErrInsufficientFunds)
		}
		if err := tx.Model(&w).Update("balance", next).Error; err != nil {
			return fmt.Errorf("adjust balance for user %s: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// ApplySettlement locks the auction row and both wallet rows, in user id
// order, then moves funds and settles the auction in one transaction.
func (r *GormRepo) ApplySettlement(ctx context.Context, s models.Settlement) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Auction
		if err := forUpdate(tx).Where("auction_id = ?", s.AuctionID).First(&a).Error; err != nil {
			return notFound(err, biddingerrors.ErrAuctionNotFound, "settle auction %s", s.AuctionID)
		}
		if a.Status == models.StateSettled {
			return fmt.Errorf("settle auction %s: %w", s.AuctionID, biddingerrors.ErrAlreadySettled)
		}
		if a.Stock < 1 {
			return fmt.Errorf("settle auction %s: %w", s.AuctionID, biddingerrors.ErrOutOfStock)
		}

		userIDs := []string{s.WinnerID, s.AuctioneerID}
		slices.Sort(userIDs)
		wallets := make(map[string]models.UserWallet, 2)
		for _, id := range userIDs {
			var w models.UserWallet
			if err := forUpdate(tx).Where("user_id = ?", id).First(&w).Error; err != nil {
				return notFound(err, biddingerrors.ErrWalletNotFound, "settle auction %s wallet %s", s.AuctionID, id)
			}
			wallets[id] = w
		}

		winner, seller := wallets[s.WinnerID], wallets[s.AuctioneerID]
		if winner.Balance.LessThan(s.Amount) {
			return fmt.Errorf("settle auction %s winner %s: %w", s.AuctionID, s.WinnerID, biddingerrors.ErrInsufficientFunds)
		}
		if err := a.Transition(models.StateSettled, s.SettledAt); err != nil {
			return err
		}

		if err := tx.Model(&winner).Update("balance", winner.Balance.Sub(s.Amount)).Error; err != nil {
			return fmt.Errorf("debit winner %s: %w", s.WinnerID, err)
		}
		if err := tx.Model(&seller).Update("balance", seller.Balance.Add(s.Amount)).Error; err != nil {
			return fmt.Errorf("credit auctioneer %s: %w", s.AuctioneerID, err)
		}

		err := tx.Model(&a).Updates(map[string]any{
			"stock":          gorm.Expr("stock - 1"),
			"status":         models.StateSettled,
			"winning_bid_id": s.BidID,
			"winner_id":      s.WinnerID,
			"settled_amount": s.Amount,
			"settled_at":     s.SettledAt,
		}).Error
		if err != nil {
			return fmt.Errorf("settle auction %s: %w", s.AuctionID, err)
		}
		return nil
	})
}
