package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/festpos/internal/cart"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/logger"
)

type cachedProduct struct {
	ID       string `gorm:"column:id;primaryKey"`
	Position int    `gorm:"column:position;not null"`
	Name     string `gorm:"column:name;not null"`
	Price    int64  `gorm:"column:price;not null"`
	Order    *int   `gorm:"column:display_order"`
}

func (cachedProduct) TableName() string { return "cached_products" }

// CachedCatalog keeps the last catalog the API served in the register's local
// database and falls back to it while the API is unreachable, so a register
// restarted offline can still sell.
type CachedCatalog struct {
	src  Catalog
	db   *gorm.DB
	logg *logger.Logger
}

func NewCachedCatalog(ctx context.Context, src Catalog, local *db.Client, logg *logger.Logger) (*CachedCatalog, error) {
	if src == nil {
		return nil, errors.New("catalog source is required")
	}
	if local == nil {
		return nil, errors.New("local database is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	conn := local.DB()
	if err := conn.WithContext(ctx).AutoMigrate(&cachedProduct{}); err != nil {
		return nil, fmt.Errorf("migrate catalog cache: %w", err)
	}
	return &CachedCatalog{src: src, db: conn, logg: logg}, nil
}

// ListProducts returns the live catalog and refreshes the cache. When the
// source fails it serves the cached copy; an empty cache returns the source
// error.
func (c *CachedCatalog) ListProducts(ctx context.Context) ([]cart.Product, error) {
	products, err := c.src.ListProducts(ctx)
	if err == nil {
		if saveErr := c.save(ctx, products); saveErr != nil {
			c.logg.Error(ctx, "catalog cache write failed", saveErr)
		}
		return products, nil
	}

	cached, loadErr := c.load(ctx)
	if loadErr != nil {
		return nil, multierr.Append(err, loadErr)
	}
	if len(cached) == 0 {
		return nil, err
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{"error": err.Error(), "products": len(cached)})
	c.logg.Warn(logCtx, "catalog unavailable, serving cached copy")
	return cached, nil
}

func (c *CachedCatalog) save(ctx context.Context, products []cart.Product) error {
	rows := make([]cachedProduct, 0, len(products))
	for i, p := range products {
		rows = append(rows, cachedProduct{ID: p.ID, Position: i, Name: p.Name, Price: p.Price, Order: p.Order})
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&cachedProduct{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (c *CachedCatalog) load(ctx context.Context) ([]cart.Product, error) {
	var rows []cachedProduct
	if err := c.db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	products := make([]cart.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, cart.Product{ID: r.ID, Name: r.Name, Price: r.Price, Order: r.Order})
	}
	return products, nil
}
