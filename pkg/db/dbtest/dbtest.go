// Package dbtest opens isolated sqlite databases carrying the marketplace
// schema, plus seed helpers shared by service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// AllModels lists every table the marketplace services touch.
func AllModels() []any {
	return []any{
		&models.Category{},
		&models.Vendor{},
		&models.Product{},
		&models.Sku{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusHistory{},
		&models.Payment{},
		&models.VendorPayout{},
		&models.PayoutItem{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// New opens a fresh in-memory database. The pool is capped at one connection
// so concurrent transactions serialize the way row locks serialize them in
// postgres.
func New(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

func D(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func DP(value string) *decimal.Decimal {
	d := D(value)
	return &d
}

type Fixture struct {
	Category models.Category
	Vendor   models.Vendor
	Product  models.Product
	Sku      models.Sku
}

// SeedVendor inserts an approved vendor with bank details.
func SeedVendor(t *testing.T, db *gorm.DB, mutate ...func(*models.Vendor)) models.Vendor {
	t.Helper()
	bank, account, holder := "BCA", "1234567890", "Toko Maju"
	id := uuid.New()
	vendor := models.Vendor{
		ID:                id,
		UserID:            uuid.New(),
		ShopName:          "Toko " + id.String()[:8],
		Slug:              "toko-" + id.String(),
		Status:            enums.VendorStatusApproved,
		Balance:           decimal.Zero,
		TotalEarnings:     decimal.Zero,
		BankName:          &bank,
		BankAccountNumber: &account,
		BankAccountName:   &holder,
	}
	for _, fn := range mutate {
		fn(&vendor)
	}
	if err := db.Create(&vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	return vendor
}

func SeedCategory(t *testing.T, db *gorm.DB, rate *decimal.Decimal) models.Category {
	t.Helper()
	id := uuid.New()
	category := models.Category{
		ID:             id,
		Name:           "Category " + id.String()[:8],
		Slug:           "category-" + id.String(),
		CommissionRate: rate,
		IsActive:       true,
	}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return category
}

// SeedSku inserts an active product and SKU for vendor with the given price
// and stock.
func SeedSku(t *testing.T, db *gorm.DB, vendor models.Vendor, category models.Category, price string, stock int) models.Sku {
	t.Helper()
	productID := uuid.New()
	product := models.Product{
		ID:         productID,
		VendorID:   vendor.ID,
		CategoryID: category.ID,
		Name:       "Product " + productID.String()[:8],
		Slug:       "product-" + productID.String(),
		IsActive:   true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	skuID := uuid.New()
	sku := models.Sku{
		ID:                skuID,
		ProductID:         product.ID,
		SkuCode:           "SKU-" + skuID.String()[:8],
		Price:             D(price),
		Stock:             stock,
		LowStockThreshold: 10,
		Weight:            500,
		IsActive:          true,
	}
	if err := db.Create(&sku).Error; err != nil {
		t.Fatalf("seed sku: %v", err)
	}
	sku.Product = &product
	return sku
}

// Seed creates a category, vendor, product and sku in one call.
func Seed(t *testing.T, db *gorm.DB, price string, stock int) Fixture {
	t.Helper()
	category := SeedCategory(t, db, nil)
	vendor := SeedVendor(t, db)
	sku := SeedSku(t, db, vendor, category, price, stock)
	return Fixture{Category: category, Vendor: vendor, Product: *sku.Product, Sku: sku}
}

// LoadSku reloads a SKU row.
func LoadSku(t *testing.T, db *gorm.DB, id uuid.UUID) models.Sku {
	t.Helper()
	var sku models.Sku
	if err := db.First(&sku, "id = ?", id).Error; err != nil {
		t.Fatalf("load sku: %v", err)
	}
	return sku
}

func LoadVendor(t *testing.T, db *gorm.DB, id uuid.UUID) models.Vendor {
	t.Helper()
	var vendor models.Vendor
	if err := db.First(&vendor, "id = ?", id).Error; err != nil {
		t.Fatalf("load vendor: %v", err)
	}
	return vendor
}
