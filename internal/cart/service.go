package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/money"
)

// Service exposes cart operations for buyers and guests.
type Service interface {
	GetOrCreate(ctx context.Context, owner Owner) (*models.Cart, error)
	AddItem(ctx context.Context, cartID, skuID uuid.UUID, qty int) (MutationResult, error)
	UpdateQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (MutationResult, error)
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error)
	Clear(ctx context.Context, cartID uuid.UUID) (int64, error)
	MergeGuest(ctx context.Context, sessionID string, userID uuid.UUID) (*models.Cart, error)
	Summary(ctx context.Context, cartID uuid.UUID) (*Summary, error)
	Validate(ctx context.Context, cartID uuid.UUID) (Validation, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type service struct {
	repo     CartRepository
	tx       txRunner
	userTTL  time.Duration
	guestTTL time.Duration
	now      func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, cfg config.MarketplaceConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		userTTL:  cfg.CartTTLUser,
		guestTTL: cfg.CartTTLGuest,
		now:      time.Now,
	}, nil
}

func (s *service) ttl(owner Owner) time.Duration {
	if owner.IsGuest() {
		return s.guestTTL
	}
	return s.userTTL
}

// GetOrCreate returns the owner's cart, creating it when missing. An expired
// cart is emptied and its expiry renewed.
func (s *service) GetOrCreate(ctx context.Context, owner Owner) (*models.Cart, error) {
	if owner.IsGuest() && owner.SessionID == "" {
		owner.SessionID = uuid.NewString()
	}
	var out *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.getOrCreate(ctx, s.repo.WithTx(tx), owner)
		out = cart
		return err
	})
	return out, err
}

func (s *service) getOrCreate(ctx context.Context, repo CartRepository, owner Owner) (*models.Cart, error) {
	var (
		cart *models.Cart
		err  error
	)
	if owner.IsGuest() {
		cart, err = repo.FindBySession(ctx, owner.SessionID)
	} else {
		cart, err = repo.FindByUser(ctx, *owner.UserID)
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl(owner))

	switch {
	case err == nil:
		if cart.IsExpired(now) {
			if _, err := repo.ClearItems(ctx, cart.ID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear expired cart")
			}
			if err := repo.Touch(ctx, cart.ID, expiresAt); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "renew cart expiry")
			}
			cart.ExpiresAt = expiresAt
		}
		return cart, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	cart = &models.Cart{ExpiresAt: expiresAt}
	if owner.IsGuest() {
		session := owner.SessionID
		cart.SessionID = &session
	} else {
		userID := *owner.UserID
		cart.UserID = &userID
	}
	created, err := repo.Create(ctx, cart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return created, nil
}

func (s *service) AddItem(ctx context.Context, cartID, skuID uuid.UUID, qty int) (MutationResult, error) {
	if qty <= 0 {
		return MutationResult{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	var result MutationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sku, err := repo.FindSku(ctx, skuID)
		if err != nil {
			return notFound(err, "sku not found", "load sku")
		}
		if !sellable(sku) {
			result = MutationResult{Reason: ReasonSkuInactive}
			return nil
		}
		if !sku.HasStock(qty) {
			result = MutationResult{Reason: ReasonInsufficientStock, Available: sku.Available()}
			return nil
		}

		item, err := repo.FindItemBySku(ctx, cartID, skuID)
		switch {
		case err == nil:
			next := item.Quantity + qty
			if !sku.HasStock(next) {
				result = MutationResult{Reason: ReasonInsufficientStock, Available: sku.Available()}
				return nil
			}
			if err := repo.UpdateItem(ctx, item.ID, next, sku.Price); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
			item.Quantity = next
			item.Price = sku.Price
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = &models.CartItem{CartID: cartID, SkuID: skuID, Quantity: qty, Price: sku.Price}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}
		item.Sku = sku
		result = MutationResult{OK: true, Available: sku.Available(), Item: item}
		return nil
	})
	return result, err
}

// UpdateQuantity sets an absolute quantity; zero or less removes the line.
func (s *service) UpdateQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (MutationResult, error) {
	var result MutationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindItem(ctx, cartID, itemID)
		if err != nil {
			return notFound(err, "cart item not found", "load cart item")
		}
		if qty <= 0 {
			if _, err := repo.DeleteItem(ctx, cartID, itemID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
			}
			result = MutationResult{OK: true, Removed: true}
			return nil
		}
		if item.Sku == nil || !sellable(item.Sku) {
			result = MutationResult{Reason: ReasonSkuInactive}
			return nil
		}
		if !item.Sku.HasStock(qty) {
			result = MutationResult{Reason: ReasonInsufficientStock, Available: item.Sku.Available()}
			return nil
		}
		if err := repo.UpdateItem(ctx, item.ID, qty, item.Sku.Price); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		item.Quantity = qty
		item.Price = item.Sku.Price
		result = MutationResult{OK: true, Available: item.Sku.Available(), Item: item}
		return nil
	})
	return result, err
}

func (s *service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error) {
	removed, err := s.repo.DeleteItem(ctx, cartID, itemID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
	}
	return removed > 0, nil
}

func (s *service) Clear(ctx context.Context, cartID uuid.UUID) (int64, error) {
	removed, err := s.repo.ClearItems(ctx, cartID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return removed, nil
}

// MergeGuest folds a guest cart into the user's cart after sign-in. Shared
// SKUs sum their quantities, clamped to the SKU's stock.
func (s *service) MergeGuest(ctx context.Context, sessionID string, userID uuid.UUID) (*models.Cart, error) {
	var out *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		userCart, err := s.getOrCreate(ctx, repo, Owner{UserID: &userID})
		if err != nil {
			return err
		}
		guest, err := repo.FindBySession(ctx, sessionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out = userCart
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
		}
		guest, err = repo.FindWithItems(ctx, guest.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart items")
		}

		for _, item := range guest.Items {
			existing, err := repo.FindItemBySku(ctx, userCart.ID, item.SkuID)
			switch {
			case err == nil:
				merged := existing.Quantity + item.Quantity
				if item.Sku != nil && merged > item.Sku.Stock {
					merged = item.Sku.Stock
				}
				if err := repo.UpdateItem(ctx, existing.ID, merged, existing.Price); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart item")
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := repo.MoveItem(ctx, item.ID, userCart.ID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move cart item")
				}
			default:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
			}
		}
		if err := repo.Delete(ctx, guest.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete guest cart")
		}
		out, err = repo.FindWithItems(ctx, userCart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
		}
		return nil
	})
	return out, err
}

func (s *service) Summary(ctx context.Context, cartID uuid.UUID) (*Summary, error) {
	cart, err := s.repo.FindWithItems(ctx, cartID)
	if err != nil {
		return nil, notFound(err, "cart not found", "load cart")
	}
	summary := Summarize(cart)
	return &summary, nil
}

func (s *service) Validate(ctx context.Context, cartID uuid.UUID) (Validation, error) {
	cart, err := s.repo.FindWithItems(ctx, cartID)
	if err != nil {
		return Validation{}, notFound(err, "cart not found", "load cart")
	}
	return ValidateCart(cart), nil
}

func (s *service) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete expired carts")
	}
	return removed, nil
}

// Summarize groups a loaded cart's lines by vendor in first-seen order.
// Prices are the SKU's current price; missing weights count as zero.
func Summarize(cart *models.Cart) Summary {
	summary := Summary{CartID: cart.ID}
	index := map[uuid.UUID]int{}
	for _, item := range cart.Items {
		if item.Sku == nil || item.Sku.Product == nil {
			continue
		}
		sku := item.Sku
		vendorID := sku.Product.VendorID
		pos, ok := index[vendorID]
		if !ok {
			group := VendorGroup{VendorID: vendorID, Vendor: sku.Product.Vendor}
			if v := sku.Product.Vendor; v != nil {
				group.VendorName = v.ShopName
				group.Couriers = v.Couriers
				if v.OriginCityID != nil {
					group.OriginCityID = *v.OriginCityID
				}
			}
			summary.Vendors = append(summary.Vendors, group)
			pos = len(summary.Vendors) - 1
			index[vendorID] = pos
		}

		line := Line{
			ItemID:      item.ID,
			SkuID:       sku.ID,
			ProductName: sku.Product.Name,
			SkuCode:     sku.SkuCode,
			Price:       sku.Price,
			Quantity:    item.Quantity,
			Subtotal:    money.LineTotal(sku.Price, item.Quantity),
			Weight:      max(sku.Weight, 0),
			Sku:         sku,
		}
		group := &summary.Vendors[pos]
		group.Items = append(group.Items, line)
		group.Subtotal = group.Subtotal.Add(line.Subtotal)
		group.Weight += line.Weight * line.Quantity

		summary.Subtotal = summary.Subtotal.Add(line.Subtotal)
		summary.TotalWeight += line.Weight * line.Quantity
		summary.TotalItems += line.Quantity
	}
	return summary
}

// ValidateCart checks every line is still sellable and covered by available stock.
func ValidateCart(cart *models.Cart) Validation {
	if cart == nil || len(cart.Items) == 0 {
		return Validation{Problems: []Problem{{Reason: ReasonCartEmpty}}}
	}
	var problems []Problem
	for _, item := range cart.Items {
		problem := Problem{SkuID: item.SkuID, Requested: item.Quantity}
		if item.Sku == nil || !sellable(item.Sku) {
			if item.Sku != nil && item.Sku.Product != nil {
				problem.Name = item.Sku.Product.Name
			}
			problem.Reason = ReasonSkuInactive
			problems = append(problems, problem)
			continue
		}
		if item.Sku.Product != nil {
			problem.Name = item.Sku.Product.Name
		}
		if !item.Sku.HasStock(item.Quantity) {
			problem.Reason = ReasonInsufficientStock
			problem.Available = item.Sku.Available()
			problems = append(problems, problem)
		}
	}
	return Validation{Valid: len(problems) == 0, Problems: problems}
}

func sellable(sku *models.Sku) bool {
	if !sku.IsActive {
		return false
	}
	return sku.Product == nil || sku.Product.IsActive
}

func notFound(err error, message, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
