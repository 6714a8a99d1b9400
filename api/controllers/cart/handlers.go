package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-core/api/middleware"
	"github.com/angelmondragon/marketplace-core/api/responses"
	"github.com/angelmondragon/marketplace-core/api/validators"
	cartsvc "github.com/angelmondragon/marketplace-core/internal/cart"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

type Service interface {
	GetOrCreate(ctx context.Context, owner cartsvc.Owner) (*models.Cart, error)
	AddItem(ctx context.Context, cartID, skuID uuid.UUID, qty int) (cartsvc.MutationResult, error)
	UpdateQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (cartsvc.MutationResult, error)
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error)
	MergeGuest(ctx context.Context, sessionID string, userID uuid.UUID) (*models.Cart, error)
	Summary(ctx context.Context, cartID uuid.UUID) (*cartsvc.Summary, error)
	Validate(ctx context.Context, cartID uuid.UUID) (cartsvc.Validation, error)
}

// CartFetch returns the caller's cart grouped by vendor plus its checkout validation.
func CartFetch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cart, ok := resolveCart(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := buildView(r.Context(), svc, cart.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartAddItem adds quantity of a SKU to the caller's cart.
func CartAddItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, ok := resolveCart(w, r, svc, logg)
		if !ok {
			return
		}
		result, err := svc.AddItem(r.Context(), cart.ID, req.SkuID, req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeMutation(w, r, svc, logg, cart.ID, result, http.StatusCreated)
	}
}

// CartUpdateItem sets the absolute quantity of a cart line; zero removes it.
func CartUpdateItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, ok := resolveCart(w, r, svc, logg)
		if !ok {
			return
		}
		result, err := svc.UpdateQuantity(r.Context(), cart.ID, itemID, *req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeMutation(w, r, svc, logg, cart.ID, result, http.StatusOK)
	}
}

// CartRemoveItem deletes a cart line.
func CartRemoveItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, ok := resolveCart(w, r, svc, logg)
		if !ok {
			return
		}
		removed, err := svc.RemoveItem(r.Context(), cart.ID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !removed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found"))
			return
		}
		view, err := buildView(r.Context(), svc, cart.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartMerge folds a guest session cart into the caller's cart.
func CartMerge(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		var req mergeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID := validators.CleanText(req.SessionID, 128)
		cart, err := svc.MergeGuest(r.Context(), sessionID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := buildView(r.Context(), svc, cart.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func resolveCart(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (*models.Cart, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return nil, false
	}
	userID, _, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return nil, false
	}
	cart, err := svc.GetOrCreate(r.Context(), cartsvc.Owner{UserID: &userID})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return cart, true
}

func buildView(ctx context.Context, svc Service, cartID uuid.UUID) (cartView, error) {
	summary, err := svc.Summary(ctx, cartID)
	if err != nil {
		return cartView{}, err
	}
	validation, err := svc.Validate(ctx, cartID)
	if err != nil {
		return cartView{}, err
	}
	return cartView{Summary: summary, Validation: validation}, nil
}

func writeMutation(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger, cartID uuid.UUID, result cartsvc.MutationResult, status int) {
	if !result.OK {
		code := pkgerrors.CodeValidation
		if result.Reason == cartsvc.ReasonInsufficientStock {
			code = pkgerrors.CodeInsufficientStock
		}
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(code, result.Reason).WithDetails(map[string]any{
			"reason":    result.Reason,
			"available": result.Available,
		}))
		return
	}
	view, err := buildView(r.Context(), svc, cartID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	view.Mutation = &mutationView{Available: result.Available, Removed: result.Removed}
	if result.Item != nil {
		view.Mutation.ItemID = &result.Item.ID
		view.Mutation.Quantity = result.Item.Quantity
	}
	responses.WriteSuccessStatus(w, status, view)
}
