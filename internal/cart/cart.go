// Package cart owns a user's pending cart items: merge-on-add, ownership
// checked updates and removals, and the priced view of the cart.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"vibeshop-backend/internal/domain"
	"vibeshop-backend/internal/store"
)

var tracer = otel.Tracer("cart")

type Products interface {
	Get(ctx context.Context, id string) (domain.Product, error)
	Lookup(ctx context.Context, id string) (domain.Product, bool, error)
}

type Engine struct {
	items     store.Collection
	products  Products
	logger    *slog.Logger
	additions metric.Int64Counter
}

func NewEngine(items store.Collection, products Products, logger *slog.Logger) (*Engine, error) {
	additions, err := otel.Meter("cart").Int64Counter("shop.cart.additions",
		metric.WithDescription("Units added to carts"),
	)
	if err != nil {
		return nil, fmt.Errorf("create additions counter: %w", err)
	}

	return &Engine{
		items:     items,
		products:  products,
		logger:    logger,
		additions: additions,
	}, nil
}

func ownedBy(userID, itemID string) store.Filter {
	return store.Filter{"id": itemID, "user_id": userID}
}

// Add puts quantity units of a product in the user's cart. An existing item
// for the same product absorbs the quantity instead of a second item being
// created, and merged reports that case. Concurrent adds for the same item
// may lose an increment.
func (e *Engine) Add(ctx context.Context, user domain.User, productID string, quantity int) (id string, merged bool, err error) {
	ctx, span := tracer.Start(ctx, "cart.Add", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("product.id", productID),
	))
	defer span.End()

	if quantity <= 0 {
		return "", false, domain.BadRequest("Quantity must be greater than 0")
	}
	if _, err := e.products.Get(ctx, productID); err != nil {
		return "", false, err
	}

	var existing domain.CartItem
	err = e.items.FindOne(ctx, store.Filter{"user_id": user.ID, "product_id": productID}, &existing)
	switch {
	case err == nil:
		if quantity > math.MaxInt-existing.Quantity {
			return "", false, domain.BadRequest("Quantity too large")
		}
		if _, err := e.items.UpdateOne(ctx, ownedBy(user.ID, existing.ID), map[string]any{
			"quantity": existing.Quantity + quantity,
		}); err != nil {
			return "", false, fmt.Errorf("update cart item: %w", err)
		}
		e.additions.Add(ctx, int64(quantity))
		e.logger.Info("cart updated", "user_id", user.ID, "cart_item_id", existing.ID, "quantity", existing.Quantity+quantity)
		return existing.ID, true, nil

	case errors.Is(err, store.ErrNotFound):
		item := domain.CartItem{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			ProductID: productID,
			Quantity:  quantity,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.items.InsertOne(ctx, item); err != nil {
			return "", false, fmt.Errorf("insert cart item: %w", err)
		}
		e.additions.Add(ctx, int64(quantity))
		e.logger.Info("added to cart", "user_id", user.ID, "cart_item_id", item.ID, "quantity", quantity)
		return item.ID, false, nil

	default:
		return "", false, fmt.Errorf("load cart item: %w", err)
	}
}

// Items returns the user's raw cart items.
func (e *Engine) Items(ctx context.Context, userID string) ([]domain.CartItem, error) {
	var items []domain.CartItem
	if err := e.items.FindMany(ctx, store.Filter{"user_id": userID}, &items); err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	return items, nil
}

// Get prices the cart. Items whose product no longer exists are left out of
// both the listing and the total.
func (e *Engine) Get(ctx context.Context, user domain.User) (domain.CartResponse, error) {
	ctx, span := tracer.Start(ctx, "cart.Get", trace.WithAttributes(attribute.String("user.id", user.ID)))
	defer span.End()

	items, err := e.Items(ctx, user.ID)
	if err != nil {
		return domain.CartResponse{}, err
	}

	resp := domain.CartResponse{Items: []domain.CartLine{}}
	total := decimal.Zero
	for _, item := range items {
		product, found, err := e.products.Lookup(ctx, item.ProductID)
		if err != nil {
			return domain.CartResponse{}, err
		}
		if !found {
			e.logger.Debug("skipping dangling cart item", "cart_item_id", item.ID, "product_id", item.ProductID)
			continue
		}
		resp.Items = append(resp.Items, domain.CartLine{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Product:   product,
		})
		total = total.Add(domain.Subtotal(product.Price, item.Quantity))
	}

	resp.Total = domain.Amount(total)
	return resp, nil
}

// Update sets an item's quantity. Items owned by other users are reported
// as missing.
func (e *Engine) Update(ctx context.Context, user domain.User, itemID string, quantity int) error {
	ctx, span := tracer.Start(ctx, "cart.Update", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("cart_item.id", itemID),
	))
	defer span.End()

	var item domain.CartItem
	if err := e.items.FindOne(ctx, ownedBy(user.ID, itemID), &item); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound("Cart item not found")
		}
		return fmt.Errorf("load cart item: %w", err)
	}

	if quantity <= 0 {
		return domain.BadRequest("Quantity must be greater than 0")
	}

	matched, err := e.items.UpdateOne(ctx, ownedBy(user.ID, itemID), map[string]any{"quantity": quantity})
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if !matched {
		return domain.NotFound("Cart item not found")
	}

	e.logger.Info("cart item updated", "user_id", user.ID, "cart_item_id", itemID, "quantity", quantity)
	return nil
}

func (e *Engine) Remove(ctx context.Context, user domain.User, itemID string) error {
	ctx, span := tracer.Start(ctx, "cart.Remove", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("cart_item.id", itemID),
	))
	defer span.End()

	deleted, err := e.items.DeleteOne(ctx, ownedBy(user.ID, itemID))
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if !deleted {
		return domain.NotFound("Cart item not found")
	}

	e.logger.Info("item removed from cart", "user_id", user.ID, "cart_item_id", itemID)
	return nil
}

// Clear empties the user's cart and returns how many items were removed.
func (e *Engine) Clear(ctx context.Context, userID string) (int64, error) {
	removed, err := e.items.DeleteMany(ctx, store.Filter{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return removed, nil
}
