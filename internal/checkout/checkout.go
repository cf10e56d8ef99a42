// Package checkout turns a user's cart into an immutable order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"vibeshop-backend/internal/domain"
	"vibeshop-backend/internal/store"
)

var tracer = otel.Tracer("checkout")

type Cart interface {
	Items(ctx context.Context, userID string) ([]domain.CartItem, error)
	Clear(ctx context.Context, userID string) (int64, error)
}

type Products interface {
	Lookup(ctx context.Context, id string) (domain.Product, bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Orchestrator struct {
	cart       Cart
	products   Products
	orders     store.Collection
	publisher  Publisher
	logger     *slog.Logger
	checkouts  metric.Int64Counter
	orderValue metric.Float64Histogram
}

// NewOrchestrator wires the checkout flow. publisher may be nil, in which
// case no order events are emitted.
func NewOrchestrator(cart Cart, products Products, orders store.Collection, publisher Publisher, logger *slog.Logger) (*Orchestrator, error) {
	meter := otel.Meter("checkout")

	checkouts, err := meter.Int64Counter("shop.checkouts",
		metric.WithDescription("Completed checkouts"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkouts counter: %w", err)
	}

	orderValue, err := meter.Float64Histogram("shop.order.value",
		metric.WithDescription("Order totals"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order value histogram: %w", err)
	}

	return &Orchestrator{
		cart:       cart,
		products:   products,
		orders:     orders,
		publisher:  publisher,
		logger:     logger,
		checkouts:  checkouts,
		orderValue: orderValue,
	}, nil
}

// Checkout snapshots the cart into an order and empties the cart. The order
// is written before the cart is cleared: a failure in between leaves a
// duplicate-prone but complete order rather than a lost one.
func (o *Orchestrator) Checkout(ctx context.Context, user domain.User, req domain.CheckoutRequest) (domain.Receipt, error) {
	ctx, span := tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(attribute.String("user.id", user.ID)))
	defer span.End()

	items, err := o.cart.Items(ctx, user.ID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if len(items) == 0 {
		return domain.Receipt{}, domain.BadRequest("Cart is empty")
	}

	orderItems := make([]domain.OrderItem, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		product, found, err := o.products.Lookup(ctx, item.ProductID)
		if err != nil {
			return domain.Receipt{}, err
		}
		if !found {
			o.logger.Warn("skipping dangling cart item at checkout", "cart_item_id", item.ID, "product_id", item.ProductID)
			continue
		}
		orderItems = append(orderItems, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			Price:       product.Price,
		})
		total = total.Add(domain.Subtotal(product.Price, item.Quantity))
	}

	order := domain.Order{
		ID:            uuid.New().String(),
		UserID:        user.ID,
		Items:         orderItems,
		Total:         domain.Amount(total),
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := o.orders.InsertOne(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Receipt{}, fmt.Errorf("insert order: %w", err)
	}

	if _, err := o.cart.Clear(ctx, user.ID); err != nil {
		o.logger.Error("order stored but cart not cleared", "error", err, "order_id", order.ID, "user_id", user.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Receipt{}, err
	}

	o.checkouts.Add(ctx, 1)
	o.orderValue.Record(ctx, order.Total)
	o.logger.Info("order placed", "order_id", order.ID, "user_id", user.ID, "total", order.Total, "items", len(order.Items))

	o.publish(ctx, order)

	return domain.Receipt{
		OrderID:       order.ID,
		Total:         order.Total,
		Items:         order.Items,
		Timestamp:     order.CreatedAt.Format(time.RFC3339Nano),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
	}, nil
}

func (o *Orchestrator) publish(ctx context.Context, order domain.Order) {
	if o.publisher == nil {
		return
	}

	event := domain.OrderPlacedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Items:     order.Items,
		Total:     order.Total,
		Timestamp: order.CreatedAt,
	}
	if err := o.publisher.Publish(ctx, order.ID, event); err != nil {
		o.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
	}
}

// ListOrders returns the user's orders, newest first.
func (o *Orchestrator) ListOrders(ctx context.Context, user domain.User) ([]domain.Order, error) {
	orders := []domain.Order{}
	if err := o.orders.FindMany(ctx, store.Filter{"user_id": user.ID}, &orders); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (o *Orchestrator) GetOrder(ctx context.Context, user domain.User, id string) (domain.Order, error) {
	var order domain.Order
	if err := o.orders.FindOne(ctx, store.Filter{"id": id, "user_id": user.ID}, &order); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, domain.NotFound("Order not found")
		}
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return order, nil
}
