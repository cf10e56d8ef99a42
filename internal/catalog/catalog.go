package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"vibeshop-backend/internal/domain"
	"vibeshop-backend/internal/store"
)

type Catalog struct {
	products store.Collection
	logger   *slog.Logger
}

func New(products store.Collection, logger *slog.Logger) *Catalog {
	return &Catalog{products: products, logger: logger}
}

func (c *Catalog) List(ctx context.Context) ([]domain.Product, error) {
	products := []domain.Product{}
	if err := c.products.FindMany(ctx, store.Filter{}, &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	if err := c.products.FindOne(ctx, store.Filter{"id": id}, &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, domain.NotFound("Product not found")
		}
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// Lookup is Get without the domain error: found is false for unknown ids.
func (c *Catalog) Lookup(ctx context.Context, id string) (p domain.Product, found bool, err error) {
	p, err = c.Get(ctx, id)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, err
	}
	return p, true, nil
}

// Seed inserts the default products when the collection is empty and
// returns how many were inserted.
func (c *Catalog) Seed(ctx context.Context) (int, error) {
	n, err := c.products.Count(ctx, store.Filter{})
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	defaults := DefaultProducts()
	docs := make([]any, 0, len(defaults))
	for _, p := range defaults {
		docs = append(docs, p)
	}
	if err := c.products.InsertMany(ctx, docs); err != nil {
		return 0, fmt.Errorf("seed products: %w", err)
	}

	c.logger.Info("initialized products collection", "count", len(docs))
	return len(docs), nil
}

func DefaultProducts() []domain.Product {
	products := []domain.Product{
		{
			Name:        "Wireless Headphones",
			Description: "Premium wireless headphones with noise cancellation",
			Price:       79.99,
			Category:    "Electronics",
			ImageURL:    "https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=500&q=80",
		},
		{
			Name:        "Smart Watch",
			Description: "Fitness tracker with heart rate monitor",
			Price:       199.99,
			Category:    "Electronics",
			ImageURL:    "https://images.unsplash.com/photo-1523275335684-37898b6baf30?w=500&q=80",
		},
		{
			Name:        "Coffee Maker",
			Description: "Automatic drip coffee maker with timer",
			Price:       89.99,
			Category:    "Home",
			ImageURL:    "https://images.unsplash.com/photo-1517668808822-9ebb02f2a0e6?w=500&q=80",
		},
		{
			Name:        "Yoga Mat",
			Description: "Non-slip exercise mat for yoga and fitness",
			Price:       29.99,
			Category:    "Sports",
			ImageURL:    "https://images.unsplash.com/photo-1601925260368-ae2f83cf8b7f?w=500&q=80",
		},
		{
			Name:        "Bluetooth Speaker",
			Description: "Portable waterproof speaker with 12hr battery",
			Price:       49.99,
			Category:    "Electronics",
			ImageURL:    "https://images.unsplash.com/photo-1608043152269-423dbba4e7e1?w=500&q=80",
		},
		{
			Name:        "Running Shoes",
			Description: "Lightweight running shoes with cushioned sole",
			Price:       119.99,
			Category:    "Sports",
			ImageURL:    "https://images.unsplash.com/photo-1542291026-7eec264c27ff?w=500&q=80",
		},
		{
			Name:        "Laptop Stand",
			Description: "Ergonomic adjustable aluminum laptop stand",
			Price:       39.99,
			Category:    "Electronics",
			ImageURL:    "https://images.unsplash.com/photo-1527864550417-7fd91fc51a46?w=500&q=80",
		},
		{
			Name:        "Water Bottle",
			Description: "Insulated stainless steel water bottle 32oz",
			Price:       24.99,
			Category:    "Sports",
			ImageURL:    "https://images.unsplash.com/photo-1602143407151-7111542de6e8?w=500&q=80",
		},
	}
	for i := range products {
		products[i].ID = uuid.New().String()
	}
	return products
}
