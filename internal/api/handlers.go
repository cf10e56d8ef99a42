package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"vibeshop-backend/internal/domain"
)

type Accounts interface {
	Register(ctx context.Context, email, password, name string) (domain.TokenResponse, error)
	Login(ctx context.Context, email, password string) (domain.TokenResponse, error)
}

type Identity interface {
	Resolve(ctx context.Context, authorization string) (domain.User, error)
}

type Catalog interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (domain.Product, error)
}

type Cart interface {
	Add(ctx context.Context, user domain.User, productID string, quantity int) (string, bool, error)
	Get(ctx context.Context, user domain.User) (domain.CartResponse, error)
	Update(ctx context.Context, user domain.User, itemID string, quantity int) error
	Remove(ctx context.Context, user domain.User, itemID string) error
	Clear(ctx context.Context, userID string) (int64, error)
}

type Orders interface {
	Checkout(ctx context.Context, user domain.User, req domain.CheckoutRequest) (domain.Receipt, error)
	ListOrders(ctx context.Context, user domain.User) ([]domain.Order, error)
	GetOrder(ctx context.Context, user domain.User, id string) (domain.Order, error)
}

type Handler struct {
	accounts Accounts
	identity Identity
	catalog  Catalog
	cart     Cart
	orders   Orders
	logger   *slog.Logger
}

func NewHandler(accounts Accounts, identity Identity, catalog Catalog, cart Cart, orders Orders, logger *slog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		identity: identity,
		catalog:  catalog,
		cart:     cart,
		orders:   orders,
		logger:   logger,
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		c.AbortWithStatusJSON(statusFor(de.Code), gin.H{"error": de.Message})
		return
	}
	h.logger.Error("request failed", "error", err, "method", c.Request.Method, "path", c.Request.URL.Path)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeBadRequest:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func invalidInput(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
}

// ----- Auth -----

func (h *Handler) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c)
		return
	}
	resp, err := h.accounts.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c)
		return
	}
	resp, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c).Response())
}

// ----- Products -----

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// ----- Cart -----

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.cart.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) addToCart(c *gin.Context) {
	var req struct {
		ProductID string `json:"product_id" binding:"required"`
		Quantity  *int   `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	id, merged, err := h.cart.Add(c.Request.Context(), currentUser(c), req.ProductID, quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	message := "Added to cart"
	if merged {
		message = "Cart updated"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "cart_item_id": id})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req struct {
		Quantity *int `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c)
		return
	}
	if err := h.cart.Update(c.Request.Context(), currentUser(c), c.Param("id"), *req.Quantity); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart item updated"})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	if err := h.cart.Remove(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart"})
}

func (h *Handler) clearCart(c *gin.Context) {
	removed, err := h.cart.Clear(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared", "removed": removed})
}

// ----- Orders -----

func (h *Handler) checkout(c *gin.Context) {
	var req domain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c)
		return
	}
	receipt, err := h.orders.Checkout(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
