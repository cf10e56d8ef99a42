package domain

import "time"

type User struct {
	ID           string    `bson:"id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	Name         string    `bson:"name" json:"name"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

type Product struct {
	ID          string  `bson:"id" json:"id"`
	Name        string  `bson:"name" json:"name"`
	Description string  `bson:"description" json:"description"`
	Price       float64 `bson:"price" json:"price"`
	Category    string  `bson:"category" json:"category"`
	ImageURL    string  `bson:"image_url" json:"image_url"`
}

type CartItem struct {
	ID        string    `bson:"id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	ProductID string    `bson:"product_id" json:"product_id"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// OrderItem is a snapshot of a product taken at checkout; later catalog
// changes never reach it.
type OrderItem struct {
	ProductID   string  `bson:"product_id" json:"product_id"`
	ProductName string  `bson:"product_name" json:"product_name"`
	Quantity    int     `bson:"quantity" json:"quantity"`
	Price       float64 `bson:"price" json:"price"`
}

type Order struct {
	ID            string      `bson:"id" json:"id"`
	UserID        string      `bson:"user_id" json:"user_id"`
	Items         []OrderItem `bson:"items" json:"items"`
	Total         float64     `bson:"total" json:"total"`
	CustomerName  string      `bson:"customer_name" json:"customer_name"`
	CustomerEmail string      `bson:"customer_email" json:"customer_email"`
	CreatedAt     time.Time   `bson:"created_at" json:"created_at"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (u User) Response() UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        UserResponse `json:"user"`
}

type CartLine struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

type CartResponse struct {
	Items []CartLine `json:"items"`
	Total float64    `json:"total"`
}

type CheckoutRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type Receipt struct {
	OrderID       string      `json:"order_id"`
	Total         float64     `json:"total"`
	Items         []OrderItem `json:"items"`
	Timestamp     string      `json:"timestamp"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
}
