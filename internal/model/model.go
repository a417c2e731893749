// Package model содержит доменные сущности маркетплейса.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет зарегистрированного покупателя.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Shop описывает магазин на площадке.
type Shop struct {
	ID          int64
	Name        string
	Description string
	Slug        string
	Phone       string
	Email       string
}

// Product описывает карточку товара.
type Product struct {
	ID             int64
	Model          string
	Description    string
	Slug           string
	Code           string
	Manufacturer   string
	IsActive       bool
	LimitedEdition bool
	CreatedAt      time.Time
}

// ProductOnShop описывает предложение товара в конкретном магазине.
type ProductOnShop struct {
	ID        int64
	ShopID    int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
	ForSale   bool
}

// DiscountType описывает тип скидки и её вес при выборе приоритетной.
type DiscountType struct {
	ID       int64
	Name     string
	Weight   int
	IsActive bool
}

// Discount описывает скидку на товар. Процентная и фиксированная части
// взаимоисключающие: заполнена либо Percent, либо Value.
type Discount struct {
	ID        int64
	Name      string
	Slug      string
	Type      DiscountType
	DateStart *time.Time
	DateEnd   time.Time
	IsActive  bool
	Percent   *decimal.Decimal
	Value     *decimal.Decimal
}

// Tag описывает тег товара.
type Tag struct {
	ID        int64
	Name      string
	ProductID int64
	IsActive  bool
}

// Review описывает отзыв пользователя о товаре.
type Review struct {
	ID        int64
	ProductID int64
	UserID    int64
	Text      string
	IsActive  bool
	CreatedAt time.Time
}

// CartStatus описывает статус корзины.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusCompleted CartStatus = "completed"
)

// Cart описывает корзину покупателя с денормализованными итогами.
type Cart struct {
	ID         int64
	UserID     int64
	Quantity   int
	TotalPrice decimal.Decimal
	Status     CartStatus
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
)

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodOther  PaymentMethod = "other"
)

// Address содержит адрес доставки заказа.
type Address struct {
	Country   string `json:"country"`
	Locality  string `json:"locality"`
	Street    string `json:"street"`
	House     string `json:"house"`
	Apartment string `json:"apartment"`
	Entrance  string `json:"entrance"`
	Floor     string `json:"floor"`
}

// Order описывает один проход оформления заказа, привязанный к корзине.
type Order struct {
	ID            int64
	CartID        int64
	DeliveryID    *int64
	PaymentMethod PaymentMethod
	Status        OrderStatus
	Address       Address
	TotalPrice    decimal.Decimal
	CreatedAt     time.Time
}

// DeliveryKind описывает тип доставки.
type DeliveryKind string

const (
	DeliveryStandard DeliveryKind = "standard"
	DeliveryExpress  DeliveryKind = "express"
)

// Delivery описывает вариант доставки и порог бесплатной доставки.
type Delivery struct {
	ID            int64
	Kind          DeliveryKind
	Price         decimal.Decimal
	ExpressPrice  decimal.Decimal
	FreeThreshold decimal.Decimal
}

// Payment описывает зафиксированный результат оплаты заказа.
type Payment struct {
	ID        int64
	OrderID   int64
	Price     decimal.Decimal
	Proven    bool
	CreatedAt time.Time
}

// ImportJobStatus описывает статус фоновой задачи импорта.
type ImportJobStatus string

const (
	ImportJobDryRunFinished ImportJobStatus = "dry_run_finished"
	ImportJobRunning        ImportJobStatus = "running"
	ImportJobFinished       ImportJobStatus = "finished"
	ImportJobFailed         ImportJobStatus = "failed"
)

// ImportJob описывает задачу массового импорта цен.
type ImportJob struct {
	ID      int64
	Status  ImportJobStatus
	Payload []byte
	Errors  string
}
