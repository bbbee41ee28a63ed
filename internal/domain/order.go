package domain

import (
	"strings"
	"time"
)

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// ShippingStatus is the fulfilment state of an order.
type ShippingStatus string

const (
	ShippingProcessing           ShippingStatus = "PROCESSING"
	ShippingPreparingForShipment ShippingStatus = "PREPARING_FOR_SHIPMENT"
	ShippingInTransit            ShippingStatus = "IN_TRANSIT"
	ShippingDelivered            ShippingStatus = "DELIVERED"
	ShippingCollected            ShippingStatus = "COLLECTED"
	ShippingCancelled            ShippingStatus = "CANCELLED"
	ShippingDeliveryFailed       ShippingStatus = "DELIVERY_FAILED"
)

// ParseShippingStatus normalises a client supplied status.
func ParseShippingStatus(raw string) (ShippingStatus, bool) {
	status := ShippingStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case ShippingProcessing, ShippingPreparingForShipment, ShippingInTransit, ShippingDelivered,
		ShippingCollected, ShippingCancelled, ShippingDeliveryFailed:
		return status, true
	default:
		return "", false
	}
}

// Delivery method tags.
const (
	DeliveryStandard = "Standard Delivery"
	DeliveryPriority = "Priority Delivery"
	DeliveryPickup   = "Pickup Delivery"
)

// Payment method tags.
const (
	PaymentMethodCOD  = "Cash on delivery (COD)"
	PaymentMethodMaya = "Maya"
	PaymentMethodCard = "Credit/Debit Card"
)

// IsPickup reports whether the delivery method is store pickup.
func IsPickup(method string) bool {
	return strings.EqualFold(strings.TrimSpace(method), DeliveryPickup)
}

// IsPriority reports whether the delivery method is the expedited tier.
func IsPriority(method string) bool {
	return strings.EqualFold(strings.TrimSpace(method), DeliveryPriority)
}

// IsCashOnDelivery reports whether the payment method settles on delivery or pickup.
func IsCashOnDelivery(method string) bool {
	return strings.Contains(strings.ToUpper(method), "COD")
}

// Order is a placed order. Amounts are fixed at creation and never recomputed.
type Order struct {
	ID                   string
	AccountID            string
	AddressID            string
	PaymentStatus        PaymentStatus
	ShippingStatus       ShippingStatus
	DeliveryMethod       string
	PaymentMethod        string
	Subtotal             int64
	ShippingFee          int64
	DiscountAmount       int64
	TotalPrice           int64
	VoucherCode          string
	PaymentTransactionID string
	AwaitingPayment      bool
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Lines   []OrderLine
	History []OrderHistoryEntry
	Pickup  *PickupAssignment
}

// OrderLine is a product snapshot on an order.
type OrderLine struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
}

// LineTotal is UnitPrice × Quantity.
func (l OrderLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// OrderHistoryEntry is an append-only status log row.
type OrderHistoryEntry struct {
	ID        string
	OrderID   string
	Status    string
	Note      string
	CreatedAt time.Time
}

// PickupAssignment links a pickup order to a store.
type PickupAssignment struct {
	OrderID    string
	StoreID    string
	StoreName  string
	AssignedAt time.Time
}
