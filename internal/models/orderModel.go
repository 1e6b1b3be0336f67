package models

// OrderStatus mirrors the exchange order lifecycle.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// OrderType is the exchange order type. Only market orders are placed by
// the lifecycle; the type is kept explicit for the journal.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderRequest is a request submitted through the gateway.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Quantity   float64
	Price      float64 // limit orders only
	ReduceOnly bool
}

// Order is the exchange's response view of an order.
type Order struct {
	OrderID     int64
	Symbol      string
	Side        Side
	Type        OrderType
	Quantity    float64
	Status      OrderStatus
	AvgPrice    float64
	ExecutedQty float64
}

// SymbolConstraints are the exchange trading filters for one symbol,
// fetched once per session and treated as immutable.
type SymbolConstraints struct {
	Symbol      string
	MinQty      float64
	MaxQty      float64
	StepSize    float64
	MinPrice    float64
	MaxPrice    float64
	TickSize    float64
	MinNotional float64
}

// ExchangePosition is one row of the exchange's authoritative position
// list, before normalization into a Position.
type ExchangePosition struct {
	Symbol        string
	SignedAmount  float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      int
}

// AccountState is the subset of the futures account the bot needs.
type AccountState struct {
	TotalWalletBalance float64
	AvailableBalance   float64
}

// Income is one futures income history record (funding, commission, pnl).
type Income struct {
	Symbol     string
	IncomeType string
	Income     float64
	Asset      string
	Time       int64
}
