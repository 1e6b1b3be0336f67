package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"MarginTradeBot/internal/models"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
)

// api is the raw exchange surface behind the gateway's budget and
// classification. Exists so gateway tests can stub the transport.
type api interface {
	serverTime(ctx context.Context) (int64, error)
	account(ctx context.Context) (models.AccountState, error)
	positions(ctx context.Context) ([]models.ExchangePosition, error)
	symbolConstraints(ctx context.Context, symbol string) (models.SymbolConstraints, error)
	tickerPrice(ctx context.Context, symbol string) (float64, error)
	placeOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
	getOrder(ctx context.Context, symbol string, orderID int64) (models.Order, error)
	cancelOrder(ctx context.Context, symbol string, orderID int64) error
	changeLeverage(ctx context.Context, symbol string, leverage int) error
	incomeHistory(ctx context.Context, symbol string, limit int64) ([]models.Income, error)
	klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

type binanceAPI struct {
	client *futures.Client
}

func newBinanceAPI(apiKey, secretKey string, testnet bool) *binanceAPI {
	futures.UseTestnet = testnet
	client := futures.NewClient(apiKey, secretKey)
	client.HTTPClient = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return &binanceAPI{client: client}
}

func (b *binanceAPI) serverTime(ctx context.Context) (int64, error) {
	return b.client.NewServerTimeService().Do(ctx)
}

func (b *binanceAPI) account(ctx context.Context) (models.AccountState, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return models.AccountState{}, err
	}
	return models.AccountState{
		TotalWalletBalance: parseF(acct.TotalWalletBalance),
		AvailableBalance:   parseF(acct.AvailableBalance),
	}, nil
}

func (b *binanceAPI) positions(ctx context.Context) ([]models.ExchangePosition, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.ExchangePosition, 0, len(risks))
	for _, r := range risks {
		amt := parseF(r.PositionAmt)
		if amt == 0 {
			continue
		}
		out = append(out, models.ExchangePosition{
			Symbol:        models.NormalizeSymbol(r.Symbol),
			SignedAmount:  amt,
			EntryPrice:    parseF(r.EntryPrice),
			MarkPrice:     parseF(r.MarkPrice),
			UnrealizedPnL: parseF(r.UnRealizedProfit),
			Leverage:      int(parseF(r.Leverage)),
		})
	}
	return out, nil
}

func (b *binanceAPI) symbolConstraints(ctx context.Context, symbol string) (models.SymbolConstraints, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return models.SymbolConstraints{}, err
	}
	for _, s := range info.Symbols {
		if models.NormalizeSymbol(s.Symbol) != symbol {
			continue
		}
		c := models.SymbolConstraints{Symbol: symbol}
		if f := s.LotSizeFilter(); f != nil {
			c.MinQty = parseF(f.MinQuantity)
			c.MaxQty = parseF(f.MaxQuantity)
			c.StepSize = parseF(f.StepSize)
		}
		if f := s.PriceFilter(); f != nil {
			c.MinPrice = parseF(f.MinPrice)
			c.MaxPrice = parseF(f.MaxPrice)
			c.TickSize = parseF(f.TickSize)
		}
		if f := s.MinNotionalFilter(); f != nil {
			c.MinNotional = parseF(f.Notional)
		}
		return c, nil
	}
	return models.SymbolConstraints{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

func (b *binanceAPI) tickerPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no ticker price for %s", symbol)
	}
	return parseF(prices[0].Price), nil
}

func (b *binanceAPI) placeOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(toBinanceSide(req.Side)).
		Type(toBinanceOrderType(req.Type)).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64)).
		NewClientOrderID(uuid.NewString())
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.Type == models.OrderTypeLimit {
		svc = svc.Price(strconv.FormatFloat(req.Price, 'f', -1, 64)).
			TimeInForce(futures.TimeInForceTypeGTC)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		OrderID:     resp.OrderID,
		Symbol:      models.NormalizeSymbol(resp.Symbol),
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Status:      models.OrderStatus(resp.Status),
		AvgPrice:    parseF(resp.AvgPrice),
		ExecutedQty: parseF(resp.ExecutedQuantity),
	}, nil
}

func (b *binanceAPI) getOrder(ctx context.Context, symbol string, orderID int64) (models.Order, error) {
	o, err := b.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		OrderID:     o.OrderID,
		Symbol:      models.NormalizeSymbol(o.Symbol),
		Side:        fromBinanceSide(o.Side),
		Type:        models.OrderType(o.Type),
		Quantity:    parseF(o.OrigQuantity),
		Status:      models.OrderStatus(o.Status),
		AvgPrice:    parseF(o.AvgPrice),
		ExecutedQty: parseF(o.ExecutedQuantity),
	}, nil
}

func (b *binanceAPI) cancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	return err
}

func (b *binanceAPI) changeLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	return err
}

func (b *binanceAPI) incomeHistory(ctx context.Context, symbol string, limit int64) ([]models.Income, error) {
	svc := b.client.NewGetIncomeHistoryService().Limit(limit)
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	records, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Income, 0, len(records))
	for _, r := range records {
		out = append(out, models.Income{
			Symbol:     models.NormalizeSymbol(r.Symbol),
			IncomeType: r.IncomeType,
			Income:     parseF(r.Income),
			Asset:      r.Asset,
			Time:       r.Time,
		})
	}
	return out, nil
}

func (b *binanceAPI) klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, models.Candle{
			Symbol:     symbol,
			Interval:   interval,
			OpenTime:   time.UnixMilli(k.OpenTime),
			CloseTime:  time.UnixMilli(k.CloseTime),
			Open:       parseF(k.Open),
			High:       parseF(k.High),
			Low:        parseF(k.Low),
			Close:      parseF(k.Close),
			Volume:     parseF(k.Volume),
			TradeCount: k.TradeNum,
		})
	}
	return out, nil
}

func toBinanceSide(s models.Side) futures.SideType {
	if s == models.SideLong {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func fromBinanceSide(s futures.SideType) models.Side {
	if s == futures.SideTypeBuy {
		return models.SideLong
	}
	return models.SideShort
}

func toBinanceOrderType(t models.OrderType) futures.OrderType {
	if t == models.OrderTypeLimit {
		return futures.OrderTypeLimit
	}
	return futures.OrderTypeMarket
}

func parseF(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
