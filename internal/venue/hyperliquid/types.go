// Package hyperliquid implements the Hyperliquid venue adapter: REST via
// the info/exchange endpoints, streaming via the l2Book subscription.
//
// Hyperliquid names instruments by coin ("BTC"); the unified symbol form is
// "BTC-PERP". The adapter translates at the boundary in both directions.
package hyperliquid

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// infoRequest is the polymorphic body of POST /info.
type infoRequest struct {
	Type     string `json:"type"`
	Coin     string `json:"coin,omitempty"`
	Interval string `json:"interval,omitempty"`
	StartMs  int64  `json:"startTime,omitempty"`
	EndMs    int64  `json:"endTime,omitempty"`
	User     string `json:"user,omitempty"`
}

// metaResponse lists the tradable universe.
type metaResponse struct {
	Universe []assetMeta `json:"universe"`
}

type assetMeta struct {
	Name        string `json:"name"`
	SzDecimals  int    `json:"szDecimals"`
	PxDecimals  int    `json:"pxDecimals"`
	MaxLeverage int    `json:"maxLeverage"`
	MinSize     string `json:"minSz"`
}

// bookLevel is one price level: [price, size, orderCount].
type bookLevel struct {
	Px decimal.Decimal `json:"px"`
	Sz decimal.Decimal `json:"sz"`
	N  int             `json:"n"`
}

// l2BookResponse is both the REST book response and the WS book payload.
type l2BookResponse struct {
	Coin   string         `json:"coin"`
	Levels [2][]bookLevel `json:"levels"` // [bids, asks]
	TimeMs int64          `json:"time"`
}

// tickerResponse is the 24h stats for one coin.
type tickerResponse struct {
	Coin         string           `json:"coin"`
	MarkPx       decimal.Decimal  `json:"markPx"`
	MidPx        *decimal.Decimal `json:"midPx,omitempty"`
	PrevDayPx    decimal.Decimal  `json:"prevDayPx"`
	DayVlm       decimal.Decimal  `json:"dayNtlVlm"`
	Funding      decimal.Decimal  `json:"funding"`
	OpenInterest decimal.Decimal  `json:"openInterest"`
}

// candle is one kline row.
type candle struct {
	OpenMs  int64           `json:"t"`
	CloseMs int64           `json:"T"`
	Open    decimal.Decimal `json:"o"`
	High    decimal.Decimal `json:"h"`
	Low     decimal.Decimal `json:"l"`
	Close   decimal.Decimal `json:"c"`
	Volume  decimal.Decimal `json:"v"`
}

// publicTrade is one public fill row.
type publicTrade struct {
	Coin   string          `json:"coin"`
	Side   string          `json:"side"` // "B" or "A"
	Px     decimal.Decimal `json:"px"`
	Sz     decimal.Decimal `json:"sz"`
	TimeMs int64           `json:"time"`
	TID    int64           `json:"tid"`
}

// assetPosition is one leg of the clearinghouse state.
type assetPosition struct {
	Coin           string           `json:"coin"`
	Szi            decimal.Decimal  `json:"szi"` // signed size
	EntryPx        decimal.Decimal  `json:"entryPx"`
	MarkPx         decimal.Decimal  `json:"markPx"`
	LiqPx          *decimal.Decimal `json:"liquidationPx,omitempty"`
	UnrealizedPnl  decimal.Decimal  `json:"unrealizedPnl"`
	MarginUsed     decimal.Decimal  `json:"marginUsed"`
	LeverageValue  *decimal.Decimal `json:"leverage,omitempty"`
}

// clearinghouseState is the account snapshot.
type clearinghouseState struct {
	AssetPositions []assetPosition `json:"assetPositions"`
	Withdrawable   decimal.Decimal `json:"withdrawable"`
	AccountValue   decimal.Decimal `json:"accountValue"`
	TotalMarginUsed decimal.Decimal `json:"totalMarginUsed"`
}

// exchangeRequest is the body of POST /exchange.
type exchangeRequest struct {
	Action any `json:"action"`
}

// orderAction places one order.
type orderAction struct {
	Type   string      `json:"type"` // "order"
	Orders []wireOrder `json:"orders"`
}

type wireOrder struct {
	Coin       string           `json:"coin"`
	IsBuy      bool             `json:"isBuy"`
	Px         *decimal.Decimal `json:"px,omitempty"`
	TriggerPx  *decimal.Decimal `json:"triggerPx,omitempty"`
	Sz         decimal.Decimal  `json:"sz"`
	ReduceOnly bool             `json:"reduceOnly"`
	OrderType  string           `json:"orderType"` // "limit", "market", "stopMarket", "stopLimit"
	Tif        string           `json:"tif,omitempty"`
	Cloid      string           `json:"cloid"`
}

// cancelAction cancels one order by venue id.
type cancelAction struct {
	Type string `json:"type"` // "cancel"
	Coin string `json:"coin"`
	Oid  string `json:"oid"`
}

// exchangeResponse reports per-order outcomes.
type exchangeResponse struct {
	Status   string `json:"status"` // "ok" or "err"
	Response struct {
		Data struct {
			Statuses []orderStatusWire `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
	Error string `json:"error,omitempty"`
}

type orderStatusWire struct {
	Resting *struct {
		Oid json.Number `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		Oid     json.Number     `json:"oid"`
		AvgPx   decimal.Decimal `json:"avgPx"`
		TotalSz decimal.Decimal `json:"totalSz"`
	} `json:"filled,omitempty"`
	Error string `json:"error,omitempty"`
}

// orderStateWire is one row of the open-orders / order-status response.
type orderStateWire struct {
	Coin      string          `json:"coin"`
	Oid       json.Number     `json:"oid"`
	Cloid     string          `json:"cloid,omitempty"`
	Side      string          `json:"side"` // "B" or "A"
	LimitPx   decimal.Decimal `json:"limitPx"`
	Sz        decimal.Decimal `json:"sz"`
	OrigSz    decimal.Decimal `json:"origSz"`
	Status    string          `json:"status"` // "open", "filled", "canceled", "rejected"
	TimestampMs int64         `json:"timestamp"`
}

// wsEnvelope routes incoming stream messages by channel.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// wsSubscribe is the stream subscription message.
type wsSubscribe struct {
	Method       string         `json:"method"` // "subscribe" / "unsubscribe"
	Subscription wsSubscription `json:"subscription"`
}

// wsSubscription names one stream. Public streams are coin-scoped;
// private streams ("orderUpdates", "userFills", "webData2") are
// user-scoped.
type wsSubscription struct {
	Type string `json:"type"` // "l2Book", "orderUpdates", "userFills", "webData2"
	Coin string `json:"coin,omitempty"`
	User string `json:"user,omitempty"`
}

// wsOrderUpdate is one row of the orderUpdates stream; the current status
// sits next to the order, not inside it.
type wsOrderUpdate struct {
	Order  orderStateWire `json:"order"`
	Status string         `json:"status"`
}

// wsUserFills is the userFills stream payload.
type wsUserFills struct {
	Fills []wsFill `json:"fills"`
}

type wsFill struct {
	Coin   string          `json:"coin"`
	Side   string          `json:"side"` // "B" or "A"
	Px     decimal.Decimal `json:"px"`
	Sz     decimal.Decimal `json:"sz"`
	TimeMs int64           `json:"time"`
	TID    int64           `json:"tid"`
}

// wsWebData2 carries the account snapshot pushed on every account change.
type wsWebData2 struct {
	Clearinghouse clearinghouseState `json:"clearinghouseState"`
}
