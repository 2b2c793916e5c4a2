// Package copytrade ingests the order history of watched lead traders.
package copytrade

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	ctclient "signalflow/internal/client/copytrade"
	"signalflow/internal/models"
)

// ErrParse marks an upstream record that cannot become a CopyOrder.
var ErrParse = errors.New("malformed order record")

// ActionType maps an executed side and position side to the trade action.
func ActionType(side, positionSide string) string {
	switch strings.ToUpper(side) + "/" + strings.ToUpper(positionSide) {
	case "BUY/LONG":
		return models.ActionOpenLong
	case "SELL/SHORT":
		return models.ActionOpenShort
	case "SELL/LONG":
		return models.ActionCloseLong
	case "BUY/SHORT":
		return models.ActionCloseShort
	default:
		return models.ActionUnknown
	}
}

func isClose(action string) bool {
	return action == models.ActionCloseLong || action == models.ActionCloseShort
}

// OrderKey is the exchange-scoped identity of rec. The provider's order id is
// used when present; otherwise the key is composed from the trader, the
// instrument, the sides and the order time, since the time alone collides
// when a trader fills several orders in the same millisecond.
func OrderKey(traderID string, rec ctclient.OrderRecord) string {
	if id := strings.TrimSpace(rec.OrderID.String()); id != "" {
		return id
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d",
		traderID,
		strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		strings.ToUpper(strings.TrimSpace(rec.Side)),
		strings.ToUpper(strings.TrimSpace(rec.PositionSide)),
		rec.OrderTime,
	)
}

// ParseRecord converts an upstream row. Failures wrap ErrParse.
func ParseRecord(traderID, exchange string, rec ctclient.OrderRecord) (models.CopyOrder, error) {
	symbol := strings.ToUpper(strings.TrimSpace(rec.Symbol))
	if symbol == "" {
		return models.CopyOrder{}, fmt.Errorf("%w: missing symbol", ErrParse)
	}
	side := strings.ToUpper(strings.TrimSpace(rec.Side))
	if side != "BUY" && side != "SELL" {
		return models.CopyOrder{}, fmt.Errorf("%w: side %q", ErrParse, rec.Side)
	}
	if rec.OrderTime <= 0 {
		return models.CopyOrder{}, fmt.Errorf("%w: order time %d", ErrParse, rec.OrderTime)
	}
	price, err := decimal.NewFromString(rec.AvgPrice.String())
	if err != nil || price.IsNegative() {
		return models.CopyOrder{}, fmt.Errorf("%w: avg price %q", ErrParse, rec.AvgPrice)
	}
	qty, err := decimal.NewFromString(rec.ExecutedQty.String())
	if err != nil || qty.IsNegative() {
		return models.CopyOrder{}, fmt.Errorf("%w: executed qty %q", ErrParse, rec.ExecutedQty)
	}
	positionSide := strings.ToUpper(strings.TrimSpace(rec.PositionSide))
	action := ActionType(side, positionSide)

	order := models.CopyOrder{
		TraderID:        traderID,
		Exchange:        exchange,
		ExchangeOrderID: OrderKey(traderID, rec),
		Symbol:          symbol,
		Side:            side,
		PositionSide:    positionSide,
		ActionType:      action,
		ExecutedQty:     qty,
		AvgPrice:        price,
		OrderTime:       time.UnixMilli(rec.OrderTime).UTC(),
	}
	if raw := strings.TrimSpace(rec.TotalPnl.String()); raw != "" && isClose(action) {
		pnl, err := decimal.NewFromString(raw)
		if err != nil {
			return models.CopyOrder{}, fmt.Errorf("%w: total pnl %q", ErrParse, raw)
		}
		order.RealizedPnL = &pnl
	}
	return order, nil
}
