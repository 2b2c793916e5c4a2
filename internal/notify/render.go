package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"signalflow/internal/models"
)

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"ts": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04:05 UTC")
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
}

var (
	signalSubject = template.Must(template.New("signal_subject").Funcs(funcs).Parse(
		`[{{.Tier}}] {{.Direction}} {{.Symbol}} @ {{.EntryPrice.String}} ({{.Source}})`))
	signalBody = template.Must(template.New("signal_body").Funcs(funcs).Parse(
		`New {{.Tier}} signal #{{.ID}}

Symbol:      {{.Symbol}}
Direction:   {{.Direction}}
Timeframe:   {{.Timeframe}}
Entry:       {{.EntryPrice.String}}
Stop loss:   {{.StopLoss.String}}
Take profit: {{.TakeProfit.String}}
Score:       {{.Score}}
Confidence:  {{pct .Confidence}}
Status:      {{.Status}}
Created:     {{ts .CreatedAt}}

{{.Reasoning}}
`))

	copySubject = template.Must(template.New("copy_subject").Funcs(funcs).Parse(
		`[copy-trade] {{.Trader}} {{.Order.ActionType}} {{.Order.Symbol}}`))
	copyBody = template.Must(template.New("copy_body").Funcs(funcs).Parse(
		`{{.Trader}} executed an order.

Symbol:        {{.Order.Symbol}}
Action:        {{.Order.ActionType}}
Side:          {{.Order.Side}}{{if .Order.PositionSide}} / {{.Order.PositionSide}}{{end}}
Quantity:      {{.Order.ExecutedQty.String}}
Average price: {{.Order.AvgPrice.String}}
{{- if .Order.RealizedPnL}}
Realized PnL:  {{.Order.RealizedPnL.String}}{{end}}
Order time:    {{ts .Order.OrderTime}}
Order id:      {{.Order.ExchangeOrderID}}
`))
)

type copyView struct {
	Trader string
	Order  models.CopyOrder
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderSignal returns the subject and body announcing an accepted signal.
func RenderSignal(sig models.Signal) (string, string, error) {
	subject, err := execute(signalSubject, sig)
	if err != nil {
		return "", "", err
	}
	body, err := execute(signalBody, sig)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// RenderCopyOrder returns the subject and body announcing a lead trader order.
func RenderCopyOrder(order models.CopyOrder, watch models.TraderWatch) (string, string, error) {
	trader := strings.TrimSpace(watch.Nickname)
	if trader == "" {
		trader = order.TraderID
	}
	view := copyView{Trader: trader, Order: order}
	subject, err := execute(copySubject, view)
	if err != nil {
		return "", "", err
	}
	body, err := execute(copyBody, view)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}
