package email

import (
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

type Line struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Confirmation is everything shown in an order confirmation.
type Confirmation struct {
	OrderID        string
	Lines          []Line
	Subtotal       decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
}

var confirmationTemplate = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return "$" + d.StringFixed(2) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 24px;">Thank you for your order</h1>
	<p>Order number: <strong style="font-family: monospace;">{{.OrderID}}</strong></p>

	<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr style="background: #f8f9fa;">
				<th style="padding: 12px; text-align: left;">Item</th>
				<th style="padding: 12px; text-align: center;">Qty</th>
				<th style="padding: 12px; text-align: right;">Price</th>
				<th style="padding: 12px; text-align: right;">Total</th>
			</tr>
		</thead>
		<tbody>
		{{- range .Lines}}
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.Name}}</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{money .UnitPrice}}</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{money .Total}}</td>
			</tr>
		{{- end}}
		</tbody>
	</table>

	<table style="width: 100%; text-align: right;">
		<tr><td>Subtotal</td><td>{{money .Subtotal}}</td></tr>
		{{- if .DiscountCode}}
		<tr><td>Discount ({{.DiscountCode}})</td><td>-{{money .DiscountAmount}}</td></tr>
		{{- end}}
		<tr><td>Tax</td><td>{{money .TaxAmount}}</td></tr>
		<tr><td>Shipping</td><td>{{if .ShippingCost.IsZero}}Free{{else}}{{money .ShippingCost}}{{end}}</td></tr>
		<tr><td><strong>Total</strong></td><td><strong>{{money .Total}}</strong></td></tr>
	</table>

	<p style="font-size: 12px; color: #999;">This email was sent automatically. Please contact support if you have any questions.</p>
</body>
</html>`))

// BuildOrderConfirmationBody renders the HTML body of an order confirmation.
func BuildOrderConfirmationBody(c Confirmation) (string, error) {
	var b strings.Builder
	if err := confirmationTemplate.Execute(&b, c); err != nil {
		return "", err
	}
	return b.String(), nil
}
