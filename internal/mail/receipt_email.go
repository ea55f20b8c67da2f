package mail

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// ReceiptSubject — тема письма с чеком.
const ReceiptSubject = "Your Order Receipt"

var receiptTemplate = template.Must(template.New("receipt").Parse(`<h2>Thank you for your order, {{.Name}}!</h2>
<p>Order ID: <strong>{{.OrderID}}</strong></p>
<p>Total: <strong>{{.Currency}} {{.Total}}</strong></p>
{{if .DownloadURL}}<p>You can download your receipt <a href="{{.DownloadURL}}">here</a>.</p>{{end}}
<p>The receipt is also attached to this email.</p>
`))

// ReceiptEmail — данные письма с чеком.
type ReceiptEmail struct {
	To          string
	Name        string
	Order       domain.Order
	DownloadURL string
	PDF         []byte
}

// ReceiptAttachmentName возвращает имя вложения для заказа.
func ReceiptAttachmentName(orderID string) string {
	return fmt.Sprintf("order-%s.pdf", orderID)
}

// BuildReceiptMessage собирает письмо: тема с номером заказа, HTML тело и PDF вложение.
func BuildReceiptMessage(e ReceiptEmail) (domain.MailMessage, error) {
	var body bytes.Buffer
	err := receiptTemplate.Execute(&body, map[string]any{
		"Name":        e.Name,
		"OrderID":     e.Order.ID,
		"Currency":    e.Order.Currency,
		"Total":       e.Order.TotalPrice.StringFixed(2),
		"DownloadURL": e.DownloadURL,
	})
	if err != nil {
		return domain.MailMessage{}, fmt.Errorf("render receipt email: %w", err)
	}

	return domain.MailMessage{
		To:       e.To,
		Subject:  fmt.Sprintf("%s #%s", ReceiptSubject, e.Order.ID),
		HTMLBody: body.String(),
		Attachments: []domain.Attachment{{
			Filename:    ReceiptAttachmentName(e.Order.ID),
			ContentType: "application/pdf",
			Body:        e.PDF,
		}},
	}, nil
}
