package outreach

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/smartprocure/backend/internal/domain"
)

const maxSMSLength = 160

const quoteRequestHTML = `<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #111827; line-height: 1.5;">
  <p>Dear {{.Supplier}},</p>
  <p>We are interested in procuring the following:</p>
  <ul>
    <li><strong>Product:</strong> {{.Product}}</li>
    <li><strong>Quantity:</strong> {{.Quantity}}</li>
    <li><strong>Required by:</strong> {{.Timeline}}</li>
    <li><strong>Delivery location:</strong> {{.DeliveryLocation}}</li>
    {{- range .Specifications}}
    <li><strong>{{.Key}}:</strong> {{.Value}}</li>
    {{- end}}
  </ul>
  <p>Can you provide a quotation for the above requirements?</p>
  <p>Please reply with:</p>
  <ol>
    <li>Price per unit</li>
    <li>Total cost including taxes</li>
    <li>Delivery timeframe</li>
    <li>Payment terms</li>
  </ol>
  <p>Thank you, we look forward to your response.</p>
  <p>Best regards,<br/>{{.Sender}}</p>
</body>
</html>`

// Message is a rendered email with an HTML body and a plain text alternative
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type specLine struct {
	Key   string
	Value string
}

type quoteRequest struct {
	Supplier         string
	Product          string
	Quantity         string
	Timeline         string
	DeliveryLocation string
	Specifications   []specLine
	Sender           string
}

// Renderer builds quotation request messages for suppliers
type Renderer struct {
	tmpl   *template.Template
	sender string
}

// NewRenderer creates a renderer signing messages as sender
func NewRenderer(sender string) *Renderer {
	if sender == "" {
		sender = "Procurement Team"
	}
	return &Renderer{
		tmpl:   template.Must(template.New("quote").Parse(quoteRequestHTML)),
		sender: sender,
	}
}

// Email renders the quotation request email for one supplier
func (r *Renderer) Email(supplier domain.SupplierRecord, spec *domain.RequirementSpec) (*Message, error) {
	data := r.requestData(supplier, spec)

	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &Message{
		Subject: "Procurement Request: " + data.Product,
		Text:    renderPlainText(data),
		HTML:    htmlBuf.String(),
	}, nil
}

// SMS renders a single-segment text message (at most 160 characters)
func (r *Renderer) SMS(supplier domain.SupplierRecord, spec *domain.RequirementSpec) string {
	data := r.requestData(supplier, spec)

	// first word of the company name keeps the greeting short
	greeting := "Supplier"
	if fields := strings.Fields(supplier.Name); len(fields) > 0 {
		greeting = fields[0]
	}

	var need string
	if spec != nil && spec.HasQuantity() {
		need = data.Quantity + " of " + data.Product
	} else {
		need = data.Product
	}

	body := fmt.Sprintf("Hi %s, we need to procure %s. Please reply with a quotation. Details sent by email. %s",
		greeting, need, data.Sender)
	return truncate(body, maxSMSLength)
}

func (r *Renderer) requestData(supplier domain.SupplierRecord, spec *domain.RequirementSpec) quoteRequest {
	data := quoteRequest{
		Supplier:         orNA(supplier.Name),
		Product:          "N/A",
		Quantity:         "N/A",
		Timeline:         "N/A",
		DeliveryLocation: "N/A",
		Sender:           r.sender,
	}
	if spec == nil {
		return data
	}

	data.Product = orNA(spec.ProductType)
	if spec.HasQuantity() {
		data.Quantity = strings.TrimSpace(strconv.FormatFloat(spec.Quantity, 'f', -1, 64) + " " + spec.QuantityUnit)
	}
	data.Timeline = orNA(spec.DeliveryTimeline)
	data.DeliveryLocation = orNA(spec.DeliveryLocation)
	for _, k := range spec.SpecificationKeys() {
		data.Specifications = append(data.Specifications, specLine{Key: k, Value: spec.Specifications[k]})
	}
	return data
}

func renderPlainText(data quoteRequest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Dear %s,\n\n", data.Supplier))
	sb.WriteString("We are interested in procuring the following:\n\n")
	sb.WriteString(fmt.Sprintf("- Product: %s\n", data.Product))
	sb.WriteString(fmt.Sprintf("- Quantity: %s\n", data.Quantity))
	sb.WriteString(fmt.Sprintf("- Required by: %s\n", data.Timeline))
	sb.WriteString(fmt.Sprintf("- Delivery location: %s\n", data.DeliveryLocation))
	for _, s := range data.Specifications {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", s.Key, s.Value))
	}
	sb.WriteString("\nCan you provide a quotation for the above requirements?\n\n")
	sb.WriteString("Please reply with:\n")
	sb.WriteString("1. Price per unit\n2. Total cost including taxes\n3. Delivery timeframe\n4. Payment terms\n\n")
	sb.WriteString("Thank you, we look forward to your response.\n\n")
	sb.WriteString("Best regards,\n" + data.Sender + "\n")

	return sb.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// truncate cuts s to at most n runes, ending with "..." when shortened
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
