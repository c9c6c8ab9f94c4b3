package service

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kapo179/docuseal3/model"
)

var agreementTemplate = template.Must(template.New("agreement").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Vehicle Sales Agreement</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; padding: 40px; }
    h1 { text-align: center; color: #2563eb; margin-bottom: 30px; }
    h2 { color: #1e40af; margin-top: 30px; margin-bottom: 15px; }
    p { margin: 10px 0; }
  </style>
</head>
<body>
  <h1>VEHICLE SALES AGREEMENT</h1>
  <p>Date: {{.Date}}</p>

  <h2>Vehicle Information</h2>
  <p>
    Make: {{.Form.Make}}<br>
    Model: {{.Form.Model}}<br>
    Year: {{.Form.Year}}<br>
    {{if .Form.VIN}}VIN: {{.Form.VIN}}<br>{{end}}
    Mileage: {{.Mileage}} miles<br>
    Condition: {{.Form.Condition}}<br>
    Price: {{.Price}}
  </p>
  {{if .Form.InspectionNotes}}<p>Inspection notes: {{.Form.InspectionNotes}}</p>{{end}}

  <h2>Agreement Details</h2>
  <p>
    The undersigned purchaser acknowledges receipt of the above vehicle in exchange for the cash sum
    of {{.Price}}, this being the price agreed by the purchaser with the vendor for the above-named
    vehicle, receipt of which the vendor hereby acknowledges.
  </p>
  <p>
    It is understood by the purchaser that the vehicle is sold as seen, tried, and approved without
    guarantee, with the following condition:
  </p>
  <p>
    The purchaser holds the right to return the vehicle and is entitled to a full refund of the
    vehicle's purchase price if, within 14 days of the purchase date, the vehicle is found, through
    first-hand verifiable recorded inspection or professional assessment, to have significant defects
    or undisclosed issues affecting its condition or safety that were not made known at the time of sale.
  </p>
  <p>
    Upon exercising this right, the purchaser agrees to return the vehicle to the vendor in the
    condition it was received. The vendor agrees to refund the full purchase amount to the purchaser
    within 14 days of the vehicle's return.
  </p>

  <h2>Seller Information</h2>
  <p>
    Name: {{.Seller.Name}}<br>
    Email: {{.Seller.Email}}<br>
    Signature: <signature-field name="Seller Signature" role="Seller" required="true"></signature-field>
  </p>

  <h2>Buyer Information</h2>
  <p>
    Name: {{.Buyer.Name}}<br>
    Email: {{.Buyer.Email}}<br>
    Signature: <signature-field name="Buyer Signature" role="Buyer" required="true"></signature-field>
  </p>

  <p>This document is legally binding. Both parties should retain a signed copy for their records.</p>
</body>
</html>
`))

type agreementView struct {
	Date    string
	Form    model.FormData
	Seller  model.ContractParty
	Buyer   model.ContractParty
	Price   string
	Mileage string
}

// RenderAgreement produces the agreement HTML. Party and vehicle values are
// HTML-escaped.
func RenderAgreement(data model.SigningData, now time.Time) (string, error) {
	var buf bytes.Buffer
	err := agreementTemplate.Execute(&buf, agreementView{
		Date:    now.Format("01/02/2006"),
		Form:    data.FormData,
		Seller:  data.Seller,
		Buyer:   data.Buyer,
		Price:   FormatPrice(data.FormData.Currency, data.FormData.Price),
		Mileage: groupThousands(strconv.Itoa(data.FormData.Mileage)),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// AgreementName is the template title shown in the provider dashboard.
func AgreementName(form model.FormData) string {
	return "Vehicle Sales Agreement - " + strings.TrimSpace(form.Make) + " " + strings.TrimSpace(form.Model)
}

// FormatPrice renders e.g. "USD 18,500.50"; whole amounts drop the cents.
func FormatPrice(currency model.Currency, price float64) string {
	amount := decimal.NewFromFloat(price).Round(2)
	text := amount.StringFixed(2)
	if amount.Equal(amount.Truncate(0)) {
		text = amount.StringFixed(0)
	}

	sign := ""
	if strings.HasPrefix(text, "-") {
		sign, text = "-", text[1:]
	}
	whole, frac, hasFrac := strings.Cut(text, ".")
	out := sign + groupThousands(whole)
	if hasFrac {
		out += "." + frac
	}
	return strings.TrimSpace(string(currency) + " " + out)
}

func groupThousands(digits string) string {
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")
	if len(digits) <= 3 {
		if neg {
			return "-" + digits
		}
		return digits
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
