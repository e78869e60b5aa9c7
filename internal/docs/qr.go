package docs

import (
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
)

// QRSize is the edge length in pixels of generated QR codes.
const QRSize = 256

// PaymentPayload is the text encoded in an invoice's payment QR code.
func PaymentPayload(biz config.BusinessConfig, inv *store.Invoice) string {
	return fmt.Sprintf("PAY:%s;REF:%s;AMOUNT:%.2f;CUR:%s", biz.Name, inv.Number, inv.Total, biz.Currency)
}

// PaymentQR renders the payment payload for inv as a PNG.
func PaymentQR(biz config.BusinessConfig, inv *store.Invoice) ([]byte, error) {
	png, err := qrcode.Encode(PaymentPayload(biz, inv), qrcode.Medium, QRSize)
	if err != nil {
		return nil, fmt.Errorf("encode payment qr for %s: %w", inv.Number, err)
	}
	return png, nil
}
