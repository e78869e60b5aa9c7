package docs

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-vcard"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
)

// LeadVCard encodes the lead's contact details as a vCard 4.0.
func LeadVCard(l *store.Lead) ([]byte, error) {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldFormattedName, l.CustomerName)
	card.SetValue(vcard.FieldEmail, l.Email)
	card.SetValue(vcard.FieldTelephone, l.Phone)
	if l.Address != "" {
		card.AddAddress(&vcard.Address{StreetAddress: l.Address})
	}
	card.SetValue(vcard.FieldNote, fmt.Sprintf("Lead for %s", l.ServiceType))
	vcard.ToV4(card)

	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return nil, fmt.Errorf("encode vcard: %w", err)
	}
	return buf.Bytes(), nil
}
