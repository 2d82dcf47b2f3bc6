package smartcard

import (
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/cortex-x/go-smartcard-bridge/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// certificateFromDER decodes the subject of a card certificate. The card
// number is the subject card number attribute, or the subject serial
// number when the certificate has none.
func certificateFromDER(der []byte) (domain.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}

	subject := make([]domain.SubjectAttribute, 0, len(cert.Subject.Names))
	cardNumber, serialAttr := "", ""
	for _, atv := range cert.Subject.Names {
		key := domain.AttributeKeyFor(atv.Type)
		value := norm.NFC.String(fmt.Sprint(atv.Value))
		subject = append(subject, domain.SubjectAttribute{Key: key, Value: value})
		switch key {
		case domain.CardNumber:
			cardNumber = value
		case domain.SerialNumber:
			serialAttr = value
		}
	}
	if cardNumber == "" {
		cardNumber = serialAttr
	}

	var serial []byte
	serialString := ""
	if cert.SerialNumber != nil {
		serial = cert.SerialNumber.Bytes()
		serialString = strings.ToUpper(cert.SerialNumber.Text(16))
	}

	return domain.NewCertificate(der, cardNumber, serial, serialString, subject), nil
}
