package domain

import "bytes"

// Certificate is one certificate read from a card together with the decoded
// subject. Values are immutable: constructors and accessors copy slices.
type Certificate struct {
	derData      []byte
	cardNumber   string
	serialNumber []byte
	serialString string
	subject      []SubjectAttribute
}

func NewCertificate(derData []byte, cardNumber string, serialNumber []byte, serialString string, subject []SubjectAttribute) Certificate {
	return Certificate{
		derData:      bytes.Clone(derData),
		cardNumber:   cardNumber,
		serialNumber: bytes.Clone(serialNumber),
		serialString: serialString,
		subject:      append([]SubjectAttribute(nil), subject...),
	}
}

func (c Certificate) DERData() []byte      { return bytes.Clone(c.derData) }
func (c Certificate) CardNumber() string   { return c.cardNumber }
func (c Certificate) SerialNumber() []byte { return bytes.Clone(c.serialNumber) }
func (c Certificate) SerialString() string { return c.serialString }

// Subject returns the subject attributes in the order they were read.
func (c Certificate) Subject() []SubjectAttribute {
	return append([]SubjectAttribute(nil), c.subject...)
}

// SubjectValue returns the last value stored under key.
func (c Certificate) SubjectValue(key AttributeKey) (string, bool) {
	for i := len(c.subject) - 1; i >= 0; i-- {
		if c.subject[i].Key == key {
			return c.subject[i].Value, true
		}
	}
	return "", false
}

func (c Certificate) Equal(o Certificate) bool {
	if c.cardNumber != o.cardNumber || c.serialString != o.serialString {
		return false
	}
	if !bytes.Equal(c.derData, o.derData) || !bytes.Equal(c.serialNumber, o.serialNumber) {
		return false
	}
	if len(c.subject) != len(o.subject) {
		return false
	}
	for i := range c.subject {
		if c.subject[i] != o.subject[i] {
			return false
		}
	}
	return true
}
