package domain

import (
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCertificate(cn string) Certificate {
	return NewCertificate(
		[]byte{0x30, 0x03, 0x02, 0x01, 0x01},
		"123",
		[]byte{0x01, 0x02},
		"0102",
		[]SubjectAttribute{{Key: CommonName, Value: cn}, {Key: CardNumber, Value: "123"}},
	)
}

func TestNewCardInsertedRejectsEmptyList(t *testing.T) {
	_, err := NewCardInserted(nil)
	assert.ErrorIs(t, err, ErrEmptyCertificateList)

	_, err = NewCardInserted([]Certificate{})
	assert.ErrorIs(t, err, ErrEmptyCertificateList)
}

func TestCardStateForCertificates(t *testing.T) {
	assert.Equal(t, KindCardWithoutCertificatesInserted, CardStateForCertificates(nil).Kind())

	state := CardStateForCertificates([]Certificate{testCertificate("Alice")})
	require.Equal(t, KindCardInserted, state.Kind())
	assert.Len(t, state.(CardInserted).Certificates(), 1)
}

func TestCertificateIsImmutable(t *testing.T) {
	der := []byte{0x30, 0x00}
	subject := []SubjectAttribute{{Key: CommonName, Value: "Alice"}}
	cert := NewCertificate(der, "1", []byte{0x05}, "05", subject)

	der[0] = 0xFF
	subject[0].Value = "Mallory"
	assert.Equal(t, []byte{0x30, 0x00}, cert.DERData())
	assert.Equal(t, "Alice", cert.Subject()[0].Value)

	out := cert.SerialNumber()
	out[0] = 0x00
	assert.Equal(t, []byte{0x05}, cert.SerialNumber())
}

func TestSubjectValueLastWriteWins(t *testing.T) {
	cert := NewCertificate(nil, "", nil, "", []SubjectAttribute{
		{Key: OrganizationalUnitName, Value: "first"},
		{Key: OrganizationalUnitName, Value: "second"},
	})
	v, ok := cert.SubjectValue(OrganizationalUnitName)
	require.True(t, ok)
	assert.Equal(t, "second", v)

	_, ok = cert.SubjectValue(Surname)
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	alice, _ := NewCardInserted([]Certificate{testCertificate("Alice")})
	alice2, _ := NewCardInserted([]Certificate{testCertificate("Alice")})
	bob, _ := NewCardInserted([]Certificate{testCertificate("Bob")})

	tests := []struct {
		name string
		a, b CardState
		want bool
	}{
		{"same simple variant", ReaderConnected{}, ReaderConnected{}, true},
		{"different variants", ReaderConnected{}, ReaderDisconnected{}, false},
		{"same certificates", alice, alice2, true},
		{"different certificates", alice, bob, false},
		{"same smartcard error", NewSmartcardErrorState("timeout", 7), NewSmartcardErrorState("timeout", 7), true},
		{"different error codes", NewSmartcardErrorState("timeout", 7), NewSmartcardErrorState("timeout", 8), false},
		{"smartcard vs internal", NewSmartcardErrorState("x", 0), NewInternalErrorState("x"), false},
		{"both nil", nil, nil, true},
		{"one nil", nil, Unknown{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestAttributeKeyForOID(t *testing.T) {
	assert.Equal(t, CommonName, AttributeKeyForOID("2.5.4.3"))
	assert.Equal(t, "2.5.4.3", CommonName.OID())
	assert.Equal(t, SHA1WithRSAEncryption, AttributeKeyFor(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}))

	key := AttributeKeyForOID("1.3.6.1.4.1.99999.1")
	assert.True(t, key.IsUndefined())
	assert.Equal(t, "1.3.6.1.4.1.99999.1", key.OID())
	assert.NotEqual(t, key, AttributeKeyForOID("1.3.6.1.4.1.99999.2"))
}

func TestStateKindString(t *testing.T) {
	assert.Equal(t, "CardWithoutCertificatesInserted", KindCardWithoutCertificatesInserted.String())
	assert.Equal(t, "Invalid", StateKind(99).String())
}
