package smartcard

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"sync"
	"testing"
	"time"

	iso "cunicu.li/go-iso7816"
	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	mu         sync.Mutex
	readers    []string
	listErr    error
	connectErr error
	card       *fakeCard
	connects   int
	released   bool
}

func (c *fakeContext) ListReaders() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readers, c.listErr
}

func (c *fakeContext) Connect(reader string) (Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return c.card, nil
}

func (c *fakeContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return nil
}

func (c *fakeContext) set(fn func(c *fakeContext)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// fakeCard answers APDUs from a table keyed by the command bytes.
type fakeCard struct {
	responses    map[string][]byte
	transmitErr  error
	transmitted  [][]byte
	disconnected int
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	c.transmitted = append(c.transmitted, append([]byte(nil), cmd...))
	if c.transmitErr != nil {
		return nil, c.transmitErr
	}
	if rsp, ok := c.responses[string(cmd)]; ok {
		return rsp, nil
	}
	return []byte{0x6A, 0x82}, nil
}

func (c *fakeCard) Disconnect() error {
	c.disconnected++
	return nil
}

// wire encodes a command the way transmit puts it on the wire.
func wire(cmd *iso.CAPDU, err error) string {
	if err != nil {
		panic(err)
	}
	raw, err := cmd.Bytes()
	if err != nil {
		panic(err)
	}
	return string(raw)
}

func ok(data []byte) []byte {
	return append(append([]byte(nil), data...), 0x90, 0x00)
}

func berTLV(tag byte, value []byte) []byte {
	var out []byte
	out = append(out, tag)
	switch n := len(value); {
	case n < 0x80:
		out = append(out, byte(n))
	case n <= 0xFF:
		out = append(out, 0x81, byte(n))
	default:
		out = append(out, 0x82, byte(n>>8), byte(n))
	}
	return append(out, value...)
}

func pivObject(der []byte, certInfo byte) []byte {
	var inner bytes.Buffer
	inner.Write(berTLV(0x70, der))
	inner.Write(berTLV(0x71, []byte{certInfo}))
	inner.Write(berTLV(0xFE, nil))
	return berTLV(0x53, inner.Bytes())
}

var oidCardNumber = asn1.ObjectIdentifier{1, 2, 752, 34, 2, 1}

func makeCertificate(t *testing.T, commonName, cardNumber string, serial int64, extra ...pkix.AttributeTypeAndValue) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	names := append([]pkix.AttributeTypeAndValue{{Type: oidCardNumber, Value: cardNumber}}, extra...)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: commonName, ExtraNames: names},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}
