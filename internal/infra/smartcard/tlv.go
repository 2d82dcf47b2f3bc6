package smartcard

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"cunicu.li/go-iso7816/encoding/tlv"
	"github.com/klauspost/compress/gzip"
)

const (
	tagDataObject  = 0x53
	tagCertificate = 0x70
	tagCertInfo    = 0x71

	// maxCertificateSize caps a decompressed certificate.
	maxCertificateSize = 64 << 10
)

var (
	errMalformedTLV        = errors.New("malformed BER-TLV")
	errCertificateTooLarge = errors.New("certificate too large")
)

// certificateFromObject extracts the DER certificate from a PIV certificate
// data object: 53 { 70 cert, 71 certinfo, FE edc }. An empty slot yields nil.
func certificateFromObject(obj []byte) ([]byte, error) {
	tvs, err := tlv.DecodeBER(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedTLV, err)
	}
	container, _, ok := tvs.Get(tagDataObject)
	if !ok {
		return nil, fmt.Errorf("%w: missing data object container", errMalformedTLV)
	}

	fields, err := tlv.DecodeBER(container)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedTLV, err)
	}
	cert, _, ok := fields.Get(tagCertificate)
	if !ok || len(cert) == 0 {
		return nil, nil
	}
	if info, _, ok := fields.Get(tagCertInfo); ok && len(info) > 0 && info[0]&0x01 != 0 {
		return gunzip(cert)
	}
	return cert, nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compressed certificate: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxCertificateSize+1))
	if err != nil {
		return nil, fmt.Errorf("compressed certificate: %w", err)
	}
	if len(out) > maxCertificateSize {
		return nil, errCertificateTooLarge
	}
	return out, nil
}
