package codec

import (
	"encoding/base64"

	"github.com/cortex-x/go-smartcard-bridge/internal/domain"
)

// Map is the transport representation of one result.
type Map map[string]any

const (
	KeyState         = "state"
	KeyErrorMessage  = "errorMessage"
	KeyErrorCode     = "errorCode"
	KeyCertificates  = "certificates"
	KeyMessage       = "message"
	KeyDERData       = "derData"
	KeyCardNumber    = "cardNumber"
	KeySerialNumber  = "serialNumber"
	KeySerialString  = "serialString"
	KeySubject       = "subject"
	KeyUndefinedAttr = "undefinedAttributes"
)

// UndefinedToken names every subject attribute outside the known table.
const UndefinedToken = "undefined"

var stateNames = map[domain.StateKind]string{
	domain.KindUnknown:                         "unknown",
	domain.KindReadingFromCard:                 "readingFromCard",
	domain.KindReaderDisconnected:              "readerDisconnected",
	domain.KindReaderConnected:                 "readerConnected",
	domain.KindUnknownCardInserted:             "unknownCardInserted",
	domain.KindCardWithoutCertificatesInserted: "cardWithoutCertificatesInserted",
	domain.KindCardInserted:                    "cardInserted",
	domain.KindError:                           "error",
}

var attributeNames = map[domain.AttributeKey]string{
	domain.CommonName:              "commonName",
	domain.Surname:                 "surname",
	domain.SerialNumber:            "serialNumber",
	domain.CountryName:             "countryName",
	domain.LocalityName:            "localityName",
	domain.StateOrProvinceName:     "stateOrProvinceName",
	domain.StreetAddress:           "streetAddress",
	domain.OrganizationName:        "organizationName",
	domain.OrganizationalUnitName:  "organizationalUnitName",
	domain.Title:                   "title",
	domain.Description:             "description",
	domain.GivenName:               "givenName",
	domain.Initials:                "initials",
	domain.GenerationQualifier:     "generationQualifier",
	domain.Pseudonym:               "pseudonym",
	domain.EmailAddress:            "emailAddress",
	domain.CardNumber:              "cardNumber",
	domain.RSAEncryption:           "rsaEncryption",
	domain.SHA1WithRSAEncryption:   "sha1WithRSAEncryption",
	domain.SHA256WithRSAEncryption: "sha256WithRSAEncryption",
	domain.SHA384WithRSAEncryption: "sha384WithRSAEncryption",
	domain.SHA512WithRSAEncryption: "sha512WithRSAEncryption",
}

// StateName returns the wire token of a state kind.
func StateName(kind domain.StateKind) string {
	if name, ok := stateNames[kind]; ok {
		return name
	}
	return stateNames[domain.KindUnknown]
}

// AttributeKeyName returns the wire token of a subject attribute key.
// Undefined keys all map to UndefinedToken.
func AttributeKeyName(key domain.AttributeKey) string {
	if name, ok := attributeNames[key]; ok {
		return name
	}
	return UndefinedToken
}

// Encoder encodes card states. The zero value produces the plain contract.
type Encoder struct {
	includeRawOIDs bool
}

type Option func(*Encoder)

// WithRawOIDs adds an undefinedAttributes list with the identifier and value
// of every unrecognized subject attribute to each encoded certificate.
func WithRawOIDs(enabled bool) Option {
	return func(e *Encoder) {
		e.includeRawOIDs = enabled
	}
}

func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEncoder = &Encoder{}

// EncodeState encodes state with the default encoder.
func EncodeState(state domain.CardState) Map {
	return defaultEncoder.EncodeState(state)
}

// EncodeDebug wraps a driver debug message.
func EncodeDebug(message string) Map {
	return Map{KeyMessage: message}
}

// EncodeState is total: a nil state encodes as unknown and a CardInserted
// without certificates as cardWithoutCertificatesInserted.
func (e *Encoder) EncodeState(state domain.CardState) Map {
	switch s := state.(type) {
	case nil:
		return Map{KeyState: StateName(domain.KindUnknown)}
	case domain.ErrorState:
		return encodeError(s.Detail)
	case domain.CardInserted:
		certs := s.Certificates()
		if len(certs) == 0 {
			return Map{KeyState: StateName(domain.KindCardWithoutCertificatesInserted)}
		}
		encoded := make([]Map, 0, len(certs))
		for _, cert := range certs {
			encoded = append(encoded, e.encodeCertificate(cert))
		}
		return Map{
			KeyState:        StateName(domain.KindCardInserted),
			KeyCertificates: encoded,
		}
	default:
		return Map{KeyState: StateName(state.Kind())}
	}
}

func encodeError(detail domain.ErrorDetail) Map {
	m := Map{
		KeyState:     StateName(domain.KindError),
		KeyErrorCode: nil,
	}
	switch d := detail.(type) {
	case domain.SmartcardError:
		m[KeyErrorMessage] = d.Message
		m[KeyErrorCode] = d.Code
	case domain.InternalError:
		m[KeyErrorMessage] = d.Message
	case nil:
		m[KeyErrorMessage] = ""
	default:
		m[KeyErrorMessage] = d.Error()
	}
	return m
}

func (e *Encoder) encodeCertificate(cert domain.Certificate) Map {
	var subject Subject
	var undefined []Map
	for _, attr := range cert.Subject() {
		subject.Set(AttributeKeyName(attr.Key), attr.Value)
		if attr.Key.IsUndefined() {
			undefined = append(undefined, Map{"oid": attr.Key.OID(), "value": attr.Value})
		}
	}

	m := Map{
		KeyDERData:      base64.StdEncoding.EncodeToString(cert.DERData()),
		KeyCardNumber:   cert.CardNumber(),
		KeySerialNumber: base64.StdEncoding.EncodeToString(cert.SerialNumber()),
		KeySerialString: cert.SerialString(),
		KeySubject:      subject,
	}
	if e.includeRawOIDs && len(undefined) > 0 {
		m[KeyUndefinedAttr] = undefined
	}
	return m
}
