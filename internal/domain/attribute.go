package domain

import (
	"encoding/asn1"
)

type attributeKind uint8

const (
	kindUndefined attributeKind = iota
	kindCommonName
	kindSurname
	kindSerialNumber
	kindCountryName
	kindLocalityName
	kindStateOrProvinceName
	kindStreetAddress
	kindOrganizationName
	kindOrganizationalUnitName
	kindTitle
	kindDescription
	kindGivenName
	kindInitials
	kindGenerationQualifier
	kindPseudonym
	kindEmailAddress
	kindCardNumber
	kindRSAEncryption
	kindSHA1WithRSAEncryption
	kindSHA256WithRSAEncryption
	kindSHA384WithRSAEncryption
	kindSHA512WithRSAEncryption
)

// AttributeKey identifies one subject attribute. The known keys are the
// package-level values below; anything else is an undefined key that keeps
// the identifier it was read with.
type AttributeKey struct {
	kind attributeKind
	oid  string
}

var (
	CommonName              = AttributeKey{kind: kindCommonName}
	Surname                 = AttributeKey{kind: kindSurname}
	SerialNumber            = AttributeKey{kind: kindSerialNumber}
	CountryName             = AttributeKey{kind: kindCountryName}
	LocalityName            = AttributeKey{kind: kindLocalityName}
	StateOrProvinceName     = AttributeKey{kind: kindStateOrProvinceName}
	StreetAddress           = AttributeKey{kind: kindStreetAddress}
	OrganizationName        = AttributeKey{kind: kindOrganizationName}
	OrganizationalUnitName  = AttributeKey{kind: kindOrganizationalUnitName}
	Title                   = AttributeKey{kind: kindTitle}
	Description             = AttributeKey{kind: kindDescription}
	GivenName               = AttributeKey{kind: kindGivenName}
	Initials                = AttributeKey{kind: kindInitials}
	GenerationQualifier     = AttributeKey{kind: kindGenerationQualifier}
	Pseudonym               = AttributeKey{kind: kindPseudonym}
	EmailAddress            = AttributeKey{kind: kindEmailAddress}
	CardNumber              = AttributeKey{kind: kindCardNumber}
	RSAEncryption           = AttributeKey{kind: kindRSAEncryption}
	SHA1WithRSAEncryption   = AttributeKey{kind: kindSHA1WithRSAEncryption}
	SHA256WithRSAEncryption = AttributeKey{kind: kindSHA256WithRSAEncryption}
	SHA384WithRSAEncryption = AttributeKey{kind: kindSHA384WithRSAEncryption}
	SHA512WithRSAEncryption = AttributeKey{kind: kindSHA512WithRSAEncryption}
)

// attributeOIDs is the only place identifiers are bound to keys. New
// attributes are added here.
var attributeOIDs = map[string]AttributeKey{
	"2.5.4.3":               CommonName,
	"2.5.4.4":               Surname,
	"2.5.4.5":               SerialNumber,
	"2.5.4.6":               CountryName,
	"2.5.4.7":               LocalityName,
	"2.5.4.8":               StateOrProvinceName,
	"2.5.4.9":               StreetAddress,
	"2.5.4.10":              OrganizationName,
	"2.5.4.11":              OrganizationalUnitName,
	"2.5.4.12":              Title,
	"2.5.4.13":              Description,
	"2.5.4.42":              GivenName,
	"2.5.4.43":              Initials,
	"2.5.4.44":              GenerationQualifier,
	"2.5.4.65":              Pseudonym,
	"1.2.840.113549.1.9.1":  EmailAddress,
	"1.2.752.34.2.1":        CardNumber,
	"1.2.840.113549.1.1.1":  RSAEncryption,
	"1.2.840.113549.1.1.5":  SHA1WithRSAEncryption,
	"1.2.840.113549.1.1.11": SHA256WithRSAEncryption,
	"1.2.840.113549.1.1.12": SHA384WithRSAEncryption,
	"1.2.840.113549.1.1.13": SHA512WithRSAEncryption,
}

var keyOIDs = func() map[attributeKind]string {
	m := make(map[attributeKind]string, len(attributeOIDs))
	for oid, key := range attributeOIDs {
		m[key.kind] = oid
	}
	return m
}()

// UndefinedAttribute returns the escape key for an identifier outside the table.
func UndefinedAttribute(oid string) AttributeKey {
	return AttributeKey{kind: kindUndefined, oid: oid}
}

// AttributeKeyForOID maps a dotted identifier to its key, falling back to
// UndefinedAttribute.
func AttributeKeyForOID(oid string) AttributeKey {
	if key, ok := attributeOIDs[oid]; ok {
		return key
	}
	return UndefinedAttribute(oid)
}

// AttributeKeyFor is AttributeKeyForOID for a parsed identifier.
func AttributeKeyFor(oid asn1.ObjectIdentifier) AttributeKey {
	return AttributeKeyForOID(oid.String())
}

func (k AttributeKey) IsUndefined() bool {
	return k.kind == kindUndefined
}

// OID returns the dotted identifier of the key. For undefined keys it is the
// identifier the key was created with.
func (k AttributeKey) OID() string {
	if k.kind == kindUndefined {
		return k.oid
	}
	return keyOIDs[k.kind]
}

// SubjectAttribute is one (key, value) pair of a certificate subject.
type SubjectAttribute struct {
	Key   AttributeKey
	Value string
}
