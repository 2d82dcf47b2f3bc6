package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDriverUnavailable is returned when no driver session could be created.
	ErrDriverUnavailable = errors.New("no card manager available")

	ErrEmptyCertificateList = errors.New("card inserted state requires at least one certificate")
)

// ErrorDetail is the payload of the ErrorState variant: either a
// SmartcardError or an InternalError.
type ErrorDetail interface {
	error
	isErrorDetail()
}

// SmartcardError is a fault reported by the reader or the PC/SC layer.
type SmartcardError struct {
	Message string
	Code    int64
}

func (e SmartcardError) Error() string {
	return fmt.Sprintf("smartcard error %d: %s", e.Code, e.Message)
}

func (SmartcardError) isErrorDetail() {}

// InternalError is a software fault. It carries no numeric code.
type InternalError struct {
	Message string
}

func (e InternalError) Error() string {
	return "internal error: " + e.Message
}

func (InternalError) isErrorDetail() {}
