package domain

// StateKind enumerates the CardState variants.
type StateKind int

const (
	KindUnknown StateKind = iota
	KindReadingFromCard
	KindReaderDisconnected
	KindReaderConnected
	KindUnknownCardInserted
	KindCardWithoutCertificatesInserted
	KindCardInserted
	KindError
)

func (k StateKind) String() string {
	switch k {
	case KindUnknown:
		return "Unknown"
	case KindReadingFromCard:
		return "ReadingFromCard"
	case KindReaderDisconnected:
		return "ReaderDisconnected"
	case KindReaderConnected:
		return "ReaderConnected"
	case KindUnknownCardInserted:
		return "UnknownCardInserted"
	case KindCardWithoutCertificatesInserted:
		return "CardWithoutCertificatesInserted"
	case KindCardInserted:
		return "CardInserted"
	case KindError:
		return "Error"
	}
	return "Invalid"
}

// CardState is the reader/card condition. Exactly one of the variant types
// in this file implements it.
type CardState interface {
	Kind() StateKind
	isCardState()
}

type Unknown struct{}
type ReadingFromCard struct{}
type ReaderDisconnected struct{}
type ReaderConnected struct{}
type UnknownCardInserted struct{}
type CardWithoutCertificatesInserted struct{}

func (Unknown) Kind() StateKind                         { return KindUnknown }
func (ReadingFromCard) Kind() StateKind                 { return KindReadingFromCard }
func (ReaderDisconnected) Kind() StateKind              { return KindReaderDisconnected }
func (ReaderConnected) Kind() StateKind                 { return KindReaderConnected }
func (UnknownCardInserted) Kind() StateKind             { return KindUnknownCardInserted }
func (CardWithoutCertificatesInserted) Kind() StateKind { return KindCardWithoutCertificatesInserted }

func (Unknown) isCardState()                         {}
func (ReadingFromCard) isCardState()                 {}
func (ReaderDisconnected) isCardState()              {}
func (ReaderConnected) isCardState()                 {}
func (UnknownCardInserted) isCardState()             {}
func (CardWithoutCertificatesInserted) isCardState() {}

// CardInserted holds at least one certificate when built with
// NewCardInserted. The zero value is not a valid state.
type CardInserted struct {
	certificates []Certificate
}

// NewCardInserted rejects an empty certificate list.
func NewCardInserted(certificates []Certificate) (CardInserted, error) {
	if len(certificates) == 0 {
		return CardInserted{}, ErrEmptyCertificateList
	}
	return CardInserted{certificates: append([]Certificate(nil), certificates...)}, nil
}

// CardStateForCertificates returns CardInserted, or
// CardWithoutCertificatesInserted when the list is empty.
func CardStateForCertificates(certificates []Certificate) CardState {
	state, err := NewCardInserted(certificates)
	if err != nil {
		return CardWithoutCertificatesInserted{}
	}
	return state
}

func (s CardInserted) Certificates() []Certificate {
	return append([]Certificate(nil), s.certificates...)
}

func (CardInserted) Kind() StateKind { return KindCardInserted }
func (CardInserted) isCardState()    {}

// ErrorState reports a reader or software fault as a regular state.
type ErrorState struct {
	Detail ErrorDetail
}

func NewSmartcardErrorState(message string, code int64) ErrorState {
	return ErrorState{Detail: SmartcardError{Message: message, Code: code}}
}

func NewInternalErrorState(message string) ErrorState {
	return ErrorState{Detail: InternalError{Message: message}}
}

func (ErrorState) Kind() StateKind { return KindError }
func (ErrorState) isCardState()    {}

// Equal reports whether two states are the same variant with the same data.
func Equal(a, b CardState) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case CardInserted:
		bv, ok := b.(CardInserted)
		if !ok || len(av.certificates) != len(bv.certificates) {
			return false
		}
		for i := range av.certificates {
			if !av.certificates[i].Equal(bv.certificates[i]) {
				return false
			}
		}
		return true
	case ErrorState:
		bv, ok := b.(ErrorState)
		return ok && av.Detail == bv.Detail
	}
	return true
}
