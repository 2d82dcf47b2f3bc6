package smartcard

import (
	"errors"
	"fmt"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/encoding/tlv"
)

var pivAID = []byte{0xA0, 0x00, 0x00, 0x03, 0x08}

const (
	insSelect      = 0xA4
	insGetDataPIV  = 0xCB
	insGetResponse = 0xC0

	tagObjectID = 0x5C

	// maxResponseChain bounds the GET RESPONSE rounds of one command.
	maxResponseChain = 64
)

// StatusError is a card response with a status word other than 9000.
type StatusError struct {
	SW1, SW2 byte
}

func (e StatusError) Error() string {
	return fmt.Sprintf("card returned SW=%02X%02X", e.SW1, e.SW2)
}

// NotFound reports SW 6A82 (file or application not found).
func (e StatusError) NotFound() bool {
	return e.SW1 == 0x6A && e.SW2 == 0x82
}

var (
	errShortResponse = errors.New("invalid response")
	errResponseChain = errors.New("response chain too long")
)

// expected maps a status word length byte to Ne, where 00 means 256.
func expected(sw2 byte) int {
	if sw2 == 0 {
		return 256
	}
	return int(sw2)
}

// transmit sends cmd and collects the full response, following 61xx
// GET RESPONSE chaining and one 6Cxx wrong-length retry.
func transmit(card Card, cmd *iso.CAPDU) ([]byte, error) {
	rsp, err := send(card, cmd)
	if err != nil {
		return nil, err
	}

	var data []byte
	retried := false
	for rounds := 0; ; rounds++ {
		if rounds > maxResponseChain {
			return nil, errResponseChain
		}
		if len(rsp) < 2 {
			return nil, errShortResponse
		}
		r, err := iso.ParseRAPDU(rsp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errShortResponse, err)
		}
		data = append(data, r.Data...)

		switch {
		case r.SW1 == 0x90 && r.SW2 == 0x00:
			return data, nil
		case r.SW1 == 0x61:
			rsp, err = send(card, &iso.CAPDU{Ins: insGetResponse, Ne: expected(r.SW2)})
			if err != nil {
				return nil, fmt.Errorf("GET RESPONSE failed: %w", err)
			}
		case r.SW1 == 0x6C && !retried:
			retried = true
			retry := *cmd
			retry.Ne = expected(r.SW2)
			rsp, err = send(card, &retry)
			if err != nil {
				return nil, err
			}
		default:
			return nil, StatusError{SW1: r.SW1, SW2: r.SW2}
		}
	}
}

func send(card Card, cmd *iso.CAPDU) ([]byte, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	return card.Transmit(raw)
}

func selectCommand() *iso.CAPDU {
	return &iso.CAPDU{Ins: insSelect, P1: 0x04, Data: pivAID}
}

// getDataCommand builds a PIV GET DATA for one data object, named by its
// three byte tag.
func getDataCommand(object []byte) (*iso.CAPDU, error) {
	body, err := tlv.EncodeBER(tlv.New(tagObjectID, object))
	if err != nil {
		return nil, err
	}
	return &iso.CAPDU{Ins: insGetDataPIV, P1: 0x3F, P2: 0xFF, Data: body, Ne: 256}, nil
}

func selectPIV(card Card) error {
	_, err := transmit(card, selectCommand())
	return err
}

func getData(card Card, object []byte) ([]byte, error) {
	cmd, err := getDataCommand(object)
	if err != nil {
		return nil, err
	}
	return transmit(card, cmd)
}
