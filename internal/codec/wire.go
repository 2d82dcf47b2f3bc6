package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Format selects how maps are framed on the wire.
type Format int

const (
	FormatJSON Format = iota
	FormatCBOR
)

// Websocket subprotocol names for each format.
const (
	SubprotocolJSON = "cardbridge.v1.json"
	SubprotocolCBOR = "cardbridge.v1.cbor"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// FormatForSubprotocol returns the format negotiated for a websocket
// subprotocol. Anything unrecognized, including none, is JSON.
func FormatForSubprotocol(subprotocol string) Format {
	if subprotocol == SubprotocolCBOR {
		return FormatCBOR
	}
	return FormatJSON
}

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Binary reports whether frames of this format are binary.
func (f Format) Binary() bool {
	return f == FormatCBOR
}

func (f Format) Marshal(v any) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.Marshal(v)
	case FormatCBOR:
		return encMode.Marshal(v)
	}
	return nil, fmt.Errorf("codec: unsupported format %v", f)
}

func (f Format) Unmarshal(data []byte, v any) error {
	switch f {
	case FormatJSON:
		return json.Unmarshal(data, v)
	case FormatCBOR:
		return decMode.Unmarshal(data, v)
	}
	return fmt.Errorf("codec: unsupported format %v", f)
}
