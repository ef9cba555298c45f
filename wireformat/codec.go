package wireformat

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wireformat: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		MaxNestedLevels:  16,
		MaxArrayElements: 4096,
		MaxMapPairs:      64,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wireformat: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// Marshal encodes v in canonical CBOR.
func Marshal(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, &domainerrors.WireFormatError{Operation: "marshal", Type: fmt.Sprintf("%T", v), Err: err}
	}
	return data, nil
}

// Unmarshal decodes CBOR data into v. An empty payload decodes as the zero value.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return &domainerrors.WireFormatError{Operation: "unmarshal", Type: fmt.Sprintf("%T", v), Err: err}
	}
	return nil
}
