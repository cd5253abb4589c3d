package clusterstore

import "github.com/fxamacker/cbor/v2"

func cborEncode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func cborDecode(b []byte, v any) error {
	return cbor.Unmarshal(b, v)
}
