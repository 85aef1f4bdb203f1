package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

var fastJSON = sonic.ConfigDefault

func fastJSONMarshal(v any) ([]byte, error) {
	return fastJSON.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v any) error {
	return fastJSON.Unmarshal(data, v)
}

func init() {
	// Pretouch the per-message types so the first miner does not pay the
	// codegen cost. Failures only lose the warm-up.
	_ = sonic.Pretouch(reflect.TypeOf((*stratumRequest)(nil)).Elem())
	_ = sonic.Pretouch(reflect.TypeOf((*stratumResponse)(nil)).Elem())
	_ = sonic.Pretouch(reflect.TypeOf((*stratumNotification)(nil)).Elem())
	_ = sonic.Pretouch(reflect.TypeOf((*minimalNotification)(nil)).Elem())
}
