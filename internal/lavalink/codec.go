// internal/lavalink/codec.go
package lavalink

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Codec serializes protocol messages. Both implementations must be
// semantically identical; the choice is made once at startup and never
// branches at call sites.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// NewCodec returns the codec for the given name: "std" (default) or "sonic".
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "std":
		return stdCodec{}, nil
	case "sonic":
		return sonicCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (want std or sonic)", name)
	}
}

type stdCodec struct{}

func (stdCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (stdCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (stdCodec) Name() string                    { return "std" }

type sonicCodec struct{}

func (sonicCodec) Marshal(v any) ([]byte, error)   { return sonic.Marshal(v) }
func (sonicCodec) Unmarshal(b []byte, v any) error { return sonic.Unmarshal(b, v) }
func (sonicCodec) Name() string                    { return "sonic" }
