package proto

import (
	"github.com/ugorji/go/codec"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of Codec.
const CodecName = "msgpack"

var msgpackHandle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	h.Canonical = true
	h.WriteExt = true
	h.RawToString = true
	return h
}

// Codec implements encoding.Codec with msgpack.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal ...
func (Codec) Marshal(v interface{}) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

// Unmarshal ...
func (Codec) Unmarshal(data []byte, v interface{}) error {
	return codec.NewDecoderBytes(data, msgpackHandle).Decode(v)
}

// Name ...
func (Codec) Name() string {
	return CodecName
}

// Marshal is a shortcut for Codec{}.Marshal.
func Marshal(v interface{}) ([]byte, error) {
	return Codec{}.Marshal(v)
}

// Unmarshal is a shortcut for Codec{}.Unmarshal.
func Unmarshal(data []byte, v interface{}) error {
	return Codec{}.Unmarshal(data, v)
}
