package sandwichjson

import (
	"io"
	"runtime"

	"github.com/bytedance/sonic"
	jsoniter "github.com/json-iterator/go"
)

const UseSonic = runtime.GOARCH == "amd64" && runtime.GOOS == "linux"

var iter = jsoniter.ConfigCompatibleWithStandardLibrary

// Decoder reads successive JSON values from a stream.
type Decoder interface {
	Decode(v any) error
}

func Unmarshal(data []byte, v any) error {
	if UseSonic {
		return sonic.Unmarshal(data, v)
	}

	return iter.Unmarshal(data, v)
}

func Marshal(v any) ([]byte, error) {
	if UseSonic {
		return sonic.Marshal(v)
	}

	return iter.Marshal(v)
}

// NewDecoder returns a decoder for a long lived stream such as an inflated
// gateway connection. Streams always use jsoniter, it only reads what the
// current value needs.
func NewDecoder(reader io.Reader) Decoder {
	return iter.NewDecoder(reader)
}

func UnmarshalReader(reader io.Reader, v any) error {
	if UseSonic {
		return sonic.ConfigDefault.NewDecoder(reader).Decode(v)
	}

	return iter.NewDecoder(reader).Decode(v)
}
