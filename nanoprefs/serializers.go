package nanoprefs

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"gopkg.in/yaml.v3"
)

// Serializer conversions declare their field Unsupported: a preference UI
// cannot bind a structured value directly. Pass WithPreferenceType to
// override.

func opaque[V any](prefix string, opts []TypeOption) []TypeOption {
	name := prefix + "<" + reflect.TypeFor[V]().String() + ">"
	return append([]TypeOption{Unsupported(name)}, opts...)
}

// JSON stores a value as JSON text.
func JSON[T any](inner Node[string], opts ...TypeOption) Node[T] {
	onRead := func(s string) (T, error) {
		var v T
		err := json.Unmarshal([]byte(s), &v)
		return v, err
	}
	onSave := func(v T) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	}
	return Convert(inner, onRead, onSave, opaque[T]("JSON", opts)...)
}

// YAML stores a value as a YAML document.
func YAML[T any](inner Node[string], opts ...TypeOption) Node[T] {
	onRead := func(s string) (T, error) {
		var v T
		err := yaml.Unmarshal([]byte(s), &v)
		return v, err
	}
	onSave := func(v T) (string, error) {
		data, err := yaml.Marshal(v)
		return string(data), err
	}
	return Convert(inner, onRead, onSave, opaque[T]("YAML", opts)...)
}

// Proto stores a protobuf message in its binary wire format. M must be a
// pointer to a generated message type.
func Proto[M proto.Message](inner Node[[]byte], opts ...TypeOption) Node[M] {
	onRead := func(b []byte) (M, error) {
		m := newMessage[M]()
		err := proto.Unmarshal(b, m)
		return m, err
	}
	onSave := func(m M) ([]byte, error) {
		return proto.Marshal(m)
	}
	return Convert(inner, onRead, onSave, opaque[M]("Proto", opts)...)
}

func newMessage[M proto.Message]() M {
	t := reflect.TypeFor[M]()
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface().(M)
	}
	var zero M
	return zero
}

// Base64 stores bytes as standard base64 text.
func Base64(inner Node[string], opts ...TypeOption) Node[[]byte] {
	return Convert(inner,
		base64.StdEncoding.DecodeString,
		func(b []byte) (string, error) { return base64.StdEncoding.EncodeToString(b), nil },
		opaque[[]byte]("Base64", opts)...)
}

var zstdCodec = sync.OnceValues(func() (*zstdPair, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &zstdPair{enc: enc, dec: dec}, nil
})

type zstdPair struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Zstd compresses bytes with zstandard before handing them to inner.
func Zstd(inner Node[[]byte], opts ...TypeOption) Node[[]byte] {
	onRead := func(b []byte) ([]byte, error) {
		codec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return codec.dec.DecodeAll(b, nil)
	}
	onSave := func(b []byte) ([]byte, error) {
		codec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return codec.enc.EncodeAll(b, nil), nil
	}
	return Convert(inner, onRead, onSave, opaque[[]byte]("Zstd", opts)...)
}

// IntSlice stores a list of ints as comma-separated decimal text.
func IntSlice(inner Node[string], opts ...TypeOption) Node[[]int] {
	onRead := func(s string) ([]int, error) {
		if s == "" {
			return []int{}, nil
		}
		parts := strings.Split(s, ",")
		out := make([]int, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	}
	onSave := func(v []int) (string, error) {
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ","), nil
	}
	return Convert(inner, onRead, onSave, opaque[[]int]("IntSlice", opts)...)
}

// Float64Bits stores a float64 losslessly as the bits of a long.
func Float64Bits(inner Node[int64], opts ...TypeOption) Node[float64] {
	return Convert(inner,
		func(l int64) (float64, error) { return math.Float64frombits(uint64(l)), nil },
		func(f float64) (int64, error) { return int64(math.Float64bits(f)), nil },
		opaque[float64]("Float64Bits", opts)...)
}

// Time stores an instant as RFC 3339 text with nanoseconds.
func Time(inner Node[string], opts ...TypeOption) Node[time.Time] {
	return Convert(inner,
		func(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) },
		func(t time.Time) (string, error) { return t.Format(time.RFC3339Nano), nil },
		opaque[time.Time]("Time", opts)...)
}
