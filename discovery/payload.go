package discovery

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/goccy/go-json"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var ErrNotObject = errors.New("payload is not a JSON object")
var ErrMissingField = errors.New("required field missing")
var ErrInvalidUTF8 = errors.New("payload is not valid UTF-8")
var ErrTrailingData = errors.New("data after JSON object")

// RequiredFields have to be present in JSON telemetry before device is announced
var RequiredFields = []string{"gastotal", "value"}

type ValueKind int

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindBool
	// KindOther covers nested objects and arrays, only presence of those matters
	KindOther
)

type Value struct {
	Kind   ValueKind
	Number float64
	String string
	Bool   bool
}

// Float parses value the same way the announcement template does: strings get decimal comma replaced before parsing
func (v Value) Float() (float64, error) {
	switch v.Kind {
	case KindNumber:
		return v.Number, nil
	case KindString:
		return strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(v.String, ",", ".")), 64)
	case KindBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("value of kind %d is not numeric", v.Kind)
}

// Telemetry is a decoded JSON telemetry object
type Telemetry map[string]Value

// DecodeTelemetry decodes raw payload into typed key-value map
func DecodeTelemetry(raw []byte) (Telemetry, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("error decoding telemetry: %w", ErrInvalidUTF8)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("error decoding telemetry: %w", err)
	}
	var extra interface{}
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decoding telemetry: %w", ErrTrailingData)
	}
	if m == nil {
		return nil, ErrNotObject
	}
	t := make(Telemetry, len(m))
	for k, v := range m {
		t[k] = toValue(v)
	}
	return t, nil
}

func toValue(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Value{Kind: KindString, String: val.String()}
		}
		return Value{Kind: KindNumber, Number: f}
	case float64:
		return Value{Kind: KindNumber, Number: val}
	case string:
		return Value{Kind: KindString, String: val}
	case bool:
		return Value{Kind: KindBool, Bool: val}
	}
	return Value{Kind: KindOther}
}

func (t Telemetry) Get(key string) (Value, bool) {
	v, ok := t[key]
	return v, ok
}

// reading formats numeric value of key for logs
func (t Telemetry) reading(key string) string {
	v, ok := t.Get(key)
	if !ok {
		return "-"
	}
	f, err := v.Float()
	if err != nil {
		return "?"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Validate checks presence of RequiredFields
func (t Telemetry) Validate() error {
	for _, k := range RequiredFields {
		if _, ok := t[k]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingField, k)
		}
	}
	return nil
}

func isTriggerField(key string) bool {
	for _, k := range RequiredFields {
		if k == key {
			return true
		}
	}
	return false
}
