package roomdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"otogi-roomdb/pkg/otogi"
)

// maxExactInteger is the largest integer magnitude float64 holds exactly.
const maxExactInteger = 1 << 53

// canonicalValue converts value to the shape it has after a JSON round trip,
// so values compare equal to what the room state returns.
//
// Numbers become float64 unless they are integers float64 cannot hold
// exactly. Those stay int64, or json.Number beyond the int64 range.
func canonicalValue(value any) (any, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w: %w", otogi.ErrInvalidValue, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode value: %w: %w", otogi.ErrInvalidValue, err)
	}

	return normalizeNumbers(decoded)
}

func normalizeNumbers(value any) (any, error) {
	switch typed := value.(type) {
	case json.Number:
		return normalizeNumber(typed)
	case map[string]any:
		for key, item := range typed {
			normalized, err := normalizeNumbers(item)
			if err != nil {
				return nil, err
			}
			typed[key] = normalized
		}
		return typed, nil
	case []any:
		for index, item := range typed {
			normalized, err := normalizeNumbers(item)
			if err != nil {
				return nil, err
			}
			typed[index] = normalized
		}
		return typed, nil
	default:
		return value, nil
	}
}

func normalizeNumber(number json.Number) (any, error) {
	rat, ok := new(big.Rat).SetString(number.String())
	if !ok {
		return nil, fmt.Errorf("number %q: %w", number, otogi.ErrInvalidValue)
	}
	if !rat.IsInt() {
		value, _ := rat.Float64()
		return value, nil
	}

	integer := rat.Num()
	if !integer.IsInt64() {
		return json.Number(integer.String()), nil
	}
	value := integer.Int64()
	if value >= -maxExactInteger && value <= maxExactInteger {
		return float64(value), nil
	}

	return value, nil
}

func canonicalContent(content otogi.StateContent) (otogi.StateContent, error) {
	if len(content) == 0 {
		return otogi.StateContent{}, nil
	}

	decoded, err := canonicalValue(map[string]any(content))
	if err != nil {
		return nil, err
	}
	mapping, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("state content is not a mapping: %w", otogi.ErrInvalidValue)
	}

	return otogi.StateContent(mapping), nil
}

// overlay replaces keys of current with keys of incoming, one level deep.
func overlay(current otogi.StateContent, incoming otogi.StateContent) otogi.StateContent {
	merged := current.Clone()
	for key, value := range incoming {
		merged[key] = value
	}

	return merged
}

func sameContent(left otogi.StateContent, right otogi.StateContent) bool {
	if len(left) == 0 && len(right) == 0 {
		return true
	}

	return reflect.DeepEqual(left, right)
}
