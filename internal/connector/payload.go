package connector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ParseValue extracts the numeric reading from an MQTT payload. Accepted
// forms, in order: a JSON object with a numeric "value" field, a JSON object
// whose first top-level numeric field (in document order) is used, or a bare
// number. Anything else is a malformed reading.
func ParseValue(payload []byte) (float64, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return 0, errors.New("empty payload")
	}

	if trimmed[0] != '{' {
		v, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return 0, fmt.Errorf("payload is neither a JSON object nor a number: %q", trimmed)
		}
		return v, nil
	}

	var doc map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("malformed JSON payload: %w", err)
	}

	if raw, ok := doc["value"]; ok {
		num, ok := raw.(json.Number)
		if !ok {
			return 0, fmt.Errorf(`field "value" is not numeric: %v`, raw)
		}
		v, err := num.Float64()
		if err != nil {
			return 0, fmt.Errorf(`field "value" is not numeric: %w`, err)
		}
		return v, nil
	}

	if v, ok := firstNumericField(trimmed); ok {
		return v, nil
	}

	return 0, errors.New("no numeric field in payload")
}

// firstNumericField walks the object's top-level fields in document order
// and returns the first numeric one. Nested structures are skipped whole.
func firstNumericField(data []byte) (float64, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return 0, false
	}

	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return 0, false
		}

		tok, err := dec.Token()
		if err != nil {
			return 0, false
		}

		switch v := tok.(type) {
		case json.Number:
			f, err := v.Float64()
			if err == nil {
				return f, true
			}
		case json.Delim:
			if v == '{' || v == '[' {
				if !skipNested(dec) {
					return 0, false
				}
			}
		}
	}

	return 0, false
}

func skipNested(dec *json.Decoder) bool {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return true
}
