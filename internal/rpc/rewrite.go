package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedBody se retorna cuando el body no es ni objeto ni array JSON.
var ErrUnsupportedBody = errors.New("rpc: body is not a JSON object or array")

// RewriteKey reemplaza el campo "key" del objeto (o de cada elemento del array)
// por key. El resto de los campos se conserva.
func RewriteKey(body []byte, key string) ([]byte, error) {
	b := bytes.TrimSpace(body)
	if len(b) == 0 {
		return nil, ErrUnsupportedBody
	}

	encKey, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}

	switch b[0] {
	case '{':
		obj, err := withKey(b, encKey)
		if err != nil {
			return nil, err
		}
		return json.Marshal(obj)
	case '[':
		var batch []json.RawMessage
		if err := json.Unmarshal(b, &batch); err != nil {
			return nil, fmt.Errorf("rpc: decode batch: %w", err)
		}
		out := make([]map[string]json.RawMessage, 0, len(batch))
		for i, item := range batch {
			obj, err := withKey(item, encKey)
			if err != nil {
				return nil, fmt.Errorf("rpc: batch item %d: %w", i, err)
			}
			out = append(out, obj)
		}
		return json.Marshal(out)
	default:
		return nil, ErrUnsupportedBody
	}
}

func withKey(raw json.RawMessage, encKey []byte) (map[string]json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("rpc: decode call: %w", err)
	}
	if obj == nil {
		// "null" decodifica a un map nil
		obj = map[string]json.RawMessage{}
	}
	// variantes como "Key" se descartan: solo viaja la key del nodo
	for name := range obj {
		if name != fieldKey && strings.EqualFold(name, fieldKey) {
			delete(obj, name)
		}
	}
	obj[fieldKey] = encKey
	return obj, nil
}
