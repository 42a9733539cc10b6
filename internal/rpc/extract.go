package rpc

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Campos que el gateway lee de una llamada. Se comparan exactos: una variante
// con otras mayúsculas ("Method", "PARAMS") hace que la llamada se rechace,
// porque el nodo podría leer la variante en lugar del campo autorizado.
const (
	fieldMethod = "method"
	fieldKey    = "key"
	fieldParams = "params"
)

var callFields = []string{fieldMethod, fieldKey, fieldParams}

// Extract normaliza el body de un request a una Call.
//
// Un objeto JSON es la llamada en sí. Un array solo se acepta con la forma
// exacta [call, {"method":"bcn_syncing"}]; cualquier otro array, un body vacío
// o un JSON inválido retornan nil para que no se puedan colar métodos no
// permitidos dentro de un batch.
func Extract(body []byte) *Call {
	b := bytes.TrimSpace(body)
	if len(b) == 0 {
		return nil
	}

	switch b[0] {
	case '{':
		return decodeCall(b)
	case '[':
		var batch []json.RawMessage
		if err := json.Unmarshal(b, &batch); err != nil {
			return nil
		}
		if len(batch) != 2 {
			return nil
		}
		meta := decodeCall(batch[1])
		if meta == nil || meta.Method != SyncingMethod {
			return nil
		}
		return decodeCall(batch[0])
	default:
		return nil
	}
}

// decodeCall lee method, key y params con nombres exactos. Retorna nil si raw
// no es un objeto, si algún campo tiene el tipo equivocado o si hay variantes
// de mayúsculas de esos nombres.
func decodeCall(raw json.RawMessage) *Call {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	if hasFieldVariant(obj) {
		return nil
	}

	c := &Call{}
	if v, ok := obj[fieldMethod]; ok {
		if err := json.Unmarshal(v, &c.Method); err != nil {
			return nil
		}
	}
	if v, ok := obj[fieldKey]; ok {
		if err := json.Unmarshal(v, &c.Key); err != nil {
			return nil
		}
	}
	if v, ok := obj[fieldParams]; ok && !isNullJSON(v) {
		c.Params = v
	}
	return c
}

func hasFieldVariant(obj map[string]json.RawMessage) bool {
	for name := range obj {
		for _, f := range callFields {
			if name != f && strings.EqualFold(name, f) {
				return true
			}
		}
	}
	return false
}

func isNullJSON(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
