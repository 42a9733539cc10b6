// Package rpc reconoce la forma de los requests JSON-RPC que atraviesan el gateway.
//
// El gateway no interpreta el contenido de las llamadas: solo mira el nombre del
// método y los campos "key" y "params". Todo lo demás viaja intacto al nodo.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
)

// SyncingMethod es el único método aceptado como segundo elemento de un batch.
const SyncingMethod = "bcn_syncing"

// Call es la identidad de una llamada RPC extraída del body.
type Call struct {
	Method string          `json:"method"`
	Key    string          `json:"key"`
	Params json.RawMessage `json:"params,omitempty"`
}

// HasKey indica si el caller envió una API key.
func (c *Call) HasKey() bool {
	return c != nil && c.Key != ""
}

// Payload es el body crudo del request junto con la llamada extraída.
// Call es nil cuando la forma del body no está soportada.
type Payload struct {
	Body    []byte
	Call    *Call
	Batched bool
}

// Parse lee el body una sola vez y arma el Payload que recorre el pipeline.
func Parse(body []byte) *Payload {
	return &Payload{
		Body:    body,
		Call:    Extract(body),
		Batched: isArray(body),
	}
}

func isArray(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) > 0 && b[0] == '['
}

type ctxKey struct{}

// WithPayload inyecta el payload en el contexto.
func WithPayload(ctx context.Context, p *Payload) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PayloadFrom obtiene el payload del contexto. Retorna nil si no hay.
func PayloadFrom(ctx context.Context) *Payload {
	if v := ctx.Value(ctxKey{}); v != nil {
		if p, ok := v.(*Payload); ok {
			return p
		}
	}
	return nil
}

// CallFrom es un atajo para PayloadFrom(ctx).Call.
func CallFrom(ctx context.Context) *Call {
	if p := PayloadFrom(ctx); p != nil {
		return p.Call
	}
	return nil
}
