package cache

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

// Rule asocia un método RPC con el TTL de sus respuestas.
type Rule struct {
	Method string
	TTL    time.Duration
}

// Policy decide qué métodos se cachean. Los métodos sin regla nunca se cachean.
type Policy struct {
	ttl map[string]time.Duration
}

func NewPolicy(rules []Rule) *Policy {
	p := &Policy{ttl: make(map[string]time.Duration, len(rules))}
	for _, r := range rules {
		if r.Method == "" || r.TTL <= 0 {
			continue
		}
		p.ttl[r.Method] = r.TTL
	}
	return p
}

// TTL retorna el TTL del método y si es cacheable.
func (p *Policy) TTL(method string) (time.Duration, bool) {
	if p == nil {
		return 0, false
	}
	d, ok := p.ttl[method]
	return d, ok
}

// Enabled indica si hay al menos un método cacheable.
func (p *Policy) Enabled() bool {
	return p != nil && len(p.ttl) > 0
}

const keyPrefix = "rpc:"

// Key arma la clave de cache: método + params compactados.
//
// Compactar solo quita espacios; el orden de las claves de un objeto se
// conserva, así que {"a":1,"b":2} y {"b":2,"a":1} son entradas distintas.
// Params ausentes y null comparten clave.
func Key(c *rpc.Call) string {
	var buf bytes.Buffer
	buf.WriteString(keyPrefix)
	buf.WriteString(c.Method)
	buf.WriteByte(':')

	params := bytes.TrimSpace(c.Params)
	if len(params) == 0 {
		buf.WriteString("null")
		return buf.String()
	}
	if err := json.Compact(&buf, params); err != nil {
		buf.Write(params)
	}
	return buf.String()
}
