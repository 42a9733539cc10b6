// Package access decide si una llamada RPC puede llegar al nodo.
package access

import (
	"errors"

	"github.com/dropDatabas3/rpcgate/internal/keys"
	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

var (
	// ErrMethodNotAvailable: body no soportado o método fuera de la allow-list.
	ErrMethodNotAvailable = errors.New("method not available")
	// ErrNotStarted: el directorio de keys todavía no completó su primera carga. Es reintentable.
	ErrNotStarted = errors.New("proxy is not started")
	// ErrInvalidKey: la key no pertenece al set vigente.
	ErrInvalidKey = errors.New("API key is invalid")
)

// CheckedPolicy habilita métodos puntuales para una key concreta, por fuera de la allow-list general.
type CheckedPolicy struct {
	Methods []string
	Key     string
}

// Policy es la configuración estática del controlador.
type Policy struct {
	Methods []string
	PrivKey string
	Checked CheckedPolicy
}

// Controller aplica la Policy usando el Directory de keys.
type Controller struct {
	methods    map[string]struct{}
	checked    map[string]struct{}
	checkedKey string
	privKey    string
	dir        keys.Directory
}

func NewController(p Policy, dir keys.Directory) *Controller {
	return &Controller{
		methods:    toSet(p.Methods),
		checked:    toSet(p.Checked.Methods),
		checkedKey: p.Checked.Key,
		privKey:    p.PrivKey,
		dir:        dir,
	}
}

// Authorize retorna nil si la llamada está permitida. El orden de los chequeos
// importa: los bypass (checked y privileged) no dependen del directorio y
// funcionan aunque todavía no esté listo.
func (c *Controller) Authorize(call *rpc.Call) error {
	if call == nil {
		return ErrMethodNotAvailable
	}
	if c.checkedKey != "" && call.Key == c.checkedKey {
		if _, ok := c.checked[call.Method]; ok {
			return nil
		}
	}
	if _, ok := c.methods[call.Method]; !ok {
		return ErrMethodNotAvailable
	}
	if c.IsPrivileged(call.Key) {
		return nil
	}
	if c.dir == nil || !c.dir.Ready() {
		return ErrNotStarted
	}
	if !c.dir.Contains(call.Key) {
		return ErrInvalidKey
	}
	return nil
}

// IsPrivileged indica si key es la key "god". Una key vacía nunca lo es.
func (c *Controller) IsPrivileged(key string) bool {
	return c.privKey != "" && key == c.privKey
}

// MethodAllowed indica si el método está en la allow-list general.
func (c *Controller) MethodAllowed(method string) bool {
	_, ok := c.methods[method]
	return ok
}

func toSet(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, v := range list {
		m[v] = struct{}{}
	}
	return m
}
