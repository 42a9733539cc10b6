// Package keys mantiene el set de API keys válidas del gateway.
//
// El set es inmutable: el refresher construye uno nuevo y lo publica con un
// swap atómico, de modo que los requests siempre ven un set completo.
package keys

// Directory es lo que el control de acceso necesita saber de las keys.
type Directory interface {
	// Ready indica si ya hay un set cargado.
	Ready() bool
	// Contains indica si key pertenece al set vigente.
	Contains(key string) bool
}

// Set es un conjunto inmutable de API keys.
type Set struct {
	m map[string]struct{}
}

// NewSet arma un Set. Ignora keys vacías y duplicadas.
func NewSet(list []string) *Set {
	m := make(map[string]struct{}, len(list))
	for _, k := range list {
		if k == "" {
			continue
		}
		m[k] = struct{}{}
	}
	return &Set{m: m}
}

func (s *Set) Contains(key string) bool {
	if s == nil || key == "" {
		return false
	}
	_, ok := s.m[key]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Static es un Directory fijo, cargado desde configuración. Siempre está listo.
type Static struct {
	set *Set
}

func NewStatic(list []string) *Static {
	return &Static{set: NewSet(list)}
}

func (s *Static) Ready() bool              { return true }
func (s *Static) Contains(key string) bool { return s.set.Contains(key) }
func (s *Static) Len() int                 { return s.set.Len() }

func (s *Static) Status() Status { return Status{Ready: true, Keys: s.set.Len()} }
