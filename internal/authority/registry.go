package authority

import "net"

// registry is the append-only set of endpoints that sent INIT, in arrival order.
type registry struct {
	order []net.Addr
	seen  map[string]struct{}
}

func newRegistry() registry {
	return registry{seen: map[string]struct{}{}}
}

// add reports whether addr was new.
func (r *registry) add(addr net.Addr) bool {
	key := addr.Network() + "|" + addr.String()
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	r.order = append(r.order, addr)
	return true
}

func (r *registry) len() int { return len(r.order) }

// list returns a copy safe to use after the lock is released.
func (r *registry) list() []net.Addr {
	return append([]net.Addr(nil), r.order...)
}
