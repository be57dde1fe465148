package regbus

import "sync"

type claimKey struct {
	bus  string
	addr uint8
}

// claims tracks the (bus, address) pairs owned by live transports. Only one
// Transport may address a device at a time.
var claims = struct {
	sync.Mutex
	held map[claimKey]struct{}
}{held: make(map[claimKey]struct{})}

func claim(bus string, addr uint8) error {
	claims.Lock()
	defer claims.Unlock()
	k := claimKey{bus, addr}
	if _, ok := claims.held[k]; ok {
		return ErrHandleInUse
	}
	claims.held[k] = struct{}{}
	return nil
}

func release(bus string, addr uint8) {
	claims.Lock()
	defer claims.Unlock()
	delete(claims.held, claimKey{bus, addr})
}

// Claimed reports whether a live Transport owns the (bus, address) pair.
func Claimed(bus string, addr uint8) bool {
	claims.Lock()
	defer claims.Unlock()
	_, ok := claims.held[claimKey{bus, addr}]
	return ok
}
