package regbus

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Open initialises the host drivers, opens the named I2C bus ("1",
// "/dev/i2c-1", or "" for the first bus found) and returns a Transport for
// addr. Any failure to open or claim the bus matches ErrPermission.
func Open(busName string, addr uint8) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, &OpenError{Bus: busName, Addr: addr, Err: errors.Wrap(err, "host init")}
	}

	b, err := i2creg.Open(busName)
	if err != nil {
		return nil, &OpenError{Bus: busName, Addr: addr, Err: errors.Wrapf(err, "open i2c bus %q", busName)}
	}

	t, err := New(b, b.String(), addr, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return t, nil
}
