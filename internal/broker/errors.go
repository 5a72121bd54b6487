package broker

import "errors"

// ErrDraining is returned when a request arrives after Drain started.
var ErrDraining = errors.New("broker: draining, not accepting requests")
