package types

import "errors"

// ErrNotEnoughValueIn is returned when a transaction's spent value plus any
// shielded inflow is less than its declared outputs plus shielded outflow.
var ErrNotEnoughValueIn = errors.New("types: value_in < value_out")
