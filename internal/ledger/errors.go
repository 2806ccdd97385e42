package ledger

import "errors"

// ErrUnavailable — Redis недоступен.
var ErrUnavailable = errors.New("ledger unavailable")
