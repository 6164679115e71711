package table

import "errors"

// ErrRange is returned when a position or range argument falls outside the
// table's current occupied range, matching table.h's assert-guarded
// preconditions (this port turns those into a returned error rather than
// an assertion, since library callers must be able to recover from a bad
// position without crashing the process).
var ErrRange = errors.New("position out of range")
