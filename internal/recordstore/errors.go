package recordstore

import "errors"

// ErrUnavailable is returned when the record-store service cannot be
// reached or answers with a non-success status. Callers surface it as a
// transient dependency failure; no retry is attempted here.
var ErrUnavailable = errors.New("record store unavailable")
