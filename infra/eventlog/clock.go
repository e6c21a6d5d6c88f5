package eventlog

import "time"

// Now returns UTC wall time in UNIX nanoseconds. This is the timestamp
// source stamped onto every engine event.
func Now() uint64 {
	return uint64(time.Now().UnixNano())
}
