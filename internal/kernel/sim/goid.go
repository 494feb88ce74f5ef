package sim

import (
	"bytes"
	"runtime"
	"strconv"
)

// goid returns the calling goroutine's id, parsed from the runtime stack
// header ("goroutine N [running]:"). The sim needs a goroutine identity to
// answer CurrentTask without threading a handle through every call, the same
// job thread-local storage does in a C kernel port.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	frame := buf[:n]
	frame = bytes.TrimPrefix(frame, []byte("goroutine "))
	if i := bytes.IndexByte(frame, ' '); i >= 0 {
		frame = frame[:i]
	}
	id, err := strconv.ParseInt(string(frame), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
