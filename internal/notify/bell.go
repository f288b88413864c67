package notify

import (
	"io"
	"os"
	"sync"
)

// bell is the process-wide activity cue. It is created on first use and
// lives until the process exits.
var bell struct {
	once sync.Once
	mu   sync.Mutex
	out  io.Writer
}

// SetBellOutput redirects the cue. It only has an effect before the first
// Ring.
func SetBellOutput(w io.Writer) {
	bell.once.Do(func() { bell.out = w })
}

// Ring emits the terminal bell. Write errors are ignored.
func Ring() {
	bell.once.Do(func() { bell.out = os.Stderr })

	bell.mu.Lock()
	defer bell.mu.Unlock()
	_, _ = bell.out.Write([]byte{'\a'})
}
