// Package date provides a cached, thread-safe HTTP Date header value.
package date

import (
	"sync/atomic"
	"time"
)

// Layout is the IMF-fixdate format used by the Date header.
const Layout = "Mon, 02 Jan 2006 15:04:05 GMT"

var current atomic.Pointer[[]byte]

// StartTicker refreshes the cached value every 500ms until the returned stop
// function is called.
func StartTicker() func() {
	update()

	ticker := time.NewTicker(500 * time.Millisecond)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				update()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

func update() {
	b := Format(time.Now())
	current.Store(&b)
}

// Format renders t in the Date header format.
func Format(t time.Time) []byte {
	return t.UTC().AppendFormat(make([]byte, 0, len(Layout)), Layout)
}

// Current returns the cached Date header value, computing it directly when
// the ticker has not been started.
func Current() []byte {
	if p := current.Load(); p != nil {
		return *p
	}
	return Format(time.Now())
}
