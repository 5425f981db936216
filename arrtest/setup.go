package arrtest

import (
	"sync"
	"testing"

	"github.com/nuln/arrbox/drivers"
)

var initOnce sync.Once

// InitDrivers registers and initializes the stock drivers once per test
// binary. The registry is process-global, so driver tests go through
// here instead of calling drivers.Init themselves.
func InitDrivers(t *testing.T) {
	t.Helper()
	initOnce.Do(func() {
		if err := drivers.Init(); err != nil {
			t.Fatalf("initializing drivers: %v", err)
		}
	})
}
