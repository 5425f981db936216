package arrbox

import (
	"fmt"
	"sync"
)

// The registry maps format tags to drivers. It is populated by explicit
// Register calls in a fixed order before the first Create or Open,
// frozen by Initialize, and drained by Finalize. After Initialize,
// concurrent Create/Open calls only read it.
var registry struct {
	mu          sync.RWMutex
	drivers     map[FormatTag]Driver
	order       []FormatTag
	initialized bool
}

// Register makes a driver available under its format tag. Registration
// order matters: it breaks signature-length ties during sniffing and
// sets the Init/Shutdown hook order. Registering after Initialize, or
// registering a tag twice, is a programming error.
func Register(d Driver) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.initialized {
		return fmt.Errorf("arrbox: register %s: %w", d.Format(), ErrFrozen)
	}
	if registry.drivers == nil {
		registry.drivers = make(map[FormatTag]Driver)
	}
	tag := d.Format()
	if _, exists := registry.drivers[tag]; exists {
		return fmt.Errorf("arrbox: driver for format %q already registered", tag)
	}
	registry.drivers[tag] = d
	registry.order = append(registry.order, tag)
	return nil
}

// Initialize freezes the registry and runs every driver's Init hook in
// registration order. The first failure aborts setup and is returned;
// hooks that already ran are shut down again in reverse order.
func Initialize() error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.initialized {
		return nil
	}
	for i, tag := range registry.order {
		if err := registry.drivers[tag].Init(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = registry.drivers[registry.order[j]].Shutdown()
			}
			return fmt.Errorf("arrbox: initializing %s driver: %w", tag, err)
		}
	}
	registry.initialized = true
	return nil
}

// Finalize runs every driver's Shutdown hook in reverse registration
// order and empties the registry. It is called once at library shutdown;
// open sessions must be closed first.
func Finalize() error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	var first error
	for i := len(registry.order) - 1; i >= 0; i-- {
		if err := registry.drivers[registry.order[i]].Shutdown(); err != nil && first == nil {
			first = fmt.Errorf("arrbox: shutting down %s driver: %w", registry.order[i], err)
		}
	}
	registry.drivers = nil
	registry.order = nil
	registry.initialized = false
	return first
}

// Formats returns the registered format tags in registration order.
func Formats() []FormatTag {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return append([]FormatTag(nil), registry.order...)
}

// List returns the registered driver names in registration order.
func List() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.order))
	for _, tag := range registry.order {
		names = append(names, registry.drivers[tag].Info().Name)
	}
	return names
}

// lookup returns the driver for a tag.
func lookup(tag FormatTag) (Driver, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	d, ok := registry.drivers[tag]
	if !ok {
		return nil, fmt.Errorf("arrbox: format %q: %w", tag, ErrUnsupportedFormat)
	}
	return d, nil
}

// signatures returns the routing metadata of every registered driver in
// registration order, for the pure detection function.
func signatures() []Signature {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	sigs := make([]Signature, 0, len(registry.order))
	for _, tag := range registry.order {
		info := registry.drivers[tag].Info()
		sigs = append(sigs, Signature{
			Tag:         tag,
			Magic:       info.Magic,
			Schemes:     info.Schemes,
			CreateFlags: info.CreateFlags,
			ReadOnly:    info.ReadOnly,
		})
	}
	return sigs
}
