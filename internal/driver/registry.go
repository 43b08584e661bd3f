package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]Driver)
	primary    = make(map[string]Driver)
)

// Register makes a driver available under its name and aliases. It panics
// on a duplicate name, as database/sql does.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := append([]string{d.Name()}, d.Aliases()...)
	for _, n := range names {
		key := strings.ToLower(n)
		if _, dup := drivers[key]; dup {
			panic("driver: Register called twice for " + n)
		}
		drivers[key] = d
	}
	primary[d.Name()] = d
}

// Get returns the driver registered under name or one of its aliases.
func Get(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := drivers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown database type %q (available: %s)", name, strings.Join(namesLocked(), ", "))
	}
	return d, nil
}

// IsRegistered reports whether name resolves to a driver.
func IsRegistered(name string) bool {
	_, err := Get(name)
	return err == nil
}

// Canonicalize returns the primary name of the driver registered as name.
func Canonicalize(name string) string {
	d, err := Get(name)
	if err != nil {
		return name
	}
	return d.Name()
}

// Available returns the primary names of the registered drivers.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(primary))
	for n := range primary {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
