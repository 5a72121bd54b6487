// Package core provides the module system foundation for toolgate.
// Channels, the broker, and the gateway are modules: they register at
// compile time, receive their YAML config section, and are wired together
// through the AppContext service registry.
package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModuleID uniquely identifies a module, namespaced by dots
// (e.g. "channel.telegram", "gateway.http").
type ModuleID string

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is the module's unique identifier.
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is the minimal interface every module implements.
type Module interface {
	ModuleInfo() ModuleInfo
}

// Configurable is implemented by modules that accept YAML configuration.
// Called after instantiation and before Provision.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup after
// configuration: defaults, validation of raw config, service registration.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their configuration
// is complete. Called after Provision; must be read-only.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that start background work. Called
// after all modules are provisioned and validated.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that clean up resources. Called during
// shutdown in reverse order of Start.
type Stopper interface {
	Stop(ctx context.Context) error
}

var (
	modulesMu sync.RWMutex
	modules   = make(map[string]ModuleInfo)
)

// RegisterModule registers a module by instantiating it to read its
// ModuleInfo. It panics on duplicate or invalid registrations; intended to
// be called from init functions.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("core: module ID must not be empty")
	}
	if info.New == nil {
		panic(fmt.Sprintf("core: module %s: New must not be nil", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic(fmt.Sprintf("core: module already registered: %s", id))
	}
	modules[id] = info
}

// GetModule returns the ModuleInfo for the given ID.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	result := make([]ModuleInfo, 0, len(modules))
	for _, info := range modules {
		result = append(result, info)
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// resetModules clears the registry. Only for testing.
func resetModules() {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules = make(map[string]ModuleInfo)
}
