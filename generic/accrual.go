/*
accrual.go - Accrual module interface and registry

PURPOSE:
  An AccrualModule computes how much a single day's slice of a time record
  contributes to one accrual type. Modules are pure: they know nothing about
  cascading, windows or persistence. The engine is generic over this one
  capability, so adding a new accrual type means registering a new module.

HOW IT WORKS:
  1. Domain packages implement AccrualModule (see worktime/accrual.go)
  2. They register modules on init() with RegisterModule
  3. The factory selects the enabled subset by type id

USAGE:
  // In worktime/types.go
  func init() {
      generic.RegisterModule(AnnualTargetHours{})
  }

  // In factory
  modules, err := factory.NewModuleFactory().Build([]string{"annual_target_hours"})

SEE ALSO:
  - window.go: Applies module contributions to accrual rows
  - worktime/accrual.go: Built-in modules
*/
package generic

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCRUAL MODULE - One strategy per accrual type
// =============================================================================

// AccrualModule computes a numeric contribution for one day's sub-interval.
type AccrualModule interface {
	// AccrualType identifies the window column this module writes to.
	AccrualType() AccrualType

	// ContributionFor returns the amount the interval adds to its day.
	ContributionFor(interval DayInterval) decimal.Decimal
}

// =============================================================================
// MODULE REGISTRY
// =============================================================================

var (
	moduleRegistry = make(map[AccrualTypeID]AccrualModule)
	registryMu     sync.RWMutex
)

// RegisterModule adds a module to the global registry, replacing any module
// previously registered for the same type id.
func RegisterModule(m AccrualModule) {
	registryMu.Lock()
	defer registryMu.Unlock()
	moduleRegistry[m.AccrualType().ID] = m
}

// LookupModule finds a registered module by type id. Returns nil if not found.
func LookupModule(id AccrualTypeID) AccrualModule {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return moduleRegistry[id]
}

// ListModules returns all registered modules ordered by type id.
func ListModules() []AccrualModule {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]AccrualModule, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AccrualType().ID < result[j].AccrualType().ID
	})
	return result
}

// AccrualTypes returns the types of the given modules, in order.
func AccrualTypes(modules []AccrualModule) []AccrualType {
	types := make([]AccrualType, len(modules))
	for i, m := range modules {
		types[i] = m.AccrualType()
	}
	return types
}
