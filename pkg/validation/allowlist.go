package validation

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

// Allowlist accepts only fillers that were explicitly allowed
type Allowlist struct {
	mu      sync.RWMutex
	fillers map[common.Address]struct{}
}

// NewAllowlist creates an allowlist seeded with fillers
func NewAllowlist(fillers ...common.Address) *Allowlist {
	a := &Allowlist{fillers: make(map[common.Address]struct{}, len(fillers))}
	for _, f := range fillers {
		a.fillers[f] = struct{}{}
	}
	return a
}

// Allow adds filler to the list
func (a *Allowlist) Allow(filler common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fillers[filler] = struct{}{}
}

// Revoke removes filler from the list
func (a *Allowlist) Revoke(filler common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.fillers, filler)
}

func (a *Allowlist) allowed(filler common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.fillers[filler]
	return ok
}

func (a *Allowlist) Validate(filler common.Address, _ *models.ResolvedOrder, _ uint64) bool {
	return a.allowed(filler)
}

func (a *Allowlist) ValidateCrossChain(filler common.Address, _ *models.ResolvedCrossChainOrder, _ uint64) bool {
	return a.allowed(filler)
}
