package chargepoint

import (
	"sync"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/pkg/errors"
)

var (
	ErrTooManyProfiles = errors.New("too many charging profiles installed")
	ErrStackLevel      = errors.New("charging profile stack level out of range")
)

// Assignment binds a charging profile to the whole charge point or to one connector.
type Assignment struct {
	Global    bool // connector 0
	Evse      int
	Connector int
	Flat      int // protocol connector id, 0 when Global
	Profile   *types.ChargingProfile
}

func (a Assignment) sameSlot(other Assignment) bool {
	if a.Profile.ChargingProfileId == other.Profile.ChargingProfileId {
		return true
	}

	return a.Global == other.Global && a.Flat == other.Flat &&
		a.Profile.ChargingProfilePurpose == other.Profile.ChargingProfilePurpose &&
		a.Profile.StackLevel == other.Profile.StackLevel
}

// ClearFilter selects profiles to remove. A nil or empty criterion does not constrain.
type ClearFilter struct {
	ID         *int
	Connector  *int // protocol connector id, 0 matches every assignment
	Purpose    types.ChargingProfilePurposeType
	StackLevel *int
}

func (f ClearFilter) matches(a Assignment) bool {
	if f.ID != nil && a.Profile.ChargingProfileId != *f.ID {
		return false
	}
	if f.Connector != nil && *f.Connector != 0 && (a.Global || a.Flat != *f.Connector) {
		return false
	}
	if f.Purpose != "" && a.Profile.ChargingProfilePurpose != f.Purpose {
		return false
	}
	if f.StackLevel != nil && a.Profile.StackLevel != *f.StackLevel {
		return false
	}

	return true
}

type Profiles struct {
	mu    sync.RWMutex
	items []Assignment
}

func NewProfiles() *Profiles {
	return &Profiles{}
}

// Add installs the assignment, replacing a profile with the same id or the same
// scope, purpose and stack level. At most maxInstalled profiles are kept per scope.
func (p *Profiles) Add(assignment Assignment, maxStackLevel, maxInstalled int) error {
	if assignment.Profile == nil {
		return errors.New("missing charging profile")
	}
	if assignment.Profile.StackLevel < 0 || assignment.Profile.StackLevel > maxStackLevel {
		return errors.Wrapf(ErrStackLevel, "stack level %d, max %d", assignment.Profile.StackLevel, maxStackLevel)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	kept := make([]Assignment, 0, len(p.items)+1)
	inScope := 0
	for _, item := range p.items {
		if item.sameSlot(assignment) {
			continue
		}
		if item.Global == assignment.Global && item.Flat == assignment.Flat {
			inScope++
		}
		kept = append(kept, item)
	}
	if inScope >= maxInstalled {
		return errors.Wrapf(ErrTooManyProfiles, "%d installed, max %d", inScope, maxInstalled)
	}

	p.items = append(kept, assignment)

	return nil
}

// Applicable returns the global profiles and the ones scoped to the protocol connector id.
func (p *Profiles) Applicable(flat int) []types.ChargingProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var profiles []types.ChargingProfile
	for _, item := range p.items {
		if item.Global || item.Flat == flat {
			profiles = append(profiles, *item.Profile)
		}
	}

	return profiles
}

// Clear removes every assignment matching the filter and returns how many were removed.
func (p *Profiles) Clear(filter ClearFilter) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.items[:0]
	removed := 0
	for _, item := range p.items {
		if filter.matches(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	p.items = kept

	return removed
}

func (p *Profiles) All() []Assignment {
	p.mu.RLock()
	defer p.mu.RUnlock()

	items := make([]Assignment, len(p.items))
	copy(items, p.items)

	return items
}
