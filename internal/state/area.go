package state

import (
	"fmt"
	"slices"

	"github.com/roach88/npu/internal/ir"
)

// AreaParams is per-area propagation metadata.
type AreaParams struct {
	ID   ir.AreaID `yaml:"id" json:"id"`
	Name string    `yaml:"name" json:"name"`

	// PSPUniform gives every outgoing synapse of a source in this area the
	// full contribution. When false the contribution is divided by the
	// source's valid outgoing synapse count.
	PSPUniform bool `yaml:"psp_uniform" json:"psp_uniform"`

	// MPDrivenPSP uses the source neuron's membrane potential, clamped to
	// [0, 255], in place of the synapse's static PSP.
	MPDrivenPSP bool `yaml:"mp_driven_psp" json:"mp_driven_psp"`
}

// AreaTable registers cortical areas by id and normalized name.
type AreaTable struct {
	byID   map[ir.AreaID]AreaParams
	byName map[string]ir.AreaID
}

func NewAreaTable() *AreaTable {
	return &AreaTable{
		byID:   make(map[ir.AreaID]AreaParams),
		byName: make(map[string]ir.AreaID),
	}
}

// Register adds an area. Names are NFC-normalized before the uniqueness
// check.
func (t *AreaTable) Register(p AreaParams) error {
	p.Name = ir.NormalizeName(p.Name)
	if _, ok := t.byID[p.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrDuplicateArea, p.ID)
	}
	if p.Name != "" {
		if _, ok := t.byName[p.Name]; ok {
			return fmt.Errorf("%w: name %q", ErrDuplicateArea, p.Name)
		}
		t.byName[p.Name] = p.ID
	}
	t.byID[p.ID] = p
	return nil
}

// Get returns an area by id. Unregistered areas report defaults (both
// flags false).
func (t *AreaTable) Get(id ir.AreaID) (AreaParams, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Lookup resolves an area name.
func (t *AreaTable) Lookup(name string) (ir.AreaID, bool) {
	id, ok := t.byName[ir.NormalizeName(name)]
	return id, ok
}

// Set replaces the flags of a registered area.
func (t *AreaTable) Set(id ir.AreaID, pspUniform, mpDriven bool) bool {
	p, ok := t.byID[id]
	if !ok {
		return false
	}
	p.PSPUniform = pspUniform
	p.MPDrivenPSP = mpDriven
	t.byID[id] = p
	return true
}

// IDs lists registered area ids in ascending order.
func (t *AreaTable) IDs() []ir.AreaID {
	ids := make([]ir.AreaID, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *AreaTable) Len() int { return len(t.byID) }
