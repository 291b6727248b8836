package service

import (
	"errors"
	"fmt"
	"math"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
)

// InverterRegistry is the fixed set of inverters one controller drives.
type InverterRegistry struct {
	specs []domain.InverterSpec
	index map[string]int
}

func NewInverterRegistry(specs []domain.InverterSpec) (*InverterRegistry, error) {
	if len(specs) == 0 {
		return nil, errors.New("registry: at least one inverter is required")
	}
	reg := &InverterRegistry{
		specs: make([]domain.InverterSpec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		if spec.Id == "" {
			return nil, errors.New("registry: inverter id must not be empty")
		}
		if _, dup := reg.index[spec.Id]; dup {
			return nil, fmt.Errorf("registry: duplicated inverter id %q", spec.Id)
		}
		if math.IsNaN(spec.MaxPowerWatts) || math.IsInf(spec.MaxPowerWatts, 0) || spec.MaxPowerWatts < 0 {
			return nil, fmt.Errorf("registry: inverter %q has an invalid max power %f", spec.Id, spec.MaxPowerWatts)
		}
		reg.index[spec.Id] = len(reg.specs)
		reg.specs = append(reg.specs, spec)
	}
	return reg, nil
}

func (r *InverterRegistry) Specs() []domain.InverterSpec {
	out := make([]domain.InverterSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

func (r *InverterRegistry) Lookup(id string) (domain.InverterSpec, bool) {
	i, ok := r.index[id]
	if !ok {
		return domain.InverterSpec{}, false
	}
	return r.specs[i], true
}

func (r *InverterRegistry) Len() int {
	return len(r.specs)
}
