package inventory

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
)

var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()
}

// Validate checks the unit and host records, every invalid record is listed in the returned error.
func Validate(units []*model.InventoryItem, hosts []*model.HostSlotSet) error {
	var merr *multierror.Error

	invalid := func(kind, id string, err error) {
		merr = multierror.Append(merr, errors.Wrap(ErrInvalidRecord, fmt.Sprintf("%s %q: %s", kind, id, err.Error())))
	}

	unitIDs := map[string]bool{}

	for i, u := range units {
		if err := recordValidate.Struct(u); err != nil {
			invalid("unit", fmt.Sprintf("%d/%s", i, u.UnitID), err)
			continue
		}

		if unitIDs[u.UnitID] {
			invalid("unit", u.UnitID, errors.New("duplicate unit id"))
		}

		unitIDs[u.UnitID] = true

		if !u.IsFree() && !u.Placed() {
			invalid("unit", u.UnitID, fmt.Errorf("%s unit has no host slot", u.Occupancy))
		}
	}

	hostIDs := map[string]bool{}

	for i, h := range hosts {
		if err := recordValidate.Struct(h); err != nil {
			invalid("host", fmt.Sprintf("%d/%s", i, h.HostID), err)
			continue
		}

		if hostIDs[h.HostID] {
			invalid("host", h.HostID, errors.New("duplicate host id"))
		}

		hostIDs[h.HostID] = true

		slotIdx := map[int]bool{}

		for _, s := range h.Slots {
			if slotIdx[s.Index] {
				invalid("host", h.HostID, fmt.Errorf("duplicate slot index %d", s.Index))
			}

			slotIdx[s.Index] = true
		}
	}

	return merr.ErrorOrNil()
}
