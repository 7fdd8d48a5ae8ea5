package fixtures

import (
	"github.com/jinzhu/copier"
	"github.com/metal-toolbox/placer/internal/model"
)

// Unit identifiers of the inventory fixtures.
const (
	Unit10G1       = "u-10g-1"
	Unit10G2       = "u-10g-2"
	Unit10G3       = "u-10g-3"
	Unit25G        = "u-25g-1"
	UnitUnresolved = "u-optic-notes"
	UnitDIMM       = "u-dimm-notes"
	UnitInstalled0 = "u-installed-0"
	UnitInstalled1 = "u-installed-1"

	// Switch1 has ports 0 and 1 occupied, 2 and 3 free
	Switch1 = "sw-1"
	// Switch2 has 4 free ports
	Switch2 = "sw-2"
	// Switch3 has 4 free QSFP28 ports
	Switch3 = "sw-3"
	// Server1 has 4 free DDR4 DIMM slots
	Server1 = "srv-1"
)

func intp(i int) *int { return &i }

var (
	units = []*model.InventoryItem{
		{
			UnitID:            Unit10G1,
			ComponentType:     model.ComponentTransceiver,
			CatalogIdentifier: "sfp-10g-sr",
			SerialOrTag:       "FNS17200AAA",
			Occupancy:         model.OccupancyFree,
		},
		{
			UnitID:            Unit10G2,
			ComponentType:     model.ComponentTransceiver,
			CatalogIdentifier: "sfp-10g-sr",
			SerialOrTag:       "FNS17200AAB",
			Occupancy:         model.OccupancyFree,
		},
		{
			UnitID:            Unit10G3,
			ComponentType:     model.ComponentTransceiver,
			CatalogIdentifier: "sfp-10g-sr",
			SerialOrTag:       "FNS17200AAC",
			Occupancy:         model.OccupancyFree,
		},
		{
			UnitID:            Unit25G,
			ComponentType:     model.ComponentTransceiver,
			CatalogIdentifier: "sfp-25g-sr",
			SerialOrTag:       "AVM2232BBB",
			Occupancy:         model.OccupancyFree,
		},
		{
			UnitID:        UnitUnresolved,
			ComponentType: model.ComponentTransceiver,
			SerialOrTag:   "CISCO SFP-10G-SR rev 3",
			Notes:         "pulled from rack 12, Cisco SFP-10G-SR",
			Occupancy:     model.OccupancyFree,
		},
		{
			UnitID:        UnitDIMM,
			ComponentType: model.ComponentMemory,
			Notes:         "DDR4-3200 32GB Samsung",
			Occupancy:     model.OccupancyFree,
		},
		{
			UnitID:            UnitInstalled0,
			ComponentType:     model.ComponentTransceiver,
			CatalogIdentifier: "sfp-10g-sr",
			Occupancy:         model.OccupancyInstalled,
			HostID:            Switch1,
			SlotIndex:         intp(0),
		},
		{
			UnitID:            UnitInstalled1,
			ComponentType:     model.ComponentTransceiver,
			CatalogIdentifier: "sfp-10g-sr",
			Occupancy:         model.OccupancyInstalled,
			HostID:            Switch1,
			SlotIndex:         intp(1),
		},
	}

	hosts = []*model.HostSlotSet{
		{
			HostID:        Switch1,
			ComponentType: model.ComponentTransceiver,
			Slots: []model.Slot{
				{Index: 0, AcceptedInterfaces: []string{"SFP+"}, OccupiedBy: UnitInstalled0},
				{Index: 1, AcceptedInterfaces: []string{"SFP+"}, OccupiedBy: UnitInstalled1},
				{Index: 2, AcceptedInterfaces: []string{"SFP+"}},
				{Index: 3, AcceptedInterfaces: []string{"SFP+"}},
			},
		},
		{
			HostID:        Switch2,
			ComponentType: model.ComponentTransceiver,
			Slots: []model.Slot{
				{Index: 0, AcceptedInterfaces: []string{"SFP+", "SFP28"}},
				{Index: 1, AcceptedInterfaces: []string{"SFP+", "SFP28"}},
				{Index: 2, AcceptedInterfaces: []string{"SFP+", "SFP28"}},
				{Index: 3, AcceptedInterfaces: []string{"SFP+", "SFP28"}},
			},
		},
		{
			HostID:        Switch3,
			ComponentType: model.ComponentTransceiver,
			Slots: []model.Slot{
				{Index: 0, AcceptedInterfaces: []string{"QSFP28"}},
				{Index: 1, AcceptedInterfaces: []string{"QSFP28"}},
				{Index: 2, AcceptedInterfaces: []string{"QSFP28"}},
				{Index: 3, AcceptedInterfaces: []string{"QSFP28"}},
			},
		},
		{
			HostID:        Server1,
			ComponentType: model.ComponentMemory,
			Slots: []model.Slot{
				{Index: 0, AcceptedInterfaces: []string{"DDR4"}},
				{Index: 1, AcceptedInterfaces: []string{"DDR4"}},
				{Index: 2, AcceptedInterfaces: []string{"DDR4"}},
				{Index: 3, AcceptedInterfaces: []string{"DDR4"}},
			},
		},
	}
)

// Units returns a copy of the inventory unit fixtures.
func Units() []*model.InventoryItem {
	dst := []*model.InventoryItem{}

	if err := copier.CopyWithOption(&dst, &units, copier.Option{DeepCopy: true}); err != nil {
		panic(err)
	}

	return dst
}

// Hosts returns a copy of the host slot set fixtures.
func Hosts() []*model.HostSlotSet {
	dst := []*model.HostSlotSet{}

	if err := copier.CopyWithOption(&dst, &hosts, copier.Option{DeepCopy: true}); err != nil {
		panic(err)
	}

	return dst
}

// UnitsByID returns copies of the named unit fixtures, in the given order.
func UnitsByID(ids ...string) []*model.InventoryItem {
	all := Units()
	found := make([]*model.InventoryItem, 0, len(ids))

	for _, id := range ids {
		for _, u := range all {
			if u.UnitID == id {
				found = append(found, u)
			}
		}
	}

	return found
}

// HostsByID returns copies of the named host fixtures, in the given order.
func HostsByID(ids ...string) []*model.HostSlotSet {
	all := Hosts()
	found := make([]*model.HostSlotSet, 0, len(ids))

	for _, id := range ids {
		for _, h := range all {
			if h.HostID == id {
				found = append(found, h)
			}
		}
	}

	return found
}
