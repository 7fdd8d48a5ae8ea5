package compat

import (
	"fmt"
	"strings"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
)

var (
	ErrValidationFailed     = errors.New("batch validation failed")
	ErrEmptyBatch           = errors.New("empty batch")
	ErrNoCandidateHost      = errors.New("no candidate host")
	ErrInsufficientCapacity = errors.New("insufficient free slots")
	ErrIncompatibleHost     = errors.New("host does not take the batch component type")
	ErrOccupancyTransition  = errors.New("error in unit occupancy transition")
	ErrTransitionArgs       = errors.New("error asserting the occupancy transition arguments")
)

// Mismatch is a discriminating attribute on which a unit differs from the batch reference unit.
type Mismatch struct {
	UnitID          string `json:"unit_id"`
	ReferenceUnitID string `json:"reference_unit_id"`
	Attribute       string `json:"attribute"`
	Expected        string `json:"expected"`
	Actual          string `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("unit %s %s: expected '%s' (unit %s), got '%s'", m.UnitID, m.Attribute, m.Expected, m.ReferenceUnitID, m.Actual)
}

// ValidationError lists the mismatches found in a batch, it unwraps to ErrValidationFailed.
type ValidationError struct {
	ComponentType model.ComponentType `json:"component_type"`
	Mismatches    []Mismatch          `json:"mismatches"`
}

// Error implements the Error() interface
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		msgs = append(msgs, m.String())
	}

	return fmt.Sprintf("%s: %s", ErrValidationFailed.Error(), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// UnitIDs returns the offending units followed by the reference units they were compared with.
func (e *ValidationError) UnitIDs() []string {
	seen := map[string]bool{}
	ids := []string{}

	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, m := range e.Mismatches {
		add(m.UnitID)
	}

	for _, m := range e.Mismatches {
		add(m.ReferenceUnitID)
	}

	return ids
}
