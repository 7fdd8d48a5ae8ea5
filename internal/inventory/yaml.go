package inventory

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// document is the YAML inventory file layout.
type document struct {
	Units []*model.InventoryItem `yaml:"units"`
	Hosts []*model.HostSlotSet   `yaml:"hosts"`
}

// YAMLStore is a Repository backed by a YAML inventory file,
// the file is written back on every commit and update.
type YAMLStore struct {
	*MemStore

	path string

	// serializes mutations with the file write that follows them
	writeMu sync.Mutex
}

// NewYAMLStore loads the inventory file.
func NewYAMLStore(path string) (*YAMLStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(ErrYAMLStore, err.Error())
	}

	doc := &document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(ErrYAMLStore, path+": "+err.Error())
	}

	mem, err := NewMemStore(doc.Units, doc.Hosts)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	return &YAMLStore{MemStore: mem, path: path}, nil
}

// WriteYAML writes the units and hosts as an inventory file.
func WriteYAML(path string, units []*model.InventoryItem, hosts []*model.HostSlotSet) error {
	return writeDocument(path, &document{Units: units, Hosts: hosts})
}

func writeDocument(path string, doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(ErrYAMLStore, err.Error())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(ErrYAMLStore, err.Error())
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(ErrYAMLStore, err.Error())
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(ErrYAMLStore, err.Error())
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(ErrYAMLStore, err.Error())
	}

	return nil
}

// apply runs the mutation and writes the file, the mutation is reverted when the write fails.
func (y *YAMLStore) apply(mutate func() error) error {
	y.writeMu.Lock()
	defer y.writeMu.Unlock()

	// records are replaced on mutation, never modified, the snapshot stays valid
	y.mu.RLock()
	prev := y.snapshot()
	plans := len(y.plans)
	y.mu.RUnlock()

	if err := mutate(); err != nil {
		return err
	}

	y.mu.RLock()
	err := writeDocument(y.path, y.snapshot())
	y.mu.RUnlock()

	if err != nil {
		y.mu.Lock()
		y.restore(prev, plans)
		y.mu.Unlock()

		return err
	}

	return nil
}

func (y *YAMLStore) CommitPlan(ctx context.Context, plan *model.AssignmentPlan, units []*model.InventoryItem, host *model.HostSlotSet) error {
	return y.apply(func() error { return y.MemStore.CommitPlan(ctx, plan, units, host) })
}

func (y *YAMLStore) UpdateUnits(ctx context.Context, units ...*model.InventoryItem) error {
	return y.apply(func() error { return y.MemStore.UpdateUnits(ctx, units...) })
}

func (y *YAMLStore) UpdateHost(ctx context.Context, host *model.HostSlotSet) error {
	return y.apply(func() error { return y.MemStore.UpdateHost(ctx, host) })
}
