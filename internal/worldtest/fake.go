// Package worldtest provides an in-memory world.Port for driving the
// construction core in tests without a live world. It intentionally mirrors
// the real port's semantics: placements land at ref+face, dug blocks return
// to the inventory, and scripted faults surface as errors.
package worldtest

import (
	"context"
	"fmt"
	"sync"

	"foreman.ai/internal/world"
)

type FakePort struct {
	mu sync.Mutex

	blocks    map[world.Vec3i]string
	inventory map[string]int
	pos       world.Vec3i
	vitals    world.Vitals
	weather   world.Weather
	entities  []world.Entity

	// PlaceFault, when set, is consulted with the resolved target cell
	// before a placement lands; a non-nil error fails the call.
	PlaceFault func(blockType string, target world.Vec3i) error
	// SilentDropAt placements report success but leave the cell empty
	// (models a world that swallowed the actuation).
	SilentDropAt map[world.Vec3i]bool
	// MisplaceAt placements report success but land the given wrong type.
	MisplaceAt map[world.Vec3i]string
	// MoveFault fails MoveTo calls when it returns a non-nil error.
	MoveFault func(target world.Vec3i) error
	// DigFault fails Dig calls when it returns a non-nil error.
	DigFault func(pos world.Vec3i) error

	// Ops records every actuation in call order ("PLACE PLANK (1,0,0)").
	Ops []string
}

func NewFakePort() *FakePort {
	return &FakePort{
		blocks:       map[world.Vec3i]string{},
		inventory:    map[string]int{},
		vitals:       world.Vitals{Health: 20, Food: 20},
		SilentDropAt: map[world.Vec3i]bool{},
		MisplaceAt:   map[world.Vec3i]string{},
	}
}

// SetBlock writes the grid directly (test precondition, not an actuation).
func (f *FakePort) SetBlock(pos world.Vec3i, blockType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if world.IsEmpty(blockType) {
		delete(f.blocks, pos)
		return
	}
	f.blocks[pos] = blockType
}

func (f *FakePort) AddInventory(name string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inventory[name] += count
}

func (f *FakePort) InventoryCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inventory[name]
}

func (f *FakePort) SetAgentPos(pos world.Vec3i) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
}

func (f *FakePort) SetVitals(v world.Vitals) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vitals = v
}

func (f *FakePort) SetWeather(w world.Weather) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weather = w
}

func (f *FakePort) SetEntities(es []world.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = es
}

func (f *FakePort) BlockAt(_ context.Context, pos world.Vec3i) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.blocks[pos]; ok {
		return b, nil
	}
	return world.BlockAir, nil
}

func (f *FakePort) Place(_ context.Context, blockType string, ref world.Vec3i, face world.Vec3i) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := ref.Add(face)
	f.Ops = append(f.Ops, fmt.Sprintf("PLACE %s %s", blockType, target))

	if f.PlaceFault != nil {
		if err := f.PlaceFault(blockType, target); err != nil {
			return err
		}
	}
	if f.inventory[blockType] <= 0 {
		return fmt.Errorf("place %s: no item in inventory", blockType)
	}
	f.inventory[blockType]--

	if f.SilentDropAt[target] {
		return nil
	}
	if wrong, ok := f.MisplaceAt[target]; ok {
		f.blocks[target] = wrong
		return nil
	}
	f.blocks[target] = blockType
	return nil
}

func (f *FakePort) Dig(_ context.Context, pos world.Vec3i) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Ops = append(f.Ops, fmt.Sprintf("DIG %s", pos))
	if f.DigFault != nil {
		if err := f.DigFault(pos); err != nil {
			return err
		}
	}
	if b, ok := f.blocks[pos]; ok {
		f.inventory[b]++
		delete(f.blocks, pos)
	}
	return nil
}

func (f *FakePort) MoveTo(_ context.Context, pos world.Vec3i) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Ops = append(f.Ops, fmt.Sprintf("MOVE %s", pos))
	if f.MoveFault != nil {
		if err := f.MoveFault(pos); err != nil {
			return err
		}
	}
	f.pos = pos
	return nil
}

func (f *FakePort) InventoryItems(_ context.Context) ([]world.ItemStack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]world.ItemStack, 0, len(f.inventory))
	for name, count := range f.inventory {
		if count > 0 {
			out = append(out, world.ItemStack{Name: name, Count: count})
		}
	}
	return out, nil
}

func (f *FakePort) NearbyEntities(_ context.Context, radius int) ([]world.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []world.Entity
	for _, e := range f.entities {
		if e.Pos.Dist(f.pos) <= float64(radius) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *FakePort) AgentPosition(_ context.Context) (world.Vec3i, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, nil
}

func (f *FakePort) AgentVitals(_ context.Context) (world.Vitals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vitals, nil
}

func (f *FakePort) Weather(_ context.Context) (world.Weather, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weather, nil
}

// OpCount returns how many recorded ops start with the given prefix.
func (f *FakePort) OpCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, op := range f.Ops {
		if len(op) >= len(prefix) && op[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
