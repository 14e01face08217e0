package world

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Snapshot is the serialised state of an in-memory world. The file may be YAML or JSON.
type Snapshot struct {
	Players       []PlayerState    `yaml:"players"`
	Classes       map[string]Class `yaml:"classes"`
	Vehicles      []VehicleState   `yaml:"vehicles"`
	Tracked       []string         `yaml:"tracked"`
	SurfaceHeight float64          `yaml:"surface_height"`
}

// Class is an entry of the item catalogue.
type Class struct {
	DisplayName string `yaml:"display_name"`
	// MaxQuantity is zero for items without a quantity.
	MaxQuantity float64 `yaml:"max_quantity"`
	CarKey      bool    `yaml:"car_key"`
	// Unspawnable classes exist in the catalogue but cannot be created.
	Unspawnable bool `yaml:"unspawnable"`
}

type PlayerState struct {
	ID        string      `yaml:"id"`
	Name      string      `yaml:"name"`
	Dead      bool        `yaml:"dead"`
	Health    float64     `yaml:"health"`
	Position  Vector      `yaml:"position"`
	Inventory []ItemState `yaml:"inventory"`
}

type ItemState struct {
	Class       string      `yaml:"class"`
	Quantity    float64     `yaml:"quantity"`
	Health      float64     `yaml:"health"`
	Cargo       []ItemState `yaml:"cargo"`
	Attachments []ItemState `yaml:"attachments"`
}

type VehicleState struct {
	ID          string     `yaml:"id"`
	Class       string     `yaml:"class"`
	DisplayName string     `yaml:"display_name"`
	Position    Vector     `yaml:"position"`
	Keys        []KeyState `yaml:"keys"`
}

type KeyState struct {
	Class    string `yaml:"class"`
	PlayerID string `yaml:"player_id"`
	Master   bool   `yaml:"master"`
}

// ParseSnapshot decodes a YAML or JSON snapshot. Unknown keys are rejected.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("parse world snapshot: %w", err)
	}
	seen := make(map[string]bool, len(s.Players))
	for _, p := range s.Players {
		if p.ID == "" {
			return Snapshot{}, fmt.Errorf("parse world snapshot: player without id")
		}
		if seen[p.ID] {
			return Snapshot{}, fmt.Errorf("parse world snapshot: duplicate player %s", p.ID)
		}
		seen[p.ID] = true
	}
	return s, nil
}

// LoadFile reads a snapshot and builds a Memory world from it.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world snapshot: %w", err)
	}
	s, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewMemory(s), nil
}

// DefaultSnapshot is used when the consumer runs without a world file: an empty server
// with a small vanilla catalogue.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Classes: map[string]Class{
			"Apple":           {DisplayName: "Apple"},
			"BandageDressing": {DisplayName: "Bandage", MaxQuantity: 4},
			"Rag":             {DisplayName: "Rags", MaxQuantity: 6},
			"Ammo_762x39":     {DisplayName: "7.62x39mm Rounds", MaxQuantity: 20},
			"WaterBottle":     {DisplayName: "Water Bottle", MaxQuantity: 1000},
			"ExpansionCarKey": {DisplayName: "Car Key", CarKey: true},
		},
	}
}
