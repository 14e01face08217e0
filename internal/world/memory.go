package world

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Delivery is a message that reached a player.
type Delivery struct {
	PlayerID string
	Message
	Popup bool
	Chat  bool
}

func deliver(playerID string, msg Message) Delivery {
	return Delivery{PlayerID: playerID, Message: msg, Popup: msg.Kind.Notifies(), Chat: msg.Kind.Chats()}
}

// Memory is a World kept in process. It is safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	players    []*PlayerState
	classes    map[string]Class
	vehicles   map[string]*VehicleState
	order      []string
	tracked    map[string]bool
	surface    float64
	deliveries []Delivery
}

var _ World = (*Memory)(nil)

// NewMemory copies s into a fresh world.
func NewMemory(s Snapshot) *Memory {
	m := &Memory{
		classes:  make(map[string]Class, len(s.Classes)),
		vehicles: make(map[string]*VehicleState, len(s.Vehicles)),
		tracked:  make(map[string]bool, len(s.Tracked)),
		surface:  s.SurfaceHeight,
	}
	for name, c := range s.Classes {
		m.classes[name] = c
	}
	for _, p := range s.Players {
		p.Inventory = cloneItems(p.Inventory)
		m.players = append(m.players, &p)
	}
	for _, v := range s.Vehicles {
		v.Keys = append([]KeyState(nil), v.Keys...)
		m.vehicles[v.ID] = &v
		m.order = append(m.order, v.ID)
	}
	for _, id := range s.Tracked {
		m.tracked[id] = true
	}
	return m
}

// Snapshot returns a deep copy of the current state.
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Classes:       make(map[string]Class, len(m.classes)),
		SurfaceHeight: m.surface,
	}
	for name, c := range m.classes {
		s.Classes[name] = c
	}
	for _, p := range m.players {
		cp := *p
		cp.Inventory = cloneItems(p.Inventory)
		s.Players = append(s.Players, cp)
	}
	for _, id := range m.order {
		if v, ok := m.vehicles[id]; ok {
			cv := *v
			cv.Keys = append([]KeyState(nil), v.Keys...)
			s.Vehicles = append(s.Vehicles, cv)
		}
	}
	for id := range m.tracked {
		s.Tracked = append(s.Tracked, id)
	}
	return s
}

// Deliveries returns every message delivered so far.
func (m *Memory) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}

func (m *Memory) Player(_ context.Context, id string) (PlayerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.player(id)
	if err != nil {
		return PlayerInfo{}, err
	}
	return playerInfo(p), nil
}

func (m *Memory) Players(_ context.Context) ([]PlayerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlayerInfo, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, playerInfo(p))
	}
	return out, nil
}

func (m *Memory) ClassExists(_ context.Context, class string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.classes[class]
	return ok
}

func (m *Memory) GiveItem(_ context.Context, playerID string, g Grant) (ItemInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.player(playerID)
	if err != nil {
		return ItemInfo{}, err
	}
	c, ok := m.classes[g.Class]
	if !ok {
		return ItemInfo{}, fmt.Errorf("%w: %s", ErrUnknownClass, g.Class)
	}
	if c.Unspawnable {
		return ItemInfo{}, fmt.Errorf("%w: %s", ErrSpawnFailed, g.Class)
	}

	item := ItemState{Class: g.Class, Quantity: 1, Health: 100}
	if c.MaxQuantity > 0 {
		item.Quantity = min(float64(max(g.Quantity, 1)), c.MaxQuantity)
	}
	if g.Health >= 0 && g.Health <= 100 {
		item.Health = g.Health
	}
	p.Inventory = append(p.Inventory, item)
	return m.itemInfo(item), nil
}

func (m *Memory) FindItem(_ context.Context, playerID, path, class string) (ItemInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.player(playerID)
	if err != nil {
		return ItemInfo{}, err
	}
	list, i, ok := locate(&p.Inventory, path, class)
	if !ok {
		return ItemInfo{}, fmt.Errorf("%w at path %q", ErrItemNotFound, path)
	}
	return m.itemInfo((*list)[i]), nil
}

func (m *Memory) RemoveItem(_ context.Context, playerID, path, class string, count float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.player(playerID)
	if err != nil {
		return 0, err
	}
	list, i, ok := locate(&p.Inventory, path, class)
	if !ok {
		return 0, fmt.Errorf("%w at path %q", ErrItemNotFound, path)
	}
	item := &(*list)[i]
	if count > 0 && count < item.Quantity {
		item.Quantity -= count
		return item.Quantity, nil
	}
	*list = append((*list)[:i], (*list)[i+1:]...)
	return 0, nil
}

func (m *Memory) Heal(_ context.Context, playerID string, percent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.player(playerID)
	if err != nil {
		return err
	}
	if p.Dead {
		return ErrPlayerDead
	}
	p.Health = percent
	return nil
}

func (m *Memory) SurfaceY(_ context.Context, _, _ float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.surface
}

func (m *Memory) Teleport(_ context.Context, playerID string, to Vector) (Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.player(playerID)
	if err != nil {
		return Vector{}, err
	}
	if p.Dead {
		return Vector{}, ErrPlayerDead
	}
	from := p.Position
	p.Position = to
	return from, nil
}

func (m *Memory) Notify(_ context.Context, playerID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.player(playerID); err != nil {
		return err
	}
	m.deliveries = append(m.deliveries, deliver(playerID, msg))
	return nil
}

func (m *Memory) Broadcast(_ context.Context, msg Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.players {
		m.deliveries = append(m.deliveries, deliver(p.ID, msg))
	}
	return len(m.players), nil
}

func (m *Memory) Vehicle(_ context.Context, id string) (VehicleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[id]
	if !ok {
		return VehicleInfo{}, fmt.Errorf("%w: %s", ErrVehicleNotFound, id)
	}
	return vehicleInfo(v), nil
}

func (m *Memory) IssueKey(_ context.Context, k KeyGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.player(k.PlayerID)
	if err != nil {
		return err
	}
	v, ok := m.vehicles[k.VehicleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, k.VehicleID)
	}
	c, ok := m.classes[k.KeyClass]
	if !ok || c.Unspawnable {
		return fmt.Errorf("%w: %s", ErrSpawnFailed, k.KeyClass)
	}
	if !c.CarKey {
		return fmt.Errorf("%w: %s", ErrNotCarKey, k.KeyClass)
	}
	p.Inventory = append(p.Inventory, ItemState{Class: k.KeyClass, Quantity: 1, Health: 100})
	v.Keys = append(v.Keys, KeyState{Class: k.KeyClass, PlayerID: k.PlayerID, Master: k.Master})
	return nil
}

func (m *Memory) DestroyVehicle(_ context.Context, id string) (VehicleInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[id]
	if !ok {
		return VehicleInfo{}, false, nil
	}
	delete(m.vehicles, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return vehicleInfo(v), true, nil
}

func (m *Memory) Untrack(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.tracked[id] {
		return false, nil
	}
	delete(m.tracked, id)
	return true, nil
}

func (m *Memory) player(id string) (*PlayerState, error) {
	for _, p := range m.players {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPlayerOffline, id)
}

func (m *Memory) itemInfo(it ItemState) ItemInfo {
	return ItemInfo{Class: it.Class, DisplayName: m.classes[it.Class].DisplayName, Quantity: it.Quantity}
}

func playerInfo(p *PlayerState) PlayerInfo {
	return PlayerInfo{ID: p.ID, Name: p.Name, Alive: !p.Dead, Position: p.Position}
}

func vehicleInfo(v *VehicleState) VehicleInfo {
	return VehicleInfo{ID: v.ID, Class: v.Class, DisplayName: v.DisplayName, Position: v.Position}
}

// locate resolves an inventory path to the slice holding the item and its index. When the
// path does not resolve the first item of class in pre-order wins.
func locate(inv *[]ItemState, path, class string) (*[]ItemState, int, bool) {
	if list, i, ok := walkPath(inv, path); ok {
		return list, i, true
	}
	if class == "" {
		return nil, 0, false
	}
	return findClass(inv, class)
}

func walkPath(inv *[]ItemState, path string) (*[]ItemState, int, bool) {
	if path == "" {
		return nil, 0, false
	}
	parts := strings.Split(path, ".")
	list := inv
	i, err := strconv.Atoi(parts[0])
	if err != nil || i < 0 || i >= len(*list) {
		return nil, 0, false
	}
	for p := 1; p < len(parts); p += 2 {
		item := &(*list)[i]
		var next *[]ItemState
		switch parts[p] {
		case "cargo":
			next = &item.Cargo
		case "attachments":
			next = &item.Attachments
		default:
			return nil, 0, false
		}
		if p+1 >= len(parts) {
			break
		}
		n, err := strconv.Atoi(parts[p+1])
		if err != nil || n < 0 || n >= len(*next) {
			return nil, 0, false
		}
		list, i = next, n
	}
	return list, i, true
}

func findClass(list *[]ItemState, class string) (*[]ItemState, int, bool) {
	for i := range *list {
		item := &(*list)[i]
		if item.Class == class {
			return list, i, true
		}
		if l, j, ok := findClass(&item.Attachments, class); ok {
			return l, j, true
		}
		if l, j, ok := findClass(&item.Cargo, class); ok {
			return l, j, true
		}
	}
	return nil, 0, false
}

func cloneItems(items []ItemState) []ItemState {
	if items == nil {
		return nil
	}
	out := make([]ItemState, len(items))
	for i, it := range items {
		it.Cargo = cloneItems(it.Cargo)
		it.Attachments = cloneItems(it.Attachments)
		out[i] = it
	}
	return out
}
