// Package world describes the game runtime the features act on. The consumer daemon drives
// an in-memory world loaded from a snapshot; the mod provides the real one.
package world

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPlayerOffline   = errors.New("player not online")
	ErrPlayerDead      = errors.New("player is dead")
	ErrUnknownClass    = errors.New("unknown item class")
	ErrSpawnFailed     = errors.New("spawn failed")
	ErrItemNotFound    = errors.New("item not found")
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrNotCarKey       = errors.New("item is not a valid car key")
)

// Vector is a world position. Y is height.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector) String() string {
	return fmt.Sprintf("<%.1f, %.1f, %.1f>", v.X, v.Y, v.Z)
}

// MessageKind selects how a message reaches a player. Empty means notification.
type MessageKind string

const (
	KindNotification MessageKind = "notification"
	KindChat         MessageKind = "chat"
	KindBoth         MessageKind = "both"
)

// Notifies reports whether k produces a popup notification.
func (k MessageKind) Notifies() bool {
	return k == "" || k == KindNotification || k == KindBoth
}

// Chats reports whether k produces a chat line.
func (k MessageKind) Chats() bool {
	return k == KindChat || k == KindBoth
}

// Message is delivered to one player or broadcast to all.
type Message struct {
	Title string      `json:"title"`
	Text  string      `json:"text"`
	Kind  MessageKind `json:"kind,omitempty"`
}

// PlayerInfo is a read-only view of an online player.
type PlayerInfo struct {
	ID       string
	Name     string
	Alive    bool
	Position Vector
}

// ItemInfo is a read-only view of an inventory item.
type ItemInfo struct {
	Class       string
	DisplayName string
	Quantity    float64
}

// Name prefers the display name.
func (i ItemInfo) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Class
}

// VehicleInfo is a read-only view of a vehicle in the world.
type VehicleInfo struct {
	ID          string
	Class       string
	DisplayName string
	Position    Vector
}

// Grant describes an item to spawn for a player.
type Grant struct {
	Class    string
	Quantity int
	// Health is a percentage; values outside 0..100 keep the default.
	Health float64
}

// KeyGrant describes a car key to create and pair.
type KeyGrant struct {
	PlayerID  string
	VehicleID string
	KeyClass  string
	Master    bool
}

// World is everything the features need from the game runtime.
type World interface {
	Player(ctx context.Context, id string) (PlayerInfo, error)
	Players(ctx context.Context) ([]PlayerInfo, error)
	ClassExists(ctx context.Context, class string) bool

	GiveItem(ctx context.Context, playerID string, g Grant) (ItemInfo, error)
	// FindItem resolves an inventory path ("0.cargo.2", "3.attachments.0.cargo.1"), falling
	// back to the first item of class when the path does not resolve.
	FindItem(ctx context.Context, playerID, path, class string) (ItemInfo, error)
	// RemoveItem deletes count units of the item, or the whole item when count is not
	// below its quantity. It returns the remaining quantity.
	RemoveItem(ctx context.Context, playerID, path, class string, count float64) (float64, error)

	Heal(ctx context.Context, playerID string, percent float64) error
	SurfaceY(ctx context.Context, x, z float64) float64
	Teleport(ctx context.Context, playerID string, to Vector) (Vector, error)
	Notify(ctx context.Context, playerID string, msg Message) error
	Broadcast(ctx context.Context, msg Message) (int, error)

	Vehicle(ctx context.Context, id string) (VehicleInfo, error)
	IssueKey(ctx context.Context, k KeyGrant) error
	// DestroyVehicle removes a vehicle from the world. ok is false when it was not there.
	DestroyVehicle(ctx context.Context, id string) (v VehicleInfo, ok bool, err error)
	// Untrack removes the vehicle from purchase tracking. ok is false when it was not tracked.
	Untrack(ctx context.Context, id string) (ok bool, err error)
}
