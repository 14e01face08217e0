package feature

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/world"
)

// DefaultKeyClass is used when a key request names no class.
const DefaultKeyClass = "ExpansionCarKey"

// VehicleKey creates a key paired to a vehicle and gives it to a player.
type VehicleKey struct {
	PlayerID     string `json:"playerId"`
	VehicleID    string `json:"vehicleId"`
	KeyClassName string `json:"keyClassName"`
	IsMasterKey  bool   `json:"isMasterKey"`
}

func validateVehicleKey(p VehicleKey) error {
	var errs ValidationErrors
	checkPlayerID(&errs, p.PlayerID)
	checkRequired(&errs, "vehicleId", p.VehicleID)
	return errs.Err()
}

func (x *executor) issueKey(ctx context.Context, id string, p VehicleKey) queue.Outcome {
	l := x.log.WithFields(logrus.Fields{"feature": "vehicle_key", "request_id": id, "vehicle_id": p.VehicleID})

	if _, err := x.world.Player(ctx, p.PlayerID); err != nil {
		l.Warn("key request failed: player %s not online", p.PlayerID)
		return outcomeFor(err)
	}
	if _, err := x.world.Vehicle(ctx, p.VehicleID); err != nil {
		l.Warn("key request failed: vehicle not found")
		return outcomeFor(err)
	}

	class := p.KeyClassName
	if class == "" {
		class = DefaultKeyClass
	}
	err := x.world.IssueKey(ctx, world.KeyGrant{
		PlayerID:  p.PlayerID,
		VehicleID: p.VehicleID,
		KeyClass:  class,
		Master:    p.IsMasterKey,
	})
	switch {
	case errors.Is(err, world.ErrSpawnFailed):
		l.Warn("key request failed: could not spawn %s", class)
		return queue.Failed("Could not create key item")
	case err != nil:
		l.WithError(err).Warn("key request failed")
		return outcomeFor(err)
	}
	l.Info("key request succeeded: %s given to %s", class, p.PlayerID)
	return queue.Succeeded("Key created and paired to vehicle")
}

// VehicleDelete destroys a vehicle and drops it from purchase tracking.
type VehicleDelete struct {
	VehicleID          string `json:"vehicleId"`
	VehicleClassName   string `json:"vehicleClassName"`
	VehicleDisplayName string `json:"vehicleDisplayName"`
}

func validateVehicleDelete(p VehicleDelete) error {
	var errs ValidationErrors
	checkRequired(&errs, "vehicleId", p.VehicleID)
	return errs.Err()
}

func (x *executor) deleteVehicle(ctx context.Context, id string, p VehicleDelete) queue.Outcome {
	l := x.log.WithFields(logrus.Fields{"feature": "vehicle_delete", "request_id": id, "vehicle_id": p.VehicleID})

	v, destroyed, err := x.world.DestroyVehicle(ctx, p.VehicleID)
	if err != nil {
		return outcomeFor(err)
	}
	if destroyed {
		l.Info("vehicle destroyed in world: %s at %s", v.DisplayName, v.Position)
	}
	// Tracking is dropped whether or not the vehicle was still in the world.
	tracked, err := x.world.Untrack(ctx, p.VehicleID)
	if err != nil {
		return outcomeFor(err)
	}

	switch {
	case destroyed && tracked:
		return queue.Succeeded("Vehicle destroyed and removed from tracking")
	case destroyed:
		return queue.Succeeded("Vehicle destroyed (was not tracked)")
	case tracked:
		return queue.Succeeded("Vehicle not found in world (already despawned) - removed from tracking")
	default:
		l.Warn("delete request failed: vehicle not found in world or tracking")
		return queue.Failed("Vehicle not found in world or tracking")
	}
}
