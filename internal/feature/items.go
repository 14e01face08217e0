package feature

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/world"
)

const (
	maxGrantQuantity = 10000
	defaultHealth    = -1
)

// ItemGrant spawns an item for an online player.
type ItemGrant struct {
	PlayerID      string `json:"playerId"`
	ItemClassName string `json:"itemClassName"`
	Quantity      int    `json:"quantity"`
	// Health is a percentage; -1 or absent keeps the item's default.
	Health *float64 `json:"health,omitempty"`
}

func (p ItemGrant) health() float64 {
	if p.Health == nil {
		return defaultHealth
	}
	return *p.Health
}

func validateItemGrant(p ItemGrant) error {
	var errs ValidationErrors
	checkPlayerID(&errs, p.PlayerID)
	checkRequired(&errs, "itemClassName", p.ItemClassName)
	if p.Quantity < 1 || p.Quantity > maxGrantQuantity {
		errs.Add("quantity", "must be between 1 and %d", maxGrantQuantity)
	}
	if h := p.health(); h != defaultHealth && (h < 0 || h > 100) {
		errs.Add("health", "must be -1 or between 0 and 100")
	}
	return errs.Err()
}

func (x *executor) grantItem(ctx context.Context, id string, p ItemGrant) queue.Outcome {
	l := x.log.WithFields(logrus.Fields{"feature": "item_grant", "request_id": id, "player_id": p.PlayerID})

	if _, err := x.world.Player(ctx, p.PlayerID); err != nil {
		l.Warn("item grant failed: player %s not online", p.PlayerID)
		return outcomeFor(err)
	}
	if !x.world.ClassExists(ctx, p.ItemClassName) {
		l.Warn("item grant failed: invalid item class %s", p.ItemClassName)
		return queue.Failed("unknown item class")
	}
	item, err := x.world.GiveItem(ctx, p.PlayerID, world.Grant{
		Class:    p.ItemClassName,
		Quantity: p.Quantity,
		Health:   p.health(),
	})
	if err != nil {
		l.WithError(err).Warn("item grant failed")
		return outcomeFor(err)
	}

	qty := ""
	if p.Quantity > 1 {
		qty = fmt.Sprintf(" x%d", p.Quantity)
	}
	text := fmt.Sprintf("Item %s%s added to inventory", item.Name(), qty)
	x.notify(ctx, l, p.PlayerID, world.Message{Title: "ADMIN MESSAGE", Text: text})
	l.Info("item grant succeeded: %s given to %s", p.ItemClassName, p.PlayerID)
	return queue.Succeeded("%s", text)
}

// ItemDelete removes an item, or part of a stack, from a player's inventory.
type ItemDelete struct {
	PlayerID      string `json:"playerId"`
	ItemClassName string `json:"itemClassName"`
	// ItemPath addresses the item, e.g. "0.cargo.2" or "3.attachments.0.cargo.1".
	ItemPath string `json:"itemPath"`
	// DeleteCount is how many units to remove from a stack; 0 removes the item.
	DeleteCount int `json:"deleteCount"`
}

func validateItemDelete(p ItemDelete) error {
	var errs ValidationErrors
	checkPlayerID(&errs, p.PlayerID)
	checkRequired(&errs, "itemClassName", p.ItemClassName)
	if p.DeleteCount < 0 {
		errs.Add("deleteCount", "must not be negative")
	}
	return errs.Err()
}

func (x *executor) deleteItem(ctx context.Context, id string, p ItemDelete) queue.Outcome {
	l := x.log.WithFields(logrus.Fields{"feature": "item_delete", "request_id": id, "player_id": p.PlayerID})

	if _, err := x.world.Player(ctx, p.PlayerID); err != nil {
		l.Warn("item delete failed: player %s not online", p.PlayerID)
		return outcomeFor(err)
	}
	item, err := x.world.FindItem(ctx, p.PlayerID, p.ItemPath, p.ItemClassName)
	if err != nil {
		l.Warn("item delete failed: %s not found at path %q", p.ItemClassName, p.ItemPath)
		return queue.Failed("Item not found at path: %s", p.ItemPath)
	}
	if item.Class != p.ItemClassName {
		l.Warn("item delete failed: class mismatch")
		return queue.Failed("Item mismatch - expected %s but found %s", p.ItemClassName, item.Class)
	}

	left, err := x.world.RemoveItem(ctx, p.PlayerID, p.ItemPath, p.ItemClassName, float64(p.DeleteCount))
	if err != nil {
		l.WithError(err).Warn("item delete failed")
		return outcomeFor(err)
	}

	var out queue.Outcome
	if left > 0 {
		out = queue.Succeeded("Reduced %s quantity by %d (now %g)", item.Name(), p.DeleteCount, left)
	} else {
		out = queue.Succeeded("Deleted %s", item.Name())
	}
	x.notify(ctx, l, p.PlayerID, world.Message{
		Title: "ADMIN ACTION",
		Text:  item.Name() + " was removed from your inventory",
	})
	l.Info("item delete succeeded: %s", out.Message)
	return out
}

// outcomeFor maps world errors to the messages the dashboard already shows.
func outcomeFor(err error) queue.Outcome {
	switch {
	case errors.Is(err, world.ErrPlayerOffline):
		return queue.Failed("Player not online")
	case errors.Is(err, world.ErrPlayerDead):
		return queue.Failed("Player is dead")
	case errors.Is(err, world.ErrUnknownClass):
		return queue.Failed("unknown item class")
	case errors.Is(err, world.ErrSpawnFailed):
		return queue.Failed("Could not spawn item")
	case errors.Is(err, world.ErrVehicleNotFound):
		return queue.Failed("Vehicle not found in world")
	case errors.Is(err, world.ErrNotCarKey):
		return queue.Failed("Item is not a valid car key")
	default:
		return queue.Failed("%v", err)
	}
}
