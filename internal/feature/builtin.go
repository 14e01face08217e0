package feature

import (
	"context"

	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/world"
)

// Feature names.
const (
	ItemGrantName     = "item_grant"
	ItemDeleteName    = "item_delete"
	PlayerCommandName = "player_command"
	VehicleKeyName    = "vehicle_key"
	VehicleDeleteName = "vehicle_delete"
)

type executor struct {
	world world.World
	log   *log.Logger
}

// notify is best effort: the action already happened.
func (x *executor) notify(ctx context.Context, l *log.Logger, playerID string, msg world.Message) {
	if err := x.world.Notify(ctx, playerID, msg); err != nil {
		l.WithError(err).Debug("notification to %s not delivered", playerID)
	}
}

// attach binds fn to the executor, or returns nil when there is no world to act on.
func attach[P any](x *executor, fn func(context.Context, string, P) queue.Outcome) func(context.Context, string, P) queue.Outcome {
	if x.world == nil {
		return nil
	}
	return fn
}

// Builtin returns the five features in the order the mod registers them. w may be nil for
// processes that only enqueue and read results.
func Builtin(w world.World, logger *log.Logger) []queue.Feature {
	if logger == nil {
		logger = log.Discard()
	}
	x := &executor{world: w, log: logger}
	return []queue.Feature{
		Define(Kind[ItemGrant]{
			Name:       ItemGrantName,
			QueueFile:  "item_grants.json",
			ResultFile: "item_grants_results.json",
			Validate:   validateItemGrant,
			Execute:    attach(x, x.grantItem),
		}),
		Define(Kind[ItemDelete]{
			Name:       ItemDeleteName,
			QueueFile:  "item_deletes.json",
			ResultFile: "item_deletes_results.json",
			Validate:   validateItemDelete,
			Execute:    attach(x, x.deleteItem),
		}),
		Define(Kind[PlayerCommand]{
			Name:       PlayerCommandName,
			QueueFile:  "player_commands.json",
			ResultFile: "player_commands_results.json",
			Validate:   validatePlayerCommand,
			Execute:    attach(x, x.runCommand),
		}),
		Define(Kind[VehicleKey]{
			Name:       VehicleKeyName,
			QueueFile:  "key_grants.json",
			ResultFile: "key_grants_results.json",
			Validate:   validateVehicleKey,
			Execute:    attach(x, x.issueKey),
		}),
		Define(Kind[VehicleDelete]{
			Name:       VehicleDeleteName,
			QueueFile:  "vehicle_delete.json",
			ResultFile: "vehicle_delete_results.json",
			Validate:   validateVehicleDelete,
			Execute:    attach(x, x.deleteVehicle),
		}),
	}
}

// NewRegistry builds the registry of built-in features narrowed to names (empty = all).
func NewRegistry(w world.World, logger *log.Logger, names []string) (*queue.Registry, error) {
	all, err := queue.NewRegistry(Builtin(w, logger)...)
	if err != nil {
		return nil, err
	}
	return all.Select(names)
}
