package feature

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/world"
)

const (
	CommandHeal      = "heal"
	CommandTeleport  = "teleport"
	CommandMessage   = "message"
	CommandBroadcast = "broadcast"

	mapSize = 20000
)

// PlayerCommand is an admin action against one player, or every player for broadcasts.
type PlayerCommand struct {
	PlayerID    string  `json:"playerId"`
	CommandType string  `json:"commandType"`
	Value       float64 `json:"value"`
	PosX        float64 `json:"posX"`
	PosY        float64 `json:"posY"`
	PosZ        float64 `json:"posZ"`
	Message     string  `json:"message"`
	MessageType string  `json:"messageType"`
}

func validatePlayerCommand(p PlayerCommand) error {
	var errs ValidationErrors
	switch p.CommandType {
	case CommandHeal, CommandTeleport, CommandMessage, CommandBroadcast:
	default:
		errs.Add("commandType", "must be one of heal, teleport, message, broadcast")
	}
	if p.CommandType != CommandBroadcast {
		checkPlayerID(&errs, p.PlayerID)
	}
	if p.CommandType == CommandMessage || p.CommandType == CommandBroadcast {
		checkRequired(&errs, "message", p.Message)
	}
	switch world.MessageKind(p.MessageType) {
	case "", world.KindNotification, world.KindChat, world.KindBoth:
	default:
		errs.Add("messageType", "must be notification, chat or both")
	}
	return errs.Err()
}

func (x *executor) runCommand(ctx context.Context, id string, p PlayerCommand) queue.Outcome {
	l := x.log.WithFields(logrus.Fields{"feature": "player_command", "request_id": id, "command": p.CommandType})

	if p.CommandType == CommandBroadcast {
		return x.broadcast(ctx, l, p)
	}

	player, err := x.world.Player(ctx, p.PlayerID)
	if err != nil {
		l.Warn("command failed: player %s not online", p.PlayerID)
		return outcomeFor(err)
	}
	name := player.Name
	if name == "" {
		name = "Unknown"
	}

	switch p.CommandType {
	case CommandHeal:
		return x.heal(ctx, l, player, name, p)
	case CommandTeleport:
		return x.teleport(ctx, l, player, name, p)
	case CommandMessage:
		return x.message(ctx, l, player, name, p)
	default:
		l.Warn("command failed: unknown command type %q", p.CommandType)
		return queue.Failed("Unknown command type %q", p.CommandType)
	}
}

func (x *executor) heal(ctx context.Context, l *log.Logger, player world.PlayerInfo, name string, p PlayerCommand) queue.Outcome {
	if !player.Alive {
		l.Warn("heal failed: %s is dead", name)
		return queue.Failed("Player is dead")
	}
	percent := p.Value
	if percent <= 0 || percent > 100 {
		percent = 100
	}
	if err := x.world.Heal(ctx, player.ID, percent); err != nil {
		return outcomeFor(err)
	}
	x.notify(ctx, l, player.ID, world.Message{Title: "ADMIN MESSAGE", Text: fmt.Sprintf("You have been healed to %g%%", percent)})
	l.Info("heal succeeded: %s healed to %g%%", name, percent)
	return queue.Succeeded("Healed %s to %g%%", name, percent)
}

func (x *executor) teleport(ctx context.Context, l *log.Logger, player world.PlayerInfo, name string, p PlayerCommand) queue.Outcome {
	if !player.Alive {
		l.Warn("teleport failed: %s is dead", name)
		return queue.Failed("Player is dead")
	}
	dest := world.Vector{X: p.PosX, Y: p.PosY, Z: p.PosZ}
	if p.PosX < 0 || p.PosX > mapSize || p.PosZ < 0 || p.PosZ > mapSize {
		l.Warn("teleport failed: invalid coordinates %s", dest)
		return queue.Failed("Invalid coordinates %s", dest)
	}
	if dest.Y <= 0 {
		dest.Y = x.world.SurfaceY(ctx, dest.X, dest.Z)
	}
	from, err := x.world.Teleport(ctx, player.ID, dest)
	if err != nil {
		return outcomeFor(err)
	}
	x.notify(ctx, l, player.ID, world.Message{Title: "ADMIN MESSAGE", Text: "You have been teleported"})
	l.Info("teleport succeeded: %s moved from %s to %s", name, from, dest)
	return queue.Succeeded("Teleported %s to %s", name, dest)
}

func (x *executor) message(ctx context.Context, l *log.Logger, player world.PlayerInfo, name string, p PlayerCommand) queue.Outcome {
	if p.Message == "" {
		return queue.Failed("Empty message")
	}
	msg := world.Message{Title: "ADMIN MESSAGE", Text: p.Message, Kind: world.MessageKind(p.MessageType)}
	if err := x.world.Notify(ctx, player.ID, msg); err != nil {
		return outcomeFor(err)
	}
	l.Info("message sent to %s", name)
	return queue.Succeeded("Sent to %s", name)
}

func (x *executor) broadcast(ctx context.Context, l *log.Logger, p PlayerCommand) queue.Outcome {
	if p.Message == "" {
		l.Warn("broadcast failed: empty message")
		return queue.Failed("Empty message")
	}
	n, err := x.world.Broadcast(ctx, world.Message{
		Title: "SERVER BROADCAST",
		Text:  p.Message,
		Kind:  world.MessageKind(p.MessageType),
	})
	if err != nil {
		return outcomeFor(err)
	}
	l.Info("broadcast sent to %d players", n)
	return queue.Succeeded("Sent to %d players", n)
}
