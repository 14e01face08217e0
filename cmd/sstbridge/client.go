package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sudoservertools/sstbridge/internal/control"
	"github.com/sudoservertools/sstbridge/internal/daemon"
	"github.com/sudoservertools/sstbridge/internal/feature"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/status"
)

func newProducer(name string, e *env) (*queue.Producer, error) {
	reg, err := feature.NewRegistry(nil, e.log, e.cfg.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return queue.NewProducer(e.store, reg, e.producerOptions()), nil
}

// exitForResult maps an outcome onto the process exit code.
func exitForResult(res model.Result) int {
	switch res.Status {
	case model.StatusSuccess:
		return exitOK
	case model.StatusFailed:
		return exitFailed
	default:
		return exitPending
	}
}

func runEnqueue(args []string) int {
	fs, flags := newFlagSet("enqueue")
	id := fs.String("id", "", "request id (default: a new ULID)")
	wait := fs.Duration("wait", 0, "wait this long for the outcome")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(pos) != 2 {
		fmt.Fprintln(os.Stderr, "usage: sstbridge enqueue <feature> <json|@file|-> [--id ID] [--wait 5s]")
		return exitUsage
	}
	payload, err := readPayload(pos[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	e, err := openEnv(ctx, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		return exitError
	}
	defer e.close()
	producer, err := newProducer("enqueue", e)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	feat, requestID := pos[0], *id
	if requestID == "" {
		requestID, err = producer.Enqueue(ctx, feat, payload)
	} else {
		err = producer.EnqueueWithID(ctx, feat, requestID, payload)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		return exitError
	}

	if *wait <= 0 {
		_ = printJSON(model.PendingResult(requestID))
		return exitOK
	}
	res, err := producer.PollResult(ctx, feat, requestID, *wait)
	if err != nil && !errors.Is(err, queue.ErrPending) {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		return exitError
	}
	_ = printJSON(res)
	return exitForResult(res)
}

func runResults(args []string) int {
	fs, flags := newFlagSet("results")
	pending := fs.Bool("pending", false, "list unprocessed requests instead of results")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(pos) != 1 {
		fmt.Fprintln(os.Stderr, "usage: sstbridge results <feature> [--pending]")
		return exitUsage
	}

	ctx := context.Background()
	e, err := openEnv(ctx, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "results: %v\n", err)
		return exitError
	}
	defer e.close()
	producer, err := newProducer("results", e)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	var out any
	if *pending {
		out, err = producer.Pending(ctx, pos[0])
	} else {
		out, err = producer.Results(ctx, pos[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "results: %v\n", err)
		return exitError
	}
	_ = printJSON(out)
	return exitOK
}

func runStatus(args []string) int {
	fs, flags := newFlagSet("status")
	wait := fs.Duration("wait", 0, "wait this long for a pending request")
	jsonOut := fs.Bool("json", false, "print the overview as JSON")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(pos) != 0 && len(pos) != 2 {
		fmt.Fprintln(os.Stderr, "usage: sstbridge status [--json] | status <feature> <request-id> [--wait 5s]")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	e, err := openEnv(ctx, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return exitError
	}
	defer e.close()
	producer, err := newProducer("status", e)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	if len(pos) == 0 {
		socket := daemon.SocketPath(e.cfg.Consumer.StateDir)
		if err := status.Run(ctx, os.Stdout, e.store, producer.Features(), socket, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
			return exitError
		}
		return exitOK
	}

	res, err := producer.Status(ctx, pos[0], pos[1])
	if err == nil && res.Status == model.StatusPending && *wait > 0 {
		res, err = producer.PollResult(ctx, pos[0], pos[1], *wait)
		if errors.Is(err, queue.ErrPending) {
			err = nil
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return exitError
	}
	_ = printJSON(res)
	return exitForResult(res)
}

func runCtl(args []string) int {
	fs, flags := newFlagSet("ctl")
	timeout := fs.Duration("timeout", 30*time.Second, "control request timeout")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(pos) != 1 {
		fmt.Fprintln(os.Stderr, "usage: sstbridge ctl <ping|scan|status|shutdown>")
		return exitUsage
	}

	cfg, _, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ctl: %v\n", err)
		return exitError
	}
	client := control.NewClient(daemon.SocketPath(cfg.Consumer.StateDir))
	client.SetTimeout(*timeout)

	var out json.RawMessage
	switch pos[0] {
	case control.CmdPing, control.CmdScan, control.CmdStatus, control.CmdShutdown:
	default:
		fmt.Fprintf(os.Stderr, "ctl: unknown command %q\n", pos[0])
		return exitUsage
	}
	if err := client.Call(context.Background(), pos[0], nil, &out); err != nil {
		fmt.Fprintf(os.Stderr, "ctl %s: %v\n", pos[0], err)
		return exitError
	}
	if len(out) > 0 {
		_ = printJSON(out)
	}
	return exitOK
}
