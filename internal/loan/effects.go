package loan

import (
	"context"
	"log/slog"

	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/item"
	"github.com/vaultlink/vaultlink/internal/notify"
	"github.com/vaultlink/vaultlink/internal/sched"
)

// Effect is a side effect a state transition scheduled but did not execute.
// The Applier runs effects on the main-loop scheduler, keeping the state
// machine itself free of threading and inventory concerns.
type Effect interface {
	effect()
}

// ReturnCollateral hands escrowed items back to the borrower.
type ReturnCollateral struct {
	Borrower game.PlayerID
	Items    []item.Stack
}

func (ReturnCollateral) effect() {}

// Notice delivers a classified outcome line to a player.
type Notice struct {
	Player   game.PlayerID
	Severity notify.Severity
	Text     string
}

func (Notice) effect() {}

// Applier executes scheduled effects. Collateral goes to the borrower's
// inventory when online, overflow drops at the borrower instead of being
// lost, and offline borrowers get a pending-return record in the queue.
type Applier struct {
	world   game.World
	sched   sched.Scheduler
	sink    notify.Sink
	returns ReturnQueue
	log     *slog.Logger
}

// NewApplier wires an effect applier.
func NewApplier(world game.World, s sched.Scheduler, sink notify.Sink, returns ReturnQueue, log *slog.Logger) *Applier {
	return &Applier{world: world, sched: s, sink: sink, returns: returns, log: log}
}

// Apply executes effects in order. It blocks until inventory mutations ran on
// the scheduler, so callers can treat the return as synchronous with the
// transition.
func (a *Applier) Apply(ctx context.Context, effects []Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case ReturnCollateral:
			a.returnCollateral(ctx, e)
		case Notice:
			if a.sink != nil {
				a.sink.Send(e.Player, e.Severity, e.Text)
			}
		}
	}
}

func (a *Applier) returnCollateral(ctx context.Context, r ReturnCollateral) {
	if a.world.Online(r.Borrower) {
		a.deliver(r.Borrower, r.Items)
		return
	}

	if err := a.returns.Push(ctx, r.Borrower, r.Items); err != nil {
		// The queue is the only thing standing between an offline borrower
		// and lost collateral; treat a push failure like a reconciliation
		// incident and keep the items in memory as a last resort.
		if a.log != nil {
			a.log.Error("pending collateral return could not be persisted",
				slog.Bool("reconciliation", true),
				slog.String("borrower", string(r.Borrower)),
				slog.Any("error", err))
		}
		a.deliver(r.Borrower, r.Items)
	}
}

// deliver gives stacks to the player on the main loop; what does not fit is
// dropped at the player rather than lost.
func (a *Applier) deliver(player game.PlayerID, items []item.Stack) {
	sched.Wait(a.sched, func() struct{} {
		for _, s := range items {
			if s.Empty() {
				continue
			}
			if rest := a.world.Give(player, s); !rest.Empty() {
				a.world.Drop(player, rest)
			}
		}
		return struct{}{}
	})
}

// FlushReturns drains the player's pending collateral returns, called when
// the player logs in.
func (a *Applier) FlushReturns(ctx context.Context, player game.PlayerID) error {
	items, err := a.returns.Drain(ctx, player)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	a.deliver(player, items)
	if a.sink != nil {
		a.sink.Send(player, notify.Success, "Collateral from a cancelled loan was returned to you.")
	}
	return nil
}
