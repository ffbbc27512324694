package binding

import (
	"log/slog"

	"github.com/roach88/mstate/internal/engine"
	"github.com/roach88/mstate/internal/ir"
)

// builtin implements engine.EntryAction, engine.DoAction, and
// engine.ExitAction for the three built-in action kinds.
type builtin struct {
	p       *Program
	state   ir.StateID
	kind    string
	arg     string
	trigger ir.TriggerID
}

func (b *builtin) OnEntry(prev ir.StateID) error {
	return b.run("entry", "from", prev)
}

func (b *builtin) OnDo() error {
	return b.run("do", "", ir.StateInitial)
}

func (b *builtin) OnExit(next ir.StateID) error {
	return b.run("exit", "to", next)
}

func (b *builtin) run(phase, peerKey string, peer ir.StateID) error {
	switch b.kind {
	case "log":
		attrs := []any{
			"machine", b.p.spec.Name,
			"state", b.p.names.StateName(b.state),
			"action", phase,
		}
		if peerKey != "" {
			attrs = append(attrs, peerKey, b.p.names.StateName(peer))
		}
		attrs = append(attrs, "message", b.arg)
		slog.Info("machine log", attrs...)

	case "fire":
		err := b.p.machine.Fire(b.trigger)
		// A full queue is already logged and traced by the engine; it
		// must not halt the machine.
		if err != nil && !engine.IsQueueFullError(err) {
			return err
		}

	case "count":
		b.p.inc(b.arg)
	}
	return nil
}
