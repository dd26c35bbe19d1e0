package control

import (
	"errors"

	"github.com/slurmcore/slurmcore/pkg/conmgr"
	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

// OnMsg adapts Dispatcher to conmgr's KindRPC Events.OnMsg callback: decode
// and dispatch already happened upstream in conmgr, so this only needs to
// turn a Handle result back into a response frame and write it to the same
// Connection it arrived on. mgr is the Manager c belongs to; it is needed
// for XferOutBuffer/Shutdown since Connection carries no back-reference.
func (d *Dispatcher) OnMsg(mgr *conmgr.Manager) func(c *conmgr.Connection, arg any, msg wire.Message) error {
	return func(c *conmgr.Connection, arg any, msg wire.Message) error {
		respType, body, err, wantShutdown := d.Handle(msg)
		if err != nil {
			if isAuthSkip(err) {
				return nil
			}
			respType = wire.RPCResponseRc
			body = wire.EncodeResponseRc(errorToRc(err))
		}

		mgr.XferOutBuffer(c, wire.EncodeFrame(wire.Message{Version: msg.Version, Type: respType, Body: body}))

		if wantShutdown {
			log.WithComponent("control").Error().Err(err).Msg("control: fatal dispatch error, requesting shutdown")
			mgr.Shutdown()
		}
		if err != nil && Terminating(err) {
			return err
		}
		return nil
	}
}

// errorToRc maps a Dispatcher error to the ResponseRc code a caller
// expects back on the wire. Kinds with no specific wire code surface as a
// generic non-zero failure.
func errorToRc(err error) uint32 {
	var e *Error
	if !errors.As(err, &e) {
		return 1
	}
	// Handlers wrap JobStore errors; a kind the store already chose
	// (AlreadyDone, TransitionPending) takes precedence over the wrapper's.
	for inner := (*Error)(nil); e.Err != nil && errors.As(e.Err, &inner); {
		e = inner
	}
	switch e.Kind {
	case AlreadyDone:
		return wire.ESlurmAlreadyDone
	case InvalidObjectID:
		return wire.ESlurmInvalidJobID
	case TransitionPending:
		return wire.ESlurmTransitionStateNoUpdate
	case Timeout:
		return wire.SlurmProtocolSocketImplTimeout
	default:
		return 1
	}
}
