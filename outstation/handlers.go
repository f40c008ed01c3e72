package outstation

import (
	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/apdu"
	"github.com/rob-gra/go-dnp3/objects"
)

// ControlHandler dispatches SELECT/OPERATE/DIRECT_OPERATE requests to
// user logic. BeginFragment/EndFragment bracket every command fragment
// so a binding can batch side effects (e.g. one hardware transaction per
// fragment) the way the reference ControlHandler interface does.
type ControlHandler interface {
	BeginFragment()
	SelectCROB(index uint16, crob objects.ControlRelayOutputBlock) dnp3.CommandStatus
	OperateCROB(index uint16, crob objects.ControlRelayOutputBlock) dnp3.CommandStatus
	EndFragment()
}

// Application answers outstation-identity questions the session can't
// decide on its own: restart support, and any application-specific IIN
// bits (LOCAL_CONTROL, DEVICE_TROUBLE, CONFIG_CORRUPT) layered on top of
// the session's own RESTART/event/overflow bits.
type Application interface {
	ColdRestart() (delaySeconds uint16, supported bool)
	WarmRestart() (delaySeconds uint16, supported bool)
	GetApplicationIIN() apdu.IIN
}

// NopApplication is a minimal Application that supports neither restart
// command and contributes no extra IIN bits; embed it to implement only
// the methods that matter.
type NopApplication struct{}

// ColdRestart implements Application.
func (NopApplication) ColdRestart() (uint16, bool) { return 0, false }

// WarmRestart implements Application.
func (NopApplication) WarmRestart() (uint16, bool) { return 0, false }

// GetApplicationIIN implements Application.
func (NopApplication) GetApplicationIIN() apdu.IIN { return apdu.IIN{} }
