package testing

import (
	"context"
	"sync"

	"github.com/amirphl/wa-pool/app/services"
)

// ScriptedGateway is a GatewayClient whose answers are set by the test.
// Unset states report STOPPED.
type ScriptedGateway struct {
	mu sync.Mutex

	states     map[string]services.GatewaySessionStatus
	failStarts int

	// StartErr, when set, decides the outcome of each start after failStarts is used up
	StartErr  func(name string) error
	StopErr   error
	StatusErr error
	CodeErr   error

	QRCode      string
	PairingCode string

	Started []string
	Stopped []string
	Checked []string
}

var _ services.GatewayClient = (*ScriptedGateway)(nil)

func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{
		states:      make(map[string]services.GatewaySessionStatus),
		QRCode:      "2@qr-payload",
		PairingCode: "ABCD-EFGH",
	}
}

// FailFirstStarts makes the next n StartSession calls fail as unreachable
func (g *ScriptedGateway) FailFirstStarts(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failStarts = n
}

// SetState fixes the status reported for name
func (g *ScriptedGateway) SetState(name, state string, identity *string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[name] = services.GatewaySessionStatus{State: state, Identity: identity}
}

// Calls returns copies of the recorded start, stop and status call names
func (g *ScriptedGateway) Calls() (started, stopped, checked []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Started...), append([]string(nil), g.Stopped...), append([]string(nil), g.Checked...)
}

func (g *ScriptedGateway) StartSession(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failStarts > 0 {
		g.failStarts--
		return services.ErrGatewayUnreachable
	}
	if g.StartErr != nil {
		if err := g.StartErr(name); err != nil {
			return err
		}
	}
	g.Started = append(g.Started, name)
	g.states[name] = services.GatewaySessionStatus{State: "STARTING"}
	return nil
}

func (g *ScriptedGateway) StopSession(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.StopErr != nil {
		return g.StopErr
	}
	g.Stopped = append(g.Stopped, name)
	g.states[name] = services.GatewaySessionStatus{State: "STOPPED"}
	return nil
}

func (g *ScriptedGateway) GetSessionStatus(ctx context.Context, name string) (*services.GatewaySessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Checked = append(g.Checked, name)
	if g.StatusErr != nil {
		return nil, g.StatusErr
	}
	st, ok := g.states[name]
	if !ok {
		st = services.GatewaySessionStatus{State: "STOPPED"}
	}
	return &st, nil
}

func (g *ScriptedGateway) GetQRCode(ctx context.Context, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CodeErr != nil {
		return "", g.CodeErr
	}
	return g.QRCode, nil
}

func (g *ScriptedGateway) GetPairingCode(ctx context.Context, name, phoneNumber string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CodeErr != nil {
		return "", g.CodeErr
	}
	return g.PairingCode, nil
}

// RefillRecorder counts refill triggers
type RefillRecorder struct {
	mu      sync.Mutex
	Reasons []string
}

func (r *RefillRecorder) Trigger(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reasons = append(r.Reasons, reason)
	return true
}

func (r *RefillRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Reasons)
}
