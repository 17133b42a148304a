// Package emergency drives the circuit breaker: Normal, Warning and
// EmergencyPaused, with resume as a separate privileged transition.
package emergency

import (
	"context"

	"github.com/danmuck/reservectl/internal/fixedmath"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/ports"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/solvency"
	"github.com/rs/zerolog/log"
)

// Phase is the externally visible breaker state.
type Phase uint8

const (
	Normal Phase = iota
	Warning
	EmergencyPaused
)

func (p Phase) String() string {
	switch p {
	case Normal:
		return "normal"
	case Warning:
		return "warning"
	case EmergencyPaused:
		return "emergency_paused"
	default:
		return "unknown"
	}
}

// PhaseOf derives the phase from the persisted record.
func PhaseOf(rec ledger.Record, minBps uint16) Phase {
	if rec.IsPaused {
		return EmergencyPaused
	}
	if rec.EmergencyMode {
		return Warning
	}
	if rec.LastSolvencyCheck != 0 && solvency.Classify(rec.GlobalCollateralRatio, minBps) != solvency.Healthy {
		return Warning
	}
	return Normal
}

type target struct {
	name string
	port ports.Pausable
}

// Machine fans pause and resume out to the dependent collaborators.
type Machine struct {
	clock   ports.Clock
	targets []target
}

// New builds a machine. Fan-out order is custody, strategy manager, token issuer.
func New(clock ports.Clock, custody ports.CollateralCustody, strategies ports.StrategyManager, issuer ports.TokenIssuer) *Machine {
	return &Machine{
		clock: clock,
		targets: []target{
			{name: ports.NameCustody, port: custody},
			{name: ports.NameStrategy, port: strategies},
			{name: ports.NameIssuer, port: issuer},
		},
	}
}

// Pause enters EmergencyPaused. Every collaborator must acknowledge the pause
// before any ledger field changes. Repeated activation keeps is_paused set and
// increments the override counter each time.
func (m *Machine) Pause(ctx context.Context, rec *ledger.Record, kind ledger.EmergencyType, trigger string) (ledger.EmergencyEvent, error) {
	if !kind.Known() {
		log.Warn().Msgf("emergency.Machine.Pause unknown emergency type=%d trigger=%s", kind, trigger)
	}
	for _, t := range m.targets {
		if err := t.port.Pause(ctx); err != nil {
			log.Error().Err(err).Msgf("emergency.Machine.Pause fan-out failed port=%s type=%d", t.name, kind)
			return ledger.EmergencyEvent{}, protocol.Collaborator(t.name, "pause", err)
		}
	}
	now, err := m.clock.Now(ctx)
	if err != nil {
		return ledger.EmergencyEvent{}, protocol.Collaborator(ports.NameClock, "now", err)
	}

	rec.IsPaused = true
	rec.EmergencyMode = true
	rec.EmergencyOverrideCount = fixedmath.SatInc(rec.EmergencyOverrideCount)
	rec.LastEmergencyAction = now

	event := ledger.EmergencyEvent{
		Type:          kind,
		Timestamp:     now,
		OverrideCount: rec.EmergencyOverrideCount,
		Trigger:       trigger,
	}
	log.Warn().Msgf(
		"emergency.Machine.Pause activated type=%d (%s) trigger=%s overrides=%d",
		kind, kind, trigger, rec.EmergencyOverrideCount,
	)
	return event, nil
}

// Resume returns to Normal. It reports false when nothing was paused.
func (m *Machine) Resume(ctx context.Context, rec *ledger.Record) (bool, error) {
	if !rec.IsPaused && !rec.EmergencyMode {
		log.Debug().Msg("emergency.Machine.Resume nothing to resume")
		return false, nil
	}
	for _, t := range m.targets {
		if err := t.port.Resume(ctx); err != nil {
			log.Error().Err(err).Msgf("emergency.Machine.Resume fan-out failed port=%s", t.name)
			return false, protocol.Collaborator(t.name, "resume", err)
		}
	}
	now, err := m.clock.Now(ctx)
	if err != nil {
		return false, protocol.Collaborator(ports.NameClock, "now", err)
	}
	rec.IsPaused = false
	rec.EmergencyMode = false
	rec.LastEmergencyAction = now
	log.Info().Msgf("emergency.Machine.Resume operations resumed overrides=%d", rec.EmergencyOverrideCount)
	return true, nil
}
