package validator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vigil-labs/vigil/internal/model"
)

const testTimeout = 150 * time.Millisecond

func rerouteAction(params map[string]any) model.ActionPrimitive {
	return model.ActionPrimitive{
		Verb:       "reroute_flight",
		Resource:   "flight:IB3202",
		Domain:     "aviation",
		Parameters: params,
	}
}

func TestFuelReserveAdequate(t *testing.T) {
	v := NewFuelReserve(testTimeout)
	// 500 nm x 5 lb/nm + 30 min x 5 lb/min = 2650 lb required.
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_fuel":   3000,
		"route_distance": 500,
		"burn_rate":      5,
		"night":          false,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}

func TestFuelReserveInsufficient(t *testing.T) {
	v := NewFuelReserve(testTimeout)
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_fuel":   2000,
		"route_distance": 500,
		"burn_rate":      5,
		"night":          false,
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
	assert.Equal(t, "FAA 14 CFR §91.151", out.RuleID)
	assert.Contains(t, out.Rationale, "2650")
}

func TestFuelReserveNightReserve(t *testing.T) {
	v := NewFuelReserve(testTimeout)
	// Night raises the reserve to 45 min: 2500 + 225 = 2725 required.
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_fuel":   2700,
		"route_distance": 500,
		"burn_rate":      5,
		"night":          true,
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
}

func TestFuelReserveExplicitBurnPerMinute(t *testing.T) {
	v := NewFuelReserve(testTimeout)
	// 500 x 5 + 30 x 10 = 2800 required.
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_fuel":      2750,
		"route_distance":    500,
		"burn_rate":         5,
		"burn_rate_per_min": 10,
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
}

func TestFuelReserveUnitSuffixedStrings(t *testing.T) {
	v := NewFuelReserve(testTimeout)
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_fuel":   "2000 lb",
		"route_distance": "500 nm",
		"burn_rate":      "5 lb/nm",
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
}

func TestFuelReserveNotApplicableWithoutTelemetry(t *testing.T) {
	v := NewFuelReserve(testTimeout)
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_duty_minutes":    520,
		"proposed_flight_minutes": 60,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
	assert.Contains(t, out.Rationale, "not applicable")
}

func TestFuelReservePartialContextEscalates(t *testing.T) {
	v := NewFuelReserve(testTimeout)
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_fuel": 2000,
	}))
	assert.Equal(t, model.DecisionEscalate, out.Decision)
	assert.Equal(t, model.ReasonInsufficientContext, out.RuleID)
	assert.Contains(t, out.Rationale, "burn_rate")
	assert.Contains(t, out.Rationale, "route_distance")
}

func TestCrewRestWithinLimits(t *testing.T) {
	v := NewCrewRest(testTimeout)
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_duty_minutes":    300,
		"proposed_flight_minutes": 120,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}

func TestCrewRestExceedsCap(t *testing.T) {
	v := NewCrewRest(testTimeout)
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_duty_minutes":    520,
		"proposed_flight_minutes": 60,
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
	assert.Equal(t, "FAA 14 CFR §121.471", out.RuleID)
	assert.Contains(t, out.Rationale, "580")
}

func TestCrewRestExactCapAllowed(t *testing.T) {
	v := NewCrewRest(testTimeout)
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_duty_minutes":    480,
		"proposed_flight_minutes": 60,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}

func TestCrewRestNotApplicableWithoutDutyContext(t *testing.T) {
	v := NewCrewRest(testTimeout)
	out := v.Validate(context.Background(), rerouteAction(map[string]any{
		"current_fuel":   3000,
		"route_distance": 500,
		"burn_rate":      5,
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
	assert.Contains(t, out.Rationale, "not applicable")
}

func altitudeAction(params map[string]any) model.ActionPrimitive {
	return model.ActionPrimitive{
		Verb:       "adjust_altitude",
		Resource:   "flight:IB3202",
		Domain:     "aviation",
		Parameters: params,
	}
}

func TestAirspaceBelowMinimum(t *testing.T) {
	v := NewAirspace(testTimeout)
	out := v.Validate(context.Background(), altitudeAction(map[string]any{
		"requested_altitude_ft": 800,
		"terrain_type":          "congested",
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
	assert.Equal(t, "FAA 14 CFR §91.119", out.RuleID)
}

func TestAirspaceMountainousTerrainElevation(t *testing.T) {
	v := NewAirspace(testTimeout)
	// 3000 ft elevation + 2000 ft AGL minimum = 5000 ft MSL floor.
	out := v.Validate(context.Background(), altitudeAction(map[string]any{
		"requested_altitude_ft": 4500,
		"terrain_type":          "mountainous",
		"terrain_elevation_ft":  3000,
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
}

func TestAirspaceRestrictedZone(t *testing.T) {
	v := NewAirspace(testTimeout)
	out := v.Validate(context.Background(), altitudeAction(map[string]any{
		"requested_altitude_ft": 10000,
		"restricted_zone":       true,
	}))
	assert.Equal(t, model.DecisionDeny, out.Decision)
	assert.Contains(t, out.Rationale, "restricted zone")
}

func TestAirspaceClear(t *testing.T) {
	v := NewAirspace(testTimeout)
	out := v.Validate(context.Background(), altitudeAction(map[string]any{
		"requested_altitude_ft": 10000,
		"terrain_type":          "open",
	}))
	assert.Equal(t, model.DecisionAllow, out.Decision)
}
