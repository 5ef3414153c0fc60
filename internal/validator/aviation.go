package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/vigil-labs/vigil/internal/model"
)

// Aviation rule constants. Reserve minutes come from the VFR fuel rule:
// 30 minutes of reserve by day, 45 by night.
const (
	dayReserveMinutes   = 30
	nightReserveMinutes = 45
	maxDutyMinutes      = 540
)

// FuelReserve enforces FAA 14 CFR §91.151: a reroute may not leave the
// aircraft with less fuel than the route burn plus the VFR reserve.
type FuelReserve struct {
	timeout time.Duration
}

// NewFuelReserve creates the fuel-reserve validator with the given timeout.
func NewFuelReserve(timeout time.Duration) *FuelReserve {
	return &FuelReserve{timeout: timeout}
}

func (v *FuelReserve) Name() string           { return "fuel_reserve" }
func (v *FuelReserve) RuleID() string         { return "FAA 14 CFR §91.151" }
func (v *FuelReserve) Timeout() time.Duration { return v.timeout }

// Validate computes required = route_distance × burn_rate + reserve ×
// burn_rate_per_min and denies when current fuel falls short. When
// burn_rate_per_min is not supplied, the cruise approximation of one
// nautical mile per minute makes it equal to burn_rate.
func (v *FuelReserve) Validate(_ context.Context, action model.ActionPrimitive) model.ValidatorVerdict {
	p := params(action.Parameters)

	required := []string{"current_fuel", "route_distance", "burn_rate"}
	missing := p.missingOf(required...)
	if len(missing) == len(required) {
		return notApplicable(v.RuleID(), "fuel telemetry")
	}
	if len(missing) > 0 {
		return insufficientContext(missing)
	}

	currentFuel, _ := p.Float("current_fuel")
	distance, _ := p.Float("route_distance")
	burnRate, _ := p.Float("burn_rate")
	night, _ := p.Bool("night")

	burnPerMin, ok := p.Float("burn_rate_per_min")
	if !ok {
		burnPerMin = burnRate
	}

	reserveMinutes := float64(dayReserveMinutes)
	if night {
		reserveMinutes = nightReserveMinutes
	}

	requiredFuel := distance*burnRate + reserveMinutes*burnPerMin
	if currentFuel < requiredFuel {
		return verdict(model.DecisionDeny, v.RuleID(),
			fmt.Sprintf("insufficient fuel: have %s lb, need %s lb (includes %.0f min reserve)",
				formatAmount(currentFuel), formatAmount(requiredFuel), reserveMinutes))
	}

	return verdict(model.DecisionAllow, v.RuleID(),
		fmt.Sprintf("fuel adequate: %s lb available, %s lb required",
			formatAmount(currentFuel), formatAmount(requiredFuel)))
}

// CrewRest enforces FAA 14 CFR §121.471: total crew duty time may not
// exceed the 540-minute cap.
type CrewRest struct {
	timeout time.Duration
}

// NewCrewRest creates the crew-rest validator with the given timeout.
func NewCrewRest(timeout time.Duration) *CrewRest {
	return &CrewRest{timeout: timeout}
}

func (v *CrewRest) Name() string           { return "crew_rest" }
func (v *CrewRest) RuleID() string         { return "FAA 14 CFR §121.471" }
func (v *CrewRest) Timeout() time.Duration { return v.timeout }

func (v *CrewRest) Validate(_ context.Context, action model.ActionPrimitive) model.ValidatorVerdict {
	p := params(action.Parameters)

	required := []string{"current_duty_minutes", "proposed_flight_minutes"}
	missing := p.missingOf(required...)
	if len(missing) == len(required) {
		return notApplicable(v.RuleID(), "crew duty context")
	}
	if len(missing) > 0 {
		return insufficientContext(missing)
	}

	currentDuty, _ := p.Float("current_duty_minutes")
	proposed, _ := p.Float("proposed_flight_minutes")

	total := currentDuty + proposed
	if total > maxDutyMinutes {
		return verdict(model.DecisionDeny, v.RuleID(),
			fmt.Sprintf("crew duty would reach %s minutes, cap is %d",
				formatAmount(total), maxDutyMinutes))
	}

	return verdict(model.DecisionAllow, v.RuleID(),
		fmt.Sprintf("crew duty within limits: %s of %d minutes",
			formatAmount(total), maxDutyMinutes))
}

// minSafeAltitudesAGL maps terrain type to the minimum safe altitude above
// ground level, in feet.
var minSafeAltitudesAGL = map[string]float64{
	"congested":   1000,
	"open":        500,
	"mountainous": 2000,
}

// Airspace enforces FAA 14 CFR §91.119: the requested altitude must clear
// the minimum safe altitude for the terrain and must not enter a
// restricted zone.
type Airspace struct {
	timeout time.Duration
}

// NewAirspace creates the airspace validator with the given timeout.
func NewAirspace(timeout time.Duration) *Airspace {
	return &Airspace{timeout: timeout}
}

func (v *Airspace) Name() string           { return "airspace" }
func (v *Airspace) RuleID() string         { return "FAA 14 CFR §91.119" }
func (v *Airspace) Timeout() time.Duration { return v.timeout }

func (v *Airspace) Validate(_ context.Context, action model.ActionPrimitive) model.ValidatorVerdict {
	p := params(action.Parameters)

	if !p.Has("requested_altitude_ft") && !p.Has("restricted_zone") {
		return notApplicable(v.RuleID(), "altitude context")
	}

	if restricted, ok := p.Bool("restricted_zone"); ok && restricted {
		return verdict(model.DecisionDeny, v.RuleID(),
			"requested trajectory intersects a restricted zone")
	}

	altitude, ok := p.Float("requested_altitude_ft")
	if !ok {
		return insufficientContext([]string{"requested_altitude_ft"})
	}

	terrain, ok := p.String("terrain_type")
	if !ok {
		terrain = "open"
	}
	minAGL, ok := minSafeAltitudesAGL[terrain]
	if !ok {
		minAGL = minSafeAltitudesAGL["open"]
	}
	elevation, _ := p.Float("terrain_elevation_ft")
	minMSL := elevation + minAGL

	if altitude < minMSL {
		return verdict(model.DecisionDeny, v.RuleID(),
			fmt.Sprintf("altitude %s ft below minimum safe altitude %s ft MSL for %s terrain",
				formatAmount(altitude), formatAmount(minMSL), terrain))
	}

	return verdict(model.DecisionAllow, v.RuleID(),
		fmt.Sprintf("altitude %s ft clears minimum %s ft MSL",
			formatAmount(altitude), formatAmount(minMSL)))
}
