package planner

import (
	"strings"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

var (
	arrivalWords  = []string{"when", "arrive", "eta", "reach", "late", "delay"}
	weatherWords  = []string{"weather", "rain", "sunny", "haze", "temperature"}
	locationWords = []string{"where", "location", "status"}
)

// RulePlan is the deterministic keyword planner. Rules are independent and
// applied in a fixed order; a query may trigger several.
func RulePlan(query string) domain.Plan {
	q := strings.ToLower(query)
	bus := domain.FirstBusID(query)
	route := domain.FirstRouteID(query)
	stop := domain.FirstStopID(query)
	if stop == "" {
		stop = domain.DefaultStopID
	}

	var plan domain.Plan
	if containsAny(q, arrivalWords) {
		plan = append(plan,
			domain.Step(domain.ToolWeather),
			domain.Step(domain.ToolETA, "bus_id", bus, "stop_id", stop),
		)
	}
	if containsAny(q, weatherWords) {
		switch {
		case bus != "":
			plan = append(plan,
				domain.Step(domain.ToolPosition, "bus_id", bus),
				domain.Step(domain.ToolWeather),
			)
		case route != "":
			plan = append(plan, domain.Step(domain.ToolWeather, "route_id", route))
		default:
			plan = append(plan, domain.Step(domain.ToolWeather))
		}
	}
	if containsAny(q, locationWords) || bus != "" {
		plan = append(plan, domain.Step(domain.ToolPosition, "bus_id", bus))
	}
	if len(plan) == 0 {
		plan = append(plan, domain.Step(domain.ToolNone))
	}
	return plan
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
