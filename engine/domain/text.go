package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/WessleyAI/transit-mvp/pkg/fn"
)

// User-facing sentences.
const (
	MsgNoInformation = "No information available."
	MsgOutOfDomain   = "I am a transport assistant and only answer questions about buses, routes and stops. " +
		"No information is available for this question."
	MsgLowRelevance  = "I could not find reliable information for this question in my current data."
	MsgCatastrophic  = "Sorry, something went wrong when answering your question."
	MsgEmptyAnswer   = "Sorry, I could not find an answer to your question."
)

// UnknownEntityMessage names the identifier that is missing from the fleet.
func UnknownEntityMessage(kind, id string) string {
	return fmt.Sprintf("No information available: I could not find any %s with ID %s in the current fleet data.", kind, id)
}

// DefaultStopID is used when a query names no stop.
const DefaultStopID = "S1"

var (
	busIDRe   = regexp.MustCompile(`\b[Bb]\d+\b`)
	routeIDRe = regexp.MustCompile(`\b[Rr]\d+\b`)
	stopIDRe  = regexp.MustCompile(`\b[Ss]\d+\b`)
	anyIDRe   = regexp.MustCompile(`\b[BbRrSs]\d+\b`)
)

// NormalizeQuery trims, lower-cases and collapses whitespace. Used only for
// cache keys.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// CollapseSpace collapses runs of whitespace into single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HasEntityID reports whether q contains a bus, route or stop identifier.
func HasEntityID(q string) bool { return anyIDRe.MatchString(q) }

// BusIDs returns every bus identifier in q, uppercased and deduplicated.
func BusIDs(q string) []string { return ids(busIDRe, q) }

// RouteIDs returns every route identifier in q, uppercased and deduplicated.
func RouteIDs(q string) []string { return ids(routeIDRe, q) }

// FirstBusID returns the first bus identifier in q, or "".
func FirstBusID(q string) string { return first(busIDRe, q) }

// FirstRouteID returns the first route identifier in q, or "".
func FirstRouteID(q string) string { return first(routeIDRe, q) }

// FirstStopID returns the first stop identifier in q, or "".
func FirstStopID(q string) string { return first(stopIDRe, q) }

func first(re *regexp.Regexp, q string) string {
	return strings.ToUpper(re.FindString(q))
}

func ids(re *regexp.Regexp, q string) []string {
	return fn.Unique(fn.Map(re.FindAllString(q, -1), strings.ToUpper))
}
