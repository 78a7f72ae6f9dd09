// Package domain defines the core types shared by the transit answer pipeline
// and the proactive notifier: documents, plans, tool results, answers and
// subscriptions.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document is a unit of retrievable context. Immutable once indexed.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Tool names a data operation a plan step can invoke.
type Tool string

const (
	ToolPosition Tool = "position"
	ToolWeather  Tool = "weather"
	ToolETA      Tool = "eta"
	ToolNone     Tool = "none"
)

// ParseTool maps a planner-provided tool name onto a Tool. "gps" is accepted
// as an alias for position; anything unrecognised becomes ToolNone.
func ParseTool(name string) Tool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "position", "gps", "location":
		return ToolPosition
	case "weather":
		return ToolWeather
	case "eta":
		return ToolETA
	default:
		return ToolNone
	}
}

// UnmarshalJSON normalises tool names through ParseTool.
func (t *Tool) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = ParseTool(s)
	return nil
}

// PlanStep is one tool invocation in a Plan.
type PlanStep struct {
	Tool   Tool           `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// Step builds a PlanStep from alternating key/value pairs. Empty string
// values are dropped.
func Step(tool Tool, kv ...string) PlanStep {
	s := PlanStep{Tool: tool}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		if s.Params == nil {
			s.Params = make(map[string]any)
		}
		s.Params[kv[i]] = kv[i+1]
	}
	return s
}

// Param returns a param as a string. Numbers are formatted without
// trailing zeros; missing or null params yield "".
func (s PlanStep) Param(key string) string {
	switch v := s.Params[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// FloatParam returns a numeric param, accepting numeric strings.
func (s PlanStep) FloatParam(key string) (float64, bool) {
	switch v := s.Params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Plan is an ordered list of steps. A valid plan is never empty.
type Plan []PlanStep

// Tools lists the tool of every step, in order.
func (p Plan) Tools() []Tool {
	out := make([]Tool, len(p))
	for i, s := range p {
		out[i] = s.Tool
	}
	return out
}

// Answer is the produced result of the pipeline.
type Answer struct {
	Answer  string   `json:"answer"`
	Trace   Trace    `json:"trace"`
	Context []string `json:"context"`
}

// NewAbstain builds an answer carrying only a user-facing sentence.
func NewAbstain(msg string) *Answer {
	return &Answer{Answer: msg, Trace: Trace{}, Context: []string{}}
}
