package planner

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

type fakeLLM struct {
	out    string
	err    error
	panics bool
	prompt string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.panics {
		panic("model crashed")
	}
	return f.out, f.err
}

func tools(p domain.Plan) []domain.Tool { return p.Tools() }

func TestRulePlan(t *testing.T) {
	W, E, P, N := domain.ToolWeather, domain.ToolETA, domain.ToolPosition, domain.ToolNone
	tests := []struct {
		query string
		want  []domain.Tool
	}{
		{"When will B1 reach S1?", []domain.Tool{W, E, P}},
		{"when does the bus arrive", []domain.Tool{W, E}},
		{"Is it raining near b2?", []domain.Tool{P, W, P}},
		{"weather on R3", []domain.Tool{W}},
		{"temperature today", []domain.Tool{W}},
		{"Where is the bus?", []domain.Tool{P}},
		{"B4", []domain.Tool{P}},
		{"hello there", []domain.Tool{N}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := tools(RulePlan(tt.query)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRulePlanParams(t *testing.T) {
	plan := RulePlan("When will b1 reach S7?")
	eta := plan[1]
	if eta.Param("bus_id") != "B1" || eta.Param("stop_id") != "S7" {
		t.Errorf("eta params = %v", eta.Params)
	}
	if plan[0].Params != nil {
		t.Errorf("weather step should have no params: %v", plan[0].Params)
	}

	plan = RulePlan("when does it arrive")
	if plan[1].Param("stop_id") != domain.DefaultStopID || plan[1].Param("bus_id") != "" {
		t.Errorf("default stop params = %v", plan[1].Params)
	}

	plan = RulePlan("weather along r2")
	if plan[0].Param("route_id") != "R2" {
		t.Errorf("route weather params = %v", plan[0].Params)
	}
}

func TestParsePlanStrict(t *testing.T) {
	plan, err := ParsePlan(`{"plan":[{"tool":"gps","params":{"bus_id":"B1"}},{"tool":"eta","params":{"bus_id":"B1","stop_id":"S2"}}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan.Tools(), []domain.Tool{domain.ToolPosition, domain.ToolETA}) {
		t.Errorf("tools = %v", plan.Tools())
	}
	if plan[1].Param("stop_id") != "S2" {
		t.Errorf("params = %v", plan[1].Params)
	}
}

func TestParsePlanEmbedded(t *testing.T) {
	text := "Sure! Here is the plan:\n```json\n{\"plan\": [{\"tool\": \"weather\", \"params\": {\"lat\": 22.5, \"lon\": 88.3, \"note\": \"a } brace\"}}]}\n```\nLet me know {if} you need more."
	plan, err := ParsePlan(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 1 || plan[0].Tool != domain.ToolWeather {
		t.Fatalf("plan = %+v", plan)
	}
	if lat, ok := plan[0].FloatParam("lat"); !ok || lat != 22.5 {
		t.Errorf("lat = %v %v", lat, ok)
	}
}

func TestParsePlanUnknownTool(t *testing.T) {
	plan, err := ParsePlan(`{"plan":[{"tool":"teleport"}]}`)
	if err != nil || plan[0].Tool != domain.ToolNone {
		t.Errorf("got %+v, %v", plan, err)
	}
}

func TestParsePlanFailures(t *testing.T) {
	for _, text := range []string{
		"",
		"no json here",
		`{"plan": [`,
		`{"steps": []}`,
		`prefix {"plan": "nope"} suffix`,
	} {
		if _, err := ParsePlan(text); !errors.Is(err, domain.ErrPlanParse) {
			t.Errorf("%q: expected ErrPlanParse, got %v", text, err)
		}
	}
}

func TestFirstJSONObject(t *testing.T) {
	got, ok := FirstJSONObject(`xx {"a": {"b": "}\""}} yy {"c":1}`)
	if !ok || got != `{"a": {"b": "}\""}}` {
		t.Errorf("got %q %v", got, ok)
	}
	if _, ok := FirstJSONObject("{ unbalanced"); ok {
		t.Error("unbalanced should fail")
	}
}

func TestPlanUsesLLM(t *testing.T) {
	llm := &fakeLLM{out: `{"plan":[{"tool":"position","params":{"bus_id":"B9"}}]}`}
	plan := New(llm, nil).Plan(context.Background(), "Where is B9?", []string{"Bus B9: {}"})
	if len(plan) != 1 || plan[0].Param("bus_id") != "B9" {
		t.Errorf("plan = %+v", plan)
	}
	if !strings.Contains(llm.prompt, "Bus B9: {}") || !strings.Contains(llm.prompt, "Where is B9?") {
		t.Errorf("prompt missing context or question:\n%s", llm.prompt)
	}
}

func TestPlanFallsBackToRules(t *testing.T) {
	want := RulePlan("When will B1 reach S1?")
	for name, llm := range map[string]*fakeLLM{
		"error":      {err: errors.New("rate limited")},
		"garbage":    {out: "I cannot help with that"},
		"empty plan": {out: `{"plan": []}`},
		"panic":      {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			got := New(llm, nil).Plan(context.Background(), "When will B1 reach S1?", nil)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
	if got := New(nil, nil).Plan(context.Background(), "When will B1 reach S1?", nil); !reflect.DeepEqual(got, want) {
		t.Errorf("nil llm: got %+v", got)
	}
}
