package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	cases := map[string]string{
		"Where is B1?":          "where is b1?",
		"  where   is\tb1? \n":  "where is b1?",
		"":                      "",
		"   ":                   "",
		"ETA for Bus B2 to S3?": "eta for bus b2 to s3?",
	}
	for in, want := range cases {
		if got := NormalizeQuery(in); got != want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIdentifierExtraction(t *testing.T) {
	q := "is b1 or B1 or b12 on r3? also S4, R3"
	if got := BusIDs(q); !reflect.DeepEqual(got, []string{"B1", "B12"}) {
		t.Errorf("BusIDs = %v", got)
	}
	if got := RouteIDs(q); !reflect.DeepEqual(got, []string{"R3"}) {
		t.Errorf("RouteIDs = %v", got)
	}
	if FirstStopID(q) != "S4" {
		t.Errorf("FirstStopID = %q", FirstStopID(q))
	}
	if FirstBusID("the bus is late") != "" {
		t.Error("expected no bus id")
	}
	if BusIDs("bus12 is not an id") != nil {
		t.Error("bus12 should not match")
	}
	if !HasEntityID("what about s9") || HasEntityID("xyz123") {
		t.Error("HasEntityID mismatch")
	}
}

func TestParseTool(t *testing.T) {
	cases := map[string]Tool{
		"position": ToolPosition, "GPS": ToolPosition, " weather ": ToolWeather,
		"eta": ToolETA, "none": ToolNone, "teleport": ToolNone, "": ToolNone,
	}
	for in, want := range cases {
		if got := ParseTool(in); got != want {
			t.Errorf("ParseTool(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPlanStepParams(t *testing.T) {
	var s PlanStep
	if err := json.Unmarshal([]byte(`{"tool":"gps","params":{"bus_id":" B1 ","lat":"22.5","lon":88.3,"n":7}}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.Tool != ToolPosition {
		t.Fatalf("tool = %q", s.Tool)
	}
	if s.Param("bus_id") != "B1" || s.Param("n") != "7" || s.Param("missing") != "" {
		t.Fatalf("params: %+v", s.Params)
	}
	if lat, ok := s.FloatParam("lat"); !ok || lat != 22.5 {
		t.Fatalf("lat = %v %v", lat, ok)
	}
	if lon, ok := s.FloatParam("lon"); !ok || lon != 88.3 {
		t.Fatalf("lon = %v %v", lon, ok)
	}
	if _, ok := s.FloatParam("bus_id"); ok {
		t.Fatal("bus_id should not parse as float")
	}
}

func TestStepDropsEmptyValues(t *testing.T) {
	s := Step(ToolETA, "bus_id", "", "stop_id", "S1")
	if len(s.Params) != 1 || s.Param("stop_id") != "S1" {
		t.Fatalf("unexpected params %v", s.Params)
	}
	if Step(ToolNone).Params != nil {
		t.Fatal("expected nil params")
	}
}

func TestTraceJSONPreservesKinds(t *testing.T) {
	temp := 31.5
	in := Trace{
		{Step: Step(ToolPosition, "bus_id", "B1"), Result: PositionResult{BusID: "B1", Lat: 22.57, Lon: 88.36, SpeedKmph: 20}},
		{Step: Step(ToolWeather), Result: WeatherResult{Condition: "Rain", TempC: &temp, ExpectedDelaySec: 300}},
		{Step: Step(ToolETA, "bus_id", "B1", "stop_id", "S1"), Result: FallbackETA("B1", "S1")},
		{Step: Step(ToolWeather), Result: Errorf("no coordinates")},
		{Step: Step(ToolNone), Result: NoOpResult{Info: "no-op"}},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Trace
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n%#v\n%#v", in, out)
	}
}

func TestToolResultUnknownKind(t *testing.T) {
	var tr ToolResult
	if err := json.Unmarshal([]byte(`{"step":{"tool":"eta"},"kind":"mystery","result":{}}`), &tr); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestWeatherDelayAlias(t *testing.T) {
	var w WeatherResult
	if err := json.Unmarshal([]byte(`{"condition":"Haze","delay":300,"temp":29}`), &w); err != nil {
		t.Fatal(err)
	}
	if w.ExpectedDelaySec != 300 || w.TempC == nil || *w.TempC != 29 {
		t.Fatalf("unexpected %+v", w)
	}
}

func TestFirstETA(t *testing.T) {
	tr := Trace{
		{Step: Step(ToolWeather), Result: UnknownWeather()},
		{Step: Step(ToolETA), Result: Errorf("boom")},
		{Step: Step(ToolETA), Result: ETAResult{StopID: "S2", ETASec: 90}},
		{Step: Step(ToolETA), Result: ETAResult{StopID: "S3", ETASec: 10}},
	}
	eta, ok := tr.FirstETA()
	if !ok || eta.StopID != "S2" {
		t.Fatalf("got %+v %v", eta, ok)
	}
	if _, ok := (Trace{}).FirstETA(); ok {
		t.Fatal("empty trace should have no eta")
	}
}

func TestRawSeconds(t *testing.T) {
	cases := map[RawSeconds]int{"250": 250, " 600 ": 600, "90.7": 90, "soon": 300, "": 300}
	for in, want := range cases {
		if got := in.Seconds(300); got != want {
			t.Errorf("%q.Seconds = %d, want %d", in, got, want)
		}
	}

	var sub Subscription
	if err := json.Unmarshal([]byte(`{"user_id":"u1","bus_id":"B1","stop_id":"S1","notify_before_sec":450}`), &sub); err != nil {
		t.Fatal(err)
	}
	if sub.NotifyWindow() != 450 {
		t.Fatalf("window = %d", sub.NotifyWindow())
	}
	if err := json.Unmarshal([]byte(`{"notify_before_sec":"abc"}`), &sub); err != nil {
		t.Fatal(err)
	}
	if sub.NotifyWindow() != DefaultNotifyBeforeSec {
		t.Fatalf("window = %d", sub.NotifyWindow())
	}
}

func TestSubscriptionHelpers(t *testing.T) {
	s := Subscription{UserID: "u1", BusID: "B1"}
	if s.Complete() {
		t.Fatal("missing stop should be incomplete")
	}
	s.StopID = "S1"
	if !s.Complete() {
		t.Fatal("expected complete")
	}
	if s.DeliveryChannel() != ChannelConsole {
		t.Fatal("default channel should be console")
	}
	s.Channel = "SMS"
	if s.DeliveryChannel() != ChannelSMS {
		t.Fatal("channel should be lower-cased")
	}
}

func TestAbstainError(t *testing.T) {
	err := error(NewAbstainError("entity", "B999", UnknownEntityMessage("bus", "B999"), ErrUnknownEntity))
	if !errors.Is(err, ErrUnknownEntity) {
		t.Fatal("should unwrap to ErrUnknownEntity")
	}
	var ae *AbstainError
	if !errors.As(err, &ae) || ae.Value != "B999" {
		t.Fatal("errors.As failed")
	}
	want := "No information available: I could not find any bus with ID B999 in the current fleet data."
	if ae.Message != want {
		t.Fatalf("message = %q", ae.Message)
	}
}
