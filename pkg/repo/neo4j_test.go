package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// --- Mock infrastructure ---

type mockResult struct {
	records []*neo4j.Record
	idx     int
}

func (m *mockResult) Next(ctx context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record {
	return m.records[m.idx-1]
}

type mockRunner struct {
	records []*neo4j.Record
	err     error
	cyphers []string
	params  []map[string]any
	closed  int
}

func (m *mockRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	m.cyphers = append(m.cyphers, cypher)
	m.params = append(m.params, params)
	if m.err != nil {
		return nil, m.err
	}
	return &mockResult{records: m.records}, nil
}

func (m *mockRunner) Close(ctx context.Context) error { m.closed++; return nil }

type stop struct {
	ID  string
	Lat float64
}

func stopRecord(id string, lat float64) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{map[string]any{"id": id, "lat": lat}},
	}
}

func newStopRepo(r *mockRunner) *Neo4jRepo[stop, string] {
	return NewNeo4jRepo[stop, string](
		func(context.Context) Runner { return r },
		"Stop",
		func(s stop) map[string]any { return map[string]any{"id": s.ID, "lat": s.Lat} },
		func(rec *neo4j.Record) (stop, error) {
			m, ok := rec.Values[0].(map[string]any)
			if !ok {
				return stop{}, errors.New("bad type")
			}
			return stop{ID: m["id"].(string), Lat: m["lat"].(float64)}, nil
		},
	)
}

// --- Tests ---

func TestNewNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[stop, string](nil, "Stop", nil, nil)
	if r.idKey != "id" || r.label != "Stop" {
		t.Fatalf("unexpected defaults: %+v", r)
	}
	r = NewNeo4jRepo[stop, string](nil, "Stop", nil, nil, WithIDKey[stop, string]("stop_id"))
	if r.idKey != "stop_id" {
		t.Fatalf("expected idKey=stop_id, got %s", r.idKey)
	}
}

func TestGet(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{stopRecord("S1", 22.575)}}
	s, err := newStopRepo(r).Get(context.Background(), "S1")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "S1" || s.Lat != 22.575 {
		t.Fatalf("got %+v", s)
	}
	if !strings.Contains(r.cyphers[0], "MATCH (n:Stop {id: $id})") {
		t.Fatalf("unexpected cypher %q", r.cyphers[0])
	}
	if r.closed != 1 {
		t.Fatalf("session should be closed once, got %d", r.closed)
	}
}

func TestGetNotFound(t *testing.T) {
	_, err := newStopRepo(&mockRunner{}).Get(context.Background(), "S9")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRunError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := newStopRepo(&mockRunner{err: boom}).Get(context.Background(), "S1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected run error, got %v", err)
	}
}

func TestExists(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{{Keys: []string{"c"}, Values: []any{int64(1)}}}}
	ok, err := newStopRepo(r).Exists(context.Background(), "S1")
	if err != nil || !ok {
		t.Fatalf("expected exists, got %v %v", ok, err)
	}
	r = &mockRunner{records: []*neo4j.Record{{Keys: []string{"c"}, Values: []any{int64(0)}}}}
	ok, err = newStopRepo(r).Exists(context.Background(), "S9")
	if err != nil || ok {
		t.Fatalf("expected missing, got %v %v", ok, err)
	}
}

func TestListWithFilterAndDefaults(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{stopRecord("S1", 1), stopRecord("S2", 2)}}
	items, err := newStopRepo(r).List(context.Background(), ListOpts{Filter: map[string]any{"zone": "north", "active": true}})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[1].ID != "S2" {
		t.Fatalf("got %+v", items)
	}
	want := "MATCH (n:Stop) WHERE n.`active` = $f0 AND n.`zone` = $f1 RETURN n ORDER BY n.id SKIP $offset LIMIT $limit"
	if r.cyphers[0] != want {
		t.Fatalf("cypher:\n got %q\nwant %q", r.cyphers[0], want)
	}
	p := r.params[0]
	if p["limit"] != 100 || p["f0"] != true || p["f1"] != "north" {
		t.Fatalf("params %v", p)
	}
}

func TestListDecodeError(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{{Keys: []string{"n"}, Values: []any{"oops"}}}}
	if _, err := newStopRepo(r).List(context.Background(), ListOpts{}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestUpsert(t *testing.T) {
	r := &mockRunner{}
	if err := newStopRepo(r).Upsert(context.Background(), stop{ID: "S3", Lat: 1.5}); err != nil {
		t.Fatal(err)
	}
	if r.cyphers[0] != "MERGE (n:Stop {id: $id}) SET n += $props" {
		t.Fatalf("cypher %q", r.cyphers[0])
	}
	if r.params[0]["id"] != "S3" {
		t.Fatalf("params %v", r.params[0])
	}
}

func TestExec(t *testing.T) {
	r := &mockRunner{}
	err := Exec(context.Background(), func(context.Context) Runner { return r }, "MATCH (n) DETACH DELETE n", nil)
	if err != nil || len(r.cyphers) != 1 || r.closed != 1 {
		t.Fatalf("exec: err=%v cyphers=%v closed=%d", err, r.cyphers, r.closed)
	}
}

// Compile-time check that the adapter satisfies Runner.
var _ Runner = (*neo4jSessionAdapter)(nil)
