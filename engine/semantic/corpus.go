package semantic

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ledongthuc/pdf"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/fleet"
)

// StaticHints are operator hints always present in the corpus.
var StaticHints = []string{
	"Heavy rain often causes delays on major roads.",
	"If a bus reports breakdown, notify admin and suggest alternatives.",
}

// busDoc is the JSON shape of a bus inside its corpus document.
type busDoc struct {
	RouteID       string  `json:"route_id,omitempty"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	SpeedKmph     float64 `json:"speed_kmph,omitempty"`
	Status        string  `json:"status,omitempty"`
	StatusMessage string  `json:"status_message,omitempty"`
}

// BuildCorpus renders the fleet snapshot, StaticHints and any extra documents
// into the retrieval corpus. Buses come first, then routes, each in id order.
func BuildCorpus(s fleet.Snapshot, extra ...domain.Document) []domain.Document {
	docs := make([]domain.Document, 0, len(s.Buses)+len(s.Routes)+len(StaticHints)+len(extra))
	for _, id := range s.BusIDs() {
		b := s.Buses[id]
		docs = append(docs, domain.Document{
			ID: "bus:" + id,
			Text: fmt.Sprintf("Bus %s: %s", id, fleet.JSON(busDoc{
				RouteID: b.RouteID, Lat: b.Lat, Lon: b.Lon, SpeedKmph: b.SpeedKmph,
				Status: b.Status, StatusMessage: b.StatusMessage,
			})),
		})
	}
	for _, id := range s.RouteIDs() {
		docs = append(docs, domain.Document{
			ID:   "route:" + id,
			Text: fmt.Sprintf("Route %s: %s", id, fleet.JSON(s.Routes[id])),
		})
	}
	for i, h := range StaticHints {
		docs = append(docs, domain.Document{ID: fmt.Sprintf("hint:%d", i), Text: h})
	}
	return append(docs, extra...)
}

// LoadHintFiles reads every .txt, .md or .pdf file matching the doublestar
// pattern into one document each. Empty files are skipped.
func LoadHintFiles(pattern string) ([]domain.Document, error) {
	if pattern == "" {
		return nil, nil
	}
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("semantic: glob %q: %w", pattern, err)
	}
	var docs []domain.Document
	for _, p := range paths {
		text, err := readHint(p)
		if err != nil {
			return nil, err
		}
		text = domain.CollapseSpace(text)
		if text == "" {
			continue
		}
		docs = append(docs, domain.Document{ID: "file:" + filepath.ToSlash(p), Text: text})
	}
	return docs, nil
}

func readHint(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("semantic: read hint %s: %w", path, err)
		}
		return string(data), nil
	case ".pdf":
		return readPDF(path)
	}
	return "", nil
}

func readPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("semantic: open pdf %s: %w", path, err)
	}
	defer f.Close()

	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("semantic: pdf text %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("semantic: pdf read %s: %w", path, err)
	}
	return buf.String(), nil
}
