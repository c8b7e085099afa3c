package busroutes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aaroncutress/busroutes/models"
	geojson "github.com/paulmach/go.geojson"
)

// Writes data to a temporary file in the target's directory and renames it
// over the target, so readers never observe a partial file
func writeFileAtomic(filePath string, data []byte) error {
	dirPath := filepath.Dir(filePath)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dirPath, filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpFile.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmpFile.Name(), filePath)
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- Index ---

// Writes the index document to {outDir}/routeMap.json
func WriteIndex(outDir string, doc *IndexDocument) (string, error) {
	data, err := encodeJSON(doc)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(outDir, IndexFileName)
	if err := writeFileAtomic(filePath, data); err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}
	return filePath, nil
}

// Reads an index document written by WriteIndex
func ReadIndex(filePath string) (*IndexDocument, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	doc := &IndexDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", filePath, err)
	}
	return doc, nil
}

// --- Raw routes ---

// On-disk form of one route's ordered stops
type RawRouteFile struct {
	RouteID   models.Key       `json:"route_id"`
	RouteNo   string           `json:"route_no"`
	FetchedAt string           `json:"fetched_at"`
	Stops     models.StopArray `json:"stops"`
}

// Replaces characters that cannot appear in a file name
func safeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

// Returns the path of a route's raw stop file
func RawRoutePath(outDir string, record *models.RouteRecord) string {
	name := safeFileName(record.No) + "_" + safeFileName(string(record.ID)) + ".json"
	return filepath.Join(outDir, RawRoutesDir, name)
}

// Writes a route's ordered stops to {outDir}/raw_routes/{route_no}_{route_id}.json
func WriteRawRoute(outDir string, record *models.RouteRecord, fetchedAt time.Time) (string, error) {
	data, err := encodeJSON(RawRouteFile{
		RouteID:   record.ID,
		RouteNo:   record.No,
		FetchedAt: fetchedAt.Format(time.RFC3339),
		Stops:     record.Stops,
	})
	if err != nil {
		return "", err
	}

	filePath := RawRoutePath(outDir, record)
	if err := writeFileAtomic(filePath, data); err != nil {
		return "", err
	}
	return filePath, nil
}

// Reads one raw stop file
func ReadRawRoute(filePath string) (*models.RouteRecord, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var file RawRouteFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	if file.RouteID == "" {
		return nil, fmt.Errorf("%s: missing route_id", filePath)
	}

	return &models.RouteRecord{
		ID:    file.RouteID,
		No:    file.RouteNo,
		Stops: file.Stops,
	}, nil
}

// Reads every raw stop file under {outDir}/raw_routes, sorted by route id.
// Unreadable files are returned as errors keyed by path so callers can log
// and skip them.
func ReadRawRoutes(outDir string) ([]*models.RouteRecord, map[string]error, error) {
	paths, err := filepath.Glob(filepath.Join(outDir, RawRoutesDir, "*.json"))
	if err != nil {
		return nil, nil, err
	}

	records := make([]*models.RouteRecord, 0, len(paths))
	failures := make(map[string]error)
	for _, path := range paths {
		record, err := ReadRawRoute(path)
		if err != nil {
			failures[path] = err
			continue
		}
		records = append(records, record)
	}

	slices.SortFunc(records, func(a, b *models.RouteRecord) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return records, failures, nil
}

// --- Snapped paths ---

// Returns the path of a route's snapped artifact
func SnappedPathFile(outDir string, routeID models.Key) string {
	return filepath.Join(outDir, SnappedRoutesDir, safeFileName(string(routeID))+".geojson")
}

// Converts a snapped path to a feature collection with one LineString per
// segment
func SnappedPathFeatures(path *models.SnappedPath) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, segment := range path.Segments {
		feature := geojson.NewLineStringFeature(segment.Coordinates.Positions())
		feature.SetProperty("direction", int(segment.Direction))
		feature.SetProperty("is_turning_point", segment.ContainsTurningPoint)
		feature.SetProperty("start_node_ord", segment.StartOrder)
		fc.AddFeature(feature)
	}
	return fc
}

// Writes a snapped path to {outDir}/snapped_routes/{route_id}.geojson
func WriteSnappedPath(outDir string, path *models.SnappedPath) (string, error) {
	data, err := SnappedPathFeatures(path).MarshalJSON()
	if err != nil {
		return "", err
	}

	filePath := SnappedPathFile(outDir, path.RouteID)
	if err := writeFileAtomic(filePath, data); err != nil {
		return "", err
	}
	return filePath, nil
}

// Reads a snapped artifact back into segments
func ReadSnappedPath(filePath string) (*models.SnappedPath, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}

	routeID := strings.TrimSuffix(filepath.Base(filePath), ".geojson")
	path := &models.SnappedPath{RouteID: models.Key(routeID)}

	for i, feature := range fc.Features {
		if feature.Geometry == nil || !feature.Geometry.IsLineString() {
			return nil, fmt.Errorf("%s: feature %d is not a LineString", filePath, i)
		}
		coords, err := models.CoordinatesFromPositions(feature.Geometry.LineString)
		if err != nil {
			return nil, fmt.Errorf("%s: feature %d: %w", filePath, i, err)
		}

		direction := intProperty(feature, "direction")
		turning, _ := feature.Properties["is_turning_point"].(bool)
		startOrder := intProperty(feature, "start_node_ord")

		path.Segments = append(path.Segments, models.Segment{
			Coordinates:          coords,
			Direction:            models.Direction(direction),
			ContainsTurningPoint: turning,
			StartOrder:           startOrder,
		})
	}
	return path, nil
}

// Decoded GeoJSON numbers arrive as float64
func intProperty(feature *geojson.Feature, key string) int {
	switch v := feature.Properties[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
