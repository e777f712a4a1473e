package api

import (
	"strings"

	"github.com/mr1hm/spot-safety/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(spots []models.Spot) FeatureCollection {
	features := make([]Feature, 0, len(spots))

	for _, s := range spots {
		reasons := make([]string, 0, len(s.DangerReasons))
		for _, r := range s.DangerReasons {
			reasons = append(reasons, string(r))
		}
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{s.Longitude, s.Latitude},
			},
			Properties: map[string]any{
				"id":             s.ID,
				"name":           s.Name,
				"danger_level":   strings.ToLower(string(s.DangerLevel)),
				"danger_reasons": reasons,
				"updated_at":     s.UpdatedAt,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
