package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fieldroute/internal/model"
)

// RouteFeature renders a route as a LineString feature, or a Point when it
// has a single stop. Empty routes yield nil.
func RouteFeature(teamID string, r model.RouteResult) *geojson.Feature {
	if len(r.Stops) == 0 {
		return nil
	}
	var f *geojson.Feature
	if len(r.Stops) == 1 {
		c := r.Stops[0].Coordinate
		f = geojson.NewFeature(orb.Point{c.Lng, c.Lat})
	} else {
		ls := make(orb.LineString, 0, len(r.Stops))
		for _, s := range r.Stops {
			ls = append(ls, orb.Point{s.Lng, s.Lat})
		}
		f = geojson.NewFeature(ls)
	}
	if teamID != "" {
		f.Properties["teamId"] = teamID
	}
	f.Properties["totalDistanceKm"] = r.TotalDistanceKm
	f.Properties["driveMinutes"] = r.DriveMinutes
	f.Properties["savedKm"] = r.SavedKm()
	ids := make([]string, 0, len(r.Stops))
	for _, s := range r.Stops {
		ids = append(ids, s.ID)
	}
	f.Properties["stops"] = ids
	return f
}

// StopFeatures renders each stop as a numbered Point.
func StopFeatures(teamID string, r model.RouteResult) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(r.Stops))
	for i, s := range r.Stops {
		f := geojson.NewFeature(orb.Point{s.Lng, s.Lat})
		f.Properties["seq"] = i
		f.Properties["id"] = s.ID
		if s.Label != "" {
			f.Properties["label"] = s.Label
		}
		if teamID != "" {
			f.Properties["teamId"] = teamID
		}
		out = append(out, f)
	}
	return out
}

// AssignmentCollection renders every team plan: one route line plus its stops.
func AssignmentCollection(res model.AssignmentResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range res.Plans {
		if f := RouteFeature(p.TeamID, p.Route); f != nil {
			if p.JobID != "" {
				f.Properties["jobId"] = p.JobID
			}
			fc.Append(f)
		}
		for _, f := range StopFeatures(p.TeamID, p.Route) {
			fc.Append(f)
		}
	}
	return fc
}

// RouteCollection renders a single route result.
func RouteCollection(r model.RouteResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if f := RouteFeature("", r); f != nil {
		fc.Append(f)
	}
	for _, f := range StopFeatures("", r) {
		fc.Append(f)
	}
	return fc
}
