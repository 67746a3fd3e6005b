// Package csvfeed reads teams and jobs from CSV exports.
//
// Both files share one layout with a header row:
//
//	id,lat,lng,label,tags
//
// Columns may appear in any order. tags is a ';'-separated list that becomes
// a team's skills or a job's requirements; label becomes the team name or the
// job title. Rows without coordinates are placed at model.DefaultCoordinate.
package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fieldroute/internal/model"
)

// Source reads one CSV file per record type. An empty path yields no records.
type Source struct {
	TeamsPath string
	JobsPath  string
}

func (Source) Name() string { return "csv" }

func (s Source) FetchTeams(ctx context.Context) ([]model.Team, error) {
	rows, err := readFile(ctx, s.TeamsPath)
	if err != nil {
		return nil, err
	}
	teams := make([]model.Team, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, model.Team{ID: r.id, Name: r.label, Location: r.location(), Skills: r.tags})
	}
	return teams, nil
}

func (s Source) FetchJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := readFile(ctx, s.JobsPath)
	if err != nil {
		return nil, err
	}
	jobs := make([]model.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, model.Job{ID: r.id, Title: r.label, Location: r.location(), Requirements: r.tags})
	}
	return jobs, nil
}

type row struct {
	id    string
	at    model.Coordinate
	label string
	tags  []string
}

func (r row) location() model.Location {
	return model.Location{ID: r.id, Label: r.label, Coordinate: r.at}
}

func readFile(ctx context.Context, path string) ([]row, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	rows, err := parse(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

var errNoID = errors.New("missing id column")

// parse reads rows from r. The header must name at least the id column.
func parse(ctx context.Context, r io.Reader) ([]row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["id"]; !ok {
		return nil, errNoID
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []row
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rw := row{id: field(rec, "id"), label: field(rec, "label"), at: model.DefaultCoordinate}
		if rw.id == "" {
			return nil, fmt.Errorf("line %d: empty id", line)
		}
		lat, lng := field(rec, "lat"), field(rec, "lng")
		if lat != "" || lng != "" {
			if rw.at.Lat, err = strconv.ParseFloat(lat, 64); err != nil {
				return nil, fmt.Errorf("line %d: lat: %w", line, err)
			}
			if rw.at.Lng, err = strconv.ParseFloat(lng, 64); err != nil {
				return nil, fmt.Errorf("line %d: lng: %w", line, err)
			}
		}
		for _, t := range strings.Split(field(rec, "tags"), ";") {
			if t = strings.TrimSpace(t); t != "" {
				rw.tags = append(rw.tags, t)
			}
		}
		out = append(out, rw)
	}
	return out, nil
}
