// Command dispatch runs one assignment over a snapshot file and prints the
// result as JSON, or as GeoJSON with -geojson.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldroute/internal/geo"
	"fieldroute/internal/integrations"
	"fieldroute/internal/integrations/csvfeed"
	"fieldroute/internal/integrations/yamlfeed"
	"fieldroute/internal/model"
	"fieldroute/internal/opt"
)

func main() {
	snapshot := flag.String("snapshot", "", "YAML snapshot with teams and jobs")
	teamsCSV := flag.String("teams", "", "CSV file of teams (id,lat,lng,label,tags)")
	jobsCSV := flag.String("jobs", "", "CSV file of jobs (id,lat,lng,label,tags)")
	seed := flag.Int64("seed", 0, "random seed; 0 picks one from the clock")
	iterations := flag.Int("iterations", opt.DefaultAnnealConfig().Iterations, "annealing iterations per route")
	noise := flag.Bool("noise", true, "multiply affinities by a random factor")
	budget := flag.Duration("budget", 0, "stop refining after this long (0 = no limit)")
	asGeoJSON := flag.Bool("geojson", false, "print a GeoJSON FeatureCollection")
	flag.Parse()

	var src integrations.Source
	switch {
	case *snapshot != "":
		src = yamlfeed.New(*snapshot)
	case *teamsCSV != "" || *jobsCSV != "":
		src = csvfeed.Source{TeamsPath: *teamsCSV, JobsPath: *jobsCSV}
	default:
		fmt.Fprintln(os.Stderr, "dispatch: one of -snapshot or -teams/-jobs is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	teams, jobs, err := integrations.Snapshot(ctx, src)
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}
	pending := jobs[:0]
	for _, j := range jobs {
		if j.Status == model.JobPending {
			pending = append(pending, j)
		}
	}

	opts := opt.DefaultOptions()
	opts.Anneal.Iterations = *iterations
	opts.AffinityNoise = *noise
	opts.TimeBudget = *budget
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	engine := opt.NewEngine(*seed, opts)

	start := time.Now()
	res, err := engine.OptimizeAssignment(ctx, teams, pending)
	if err != nil {
		log.Fatalf("assign: %v", err)
	}
	log.Printf("%s: %d teams, %d jobs, %d assigned, %.2f km in %v (seed %d)",
		src.Name(), len(teams), len(pending), len(res.Assignments), res.TotalDistanceKm, time.Since(start).Round(time.Millisecond), *seed)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if *asGeoJSON {
		err = enc.Encode(geo.AssignmentCollection(res))
	} else {
		err = enc.Encode(res)
	}
	if err != nil {
		log.Fatalf("write result: %v", err)
	}
}
