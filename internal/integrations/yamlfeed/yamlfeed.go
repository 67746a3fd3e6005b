// Package yamlfeed reads a dispatch snapshot from one YAML document:
//
//	teams:
//	  - id: T1
//	    name: North crew
//	    location: {lat: 40.7, lng: -74.0}
//	    skills: [plumbing]
//	jobs:
//	  - id: J1
//	    title: Leak
//	    location: {lat: 40.71, lng: -74.01}
//	    requirements: [plumbing]
package yamlfeed

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"fieldroute/internal/model"
)

type Snapshot struct {
	Teams []model.Team `yaml:"teams"`
	Jobs  []model.Job  `yaml:"jobs"`
}

// Decode parses a snapshot, rejecting unknown keys.
func Decode(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil && err != io.EOF {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Source reads Path once and serves both record sets from that read.
type Source struct {
	Path string

	once sync.Once
	snap Snapshot
	err  error
}

func New(path string) *Source { return &Source{Path: path} }

func (s *Source) Name() string { return "yaml" }

func (s *Source) load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.once.Do(func() {
		f, err := os.Open(s.Path)
		if err != nil {
			s.err = err
			return
		}
		defer func() { _ = f.Close() }()
		s.snap, s.err = Decode(f)
		if s.err != nil {
			s.err = fmt.Errorf("%s: %w", s.Path, s.err)
		}
	})
	return s.snap, s.err
}

func (s *Source) FetchTeams(ctx context.Context) ([]model.Team, error) {
	snap, err := s.load(ctx)
	return snap.Teams, err
}

func (s *Source) FetchJobs(ctx context.Context) ([]model.Job, error) {
	snap, err := s.load(ctx)
	return snap.Jobs, err
}
