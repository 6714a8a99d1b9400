package cron

import (
	"context"
	"fmt"
	"time"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Cadenced jobs run at most once per Every() instead of on every tick.
type Cadenced interface {
	Every() time.Duration
}

// Registry holds the jobs of one worker in execution order. Names are unique
// because run bookkeeping and metrics are keyed by them.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{}
	seen := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		name := job.Name()
		if name == "" {
			return nil, fmt.Errorf("cron job without a name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("cron job %q registered twice", name)
		}
		seen[name] = struct{}{}
		registry.jobs = append(registry.jobs, job)
	}
	return registry, nil
}

func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Due returns the jobs whose cadence has elapsed since their last recorded run.
func (r *Registry) Due(now time.Time, lastRun map[string]time.Time) []Job {
	due := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		cadenced, ok := job.(Cadenced)
		if !ok || cadenced.Every() <= 0 {
			due = append(due, job)
			continue
		}
		last, ran := lastRun[job.Name()]
		if !ran || now.Sub(last) >= cadenced.Every() {
			due = append(due, job)
		}
	}
	return due
}
