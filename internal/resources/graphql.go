package resources

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rangeos/engine/internal/apiclient"
	"github.com/rangeos/engine/internal/apierror"
	"github.com/rangeos/engine/internal/models"
	"github.com/rangeos/engine/internal/query"
	"github.com/rangeos/engine/internal/querykey"
)

const backgroundJobsQuery = `query BackgroundJobs($scenarioId: String!) {
  backgroundJobs(scenarioId: $scenarioId) {
    uuid
    name
    scenarioId
    state
    progress
    message
    startedAt
    finishedAt
  }
}`

const rangeGraphQuery = `query Range($uuid: String!) {
  range(uuid: $uuid) {
    uuid
    name
    status
    resources { uuid name kind ready status }
  }
}`

const rangeScenariosQuery = `query Scenarios($rangeId: String!) {
  scenarios(rangeId: $rangeId) {
    uuid
    name
    scenarioId
    status
  }
}`

// BackgroundJobs reads the job queue of a scenario through GraphQL.
type BackgroundJobs struct {
	deps Deps
	log  *zap.Logger
}

// NewBackgroundJobs creates the background jobs reader.
func NewBackgroundJobs(deps Deps) *BackgroundJobs {
	deps = deps.withDefaults()
	return &BackgroundJobs{deps: deps, log: deps.Logger.With(zap.String("resource", string(querykey.BackgroundJobs)))}
}

// List returns the jobs of a scenario, cached under [background-jobs, scenarioId].
func (b *BackgroundJobs) List(ctx context.Context, scenarioID string, opts ...apiclient.CallOption) ([]models.BackgroundJob, error) {
	return query.Fetch(ctx, b.deps.Cache, b.key(scenarioID), b.fetcher(scenarioID, opts...))
}

// Watch follows the jobs of a scenario, refetching every poll when it is
// positive. Callers stop polling by closing the observer once Pending is false.
func (b *BackgroundJobs) Watch(ctx context.Context, scenarioID string, poll time.Duration, opts ...apiclient.CallOption) *query.Observer[[]models.BackgroundJob] {
	return query.Watch(ctx, b.deps.Cache, b.key(scenarioID), b.fetcher(scenarioID, opts...), query.WatchOptions{
		RefetchInterval: poll,
	})
}

func (b *BackgroundJobs) key(scenarioID string) query.Key {
	return query.NewKey(querykey.BackgroundJobs, scenarioID)
}

func (b *BackgroundJobs) fetcher(scenarioID string, opts ...apiclient.CallOption) query.Fetcher[[]models.BackgroundJob] {
	const msg = "An error occurred retrieving the Background Jobs"
	return func(ctx context.Context) ([]models.BackgroundJob, error) {
		if scenarioID == "" {
			return nil, apierror.Normalize(fmt.Errorf("scenario id is required"), msg)
		}
		var out struct {
			BackgroundJobs []models.BackgroundJob `json:"backgroundJobs"`
		}
		err := b.deps.API.GraphQL(ctx, apiclient.GraphQLRequest{
			OperationName: "BackgroundJobs",
			Query:         backgroundJobsQuery,
			Variables:     map[string]any{"scenarioId": scenarioID},
		}, &out, opts...)
		if err != nil {
			b.log.Debug("background jobs query failed", zap.String("scenario_id", scenarioID), zap.Error(err))
			return nil, apierror.Normalize(err, msg)
		}
		if out.BackgroundJobs == nil {
			out.BackgroundJobs = []models.BackgroundJob{}
		}
		return out.BackgroundJobs, nil
	}
}

// Pending reports whether any job has not finished.
func Pending(jobs []models.BackgroundJob) bool {
	for _, j := range jobs {
		if !j.Done() {
			return true
		}
	}
	return false
}

// RangeGraph reads a range and its deployed resources through GraphQL.
type RangeGraph struct {
	deps Deps
}

// NewRangeGraph creates the range graph reader.
func NewRangeGraph(deps Deps) *RangeGraph {
	return &RangeGraph{deps: deps.withDefaults()}
}

// Get returns the resource graph of a range, cached under [ranges, "graph", id].
// It shares the ranges key so range mutations invalidate it.
func (g *RangeGraph) Get(ctx context.Context, rangeID string, opts ...apiclient.CallOption) (*models.RangeGraph, error) {
	const msg = "An error occurred retrieving the Range"
	key := query.NewKey(querykey.Ranges, "graph", rangeID)
	return query.Fetch(ctx, g.deps.Cache, key, func(ctx context.Context) (*models.RangeGraph, error) {
		var out struct {
			Range *models.RangeGraph `json:"range"`
		}
		err := g.deps.API.GraphQL(ctx, apiclient.GraphQLRequest{
			OperationName: "Range",
			Query:         rangeGraphQuery,
			Variables:     map[string]any{"uuid": rangeID},
		}, &out, opts...)
		if err != nil {
			return nil, apierror.Normalize(err, msg)
		}
		if out.Range == nil {
			return nil, apierror.Normalize(fmt.Errorf("range %s not found", rangeID), msg)
		}
		return out.Range, nil
	})
}

// Scenarios returns the scenarios deployed into a range, cached under
// [ranges, "scenarios", id].
func (g *RangeGraph) Scenarios(ctx context.Context, rangeID string, opts ...apiclient.CallOption) ([]models.RangeScenario, error) {
	const msg = "An error occurred retrieving the Scenarios"
	key := query.NewKey(querykey.Ranges, "scenarios", rangeID)
	return query.Fetch(ctx, g.deps.Cache, key, func(ctx context.Context) ([]models.RangeScenario, error) {
		var out struct {
			Scenarios []models.RangeScenario `json:"scenarios"`
		}
		err := g.deps.API.GraphQL(ctx, apiclient.GraphQLRequest{
			OperationName: "Scenarios",
			Query:         rangeScenariosQuery,
			Variables:     map[string]any{"rangeId": rangeID},
		}, &out, opts...)
		if err != nil {
			return nil, apierror.Normalize(err, msg)
		}
		if out.Scenarios == nil {
			out.Scenarios = []models.RangeScenario{}
		}
		return out.Scenarios, nil
	})
}
