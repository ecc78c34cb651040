// Package resources wraps the DevOps API transport with the list, detail and
// mutation conventions shared by every resource type: list and detail reads
// are cached per options, failures are normalized into display errors with a
// resource-specific default message, and successful mutations invalidate
// the resource's query key.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rangeos/engine/internal/apiclient"
	"github.com/rangeos/engine/internal/apierror"
	"github.com/rangeos/engine/internal/query"
	"github.com/rangeos/engine/internal/querykey"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Definition describes one REST resource.
type Definition struct {
	Key querykey.Key
	// Path is relative to the versioned API root and may contain {rangeId}
	// and {scenarioId} placeholders, filled in by Resource.In.
	Path     string
	Singular string
	Plural   string
	// Poll enables ListOptions.ShouldPoll for long-running resources.
	Poll bool
}

// Message builds the default display message, e.g. "An error occurred
// retrieving the IPs".
func (d Definition) Message(verb, noun string) string {
	return fmt.Sprintf("An error occurred %s the %s", verb, noun)
}

// Scope fills the placeholders of range-scoped resource paths.
type Scope struct {
	RangeID    string `json:"rangeId,omitempty"`
	ScenarioID string `json:"scenarioId,omitempty"`
}

func (s Scope) empty() bool { return s == Scope{} }

// ListOptions select one list query.
type ListOptions struct {
	Params apiclient.ListParams
	// ShouldPoll refetches the list on this interval while it is watched.
	// It is ignored for resources that do not poll.
	ShouldPoll time.Duration
}

// DeleteOptions tune Delete.
type DeleteOptions struct {
	// SkipInvalidate leaves the list cached, for bulk deletes that
	// invalidate once at the end.
	SkipInvalidate bool
}

// Transport is the subset of apiclient.Client used by resources.
type Transport interface {
	List(ctx context.Context, path string, p apiclient.ListParams) ([]byte, error)
	Get(ctx context.Context, path string, opts ...apiclient.CallOption) ([]byte, error)
	Post(ctx context.Context, path string, body any, opts ...apiclient.CallOption) ([]byte, error)
	Put(ctx context.Context, path string, body any, opts ...apiclient.CallOption) ([]byte, error)
	Delete(ctx context.Context, path string, opts ...apiclient.CallOption) ([]byte, error)
	GraphQL(ctx context.Context, req apiclient.GraphQLRequest, out any, opts ...apiclient.CallOption) error
}

// Deps are the handles shared by every resource.
type Deps struct {
	API   Transport
	Cache *query.Client
	// Invalidator defaults to Cache.
	Invalidator query.Invalidator
	Logger      *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Invalidator == nil && d.Cache != nil {
		d.Invalidator = d.Cache
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// Resource is the typed handle for one resource: T is the record, C the
// create payload and U the update payload.
type Resource[T any, C any, U any] struct {
	def   Definition
	deps  Deps
	scope Scope
	log   *zap.Logger
}

// New creates a Resource.
func New[T any, C any, U any](def Definition, deps Deps) *Resource[T, C, U] {
	deps = deps.withDefaults()
	return &Resource[T, C, U]{
		def:  def,
		deps: deps,
		log:  deps.Logger.With(zap.String("resource", string(def.Key))),
	}
}

// Definition returns the resource definition.
func (r *Resource[T, C, U]) Definition() Definition { return r.def }

// In returns a copy bound to a range scenario.
func (r *Resource[T, C, U]) In(scope Scope) *Resource[T, C, U] {
	cp := *r
	cp.scope = scope
	cp.log = r.log.With(zap.String("range_id", scope.RangeID), zap.String("scenario_id", scope.ScenarioID))
	return &cp
}

// List returns one page of records. Results are cached under [key, options].
func (r *Resource[T, C, U]) List(ctx context.Context, opts ListOptions) (*apiclient.Page[T], error) {
	key, fetch := r.listQuery(opts.Params)
	return query.Fetch(ctx, r.deps.Cache, key, fetch)
}

// ListWatch is a live list query that keeps the previous page visible while
// the next one loads.
type ListWatch[T any] struct {
	*query.Observer[*apiclient.Page[T]]
	build func(apiclient.ListParams) (query.Key, query.Fetcher[*apiclient.Page[T]])
}

// SetParams switches the watched list options.
func (w *ListWatch[T]) SetParams(p apiclient.ListParams) {
	key, fetch := w.build(p)
	w.SetKey(key, fetch)
}

// WatchList starts a live list query. Polling applies only to resources
// defined with Poll.
func (r *Resource[T, C, U]) WatchList(ctx context.Context, opts ListOptions) *ListWatch[T] {
	interval := time.Duration(0)
	if r.def.Poll {
		interval = opts.ShouldPoll
	}
	key, fetch := r.listQuery(opts.Params)
	obs := query.Watch(ctx, r.deps.Cache, key, fetch, query.WatchOptions{
		KeepPreviousData: true,
		RefetchInterval:  interval,
	})
	return &ListWatch[T]{Observer: obs, build: r.listQuery}
}

// Get returns one record, cached under [key, id].
func (r *Resource[T, C, U]) Get(ctx context.Context, id string, opts ...apiclient.CallOption) (T, error) {
	var zero T
	path, err := r.itemPath(id)
	if err != nil {
		return zero, apierror.Normalize(err, r.def.Message("retrieving", r.def.Singular))
	}
	key := r.key(id)
	return query.Fetch(ctx, r.deps.Cache, key, func(ctx context.Context) (T, error) {
		body, err := r.deps.API.Get(ctx, path, opts...)
		if err != nil {
			return zero, apierror.Normalize(err, r.def.Message("retrieving", r.def.Singular))
		}
		return decode[T](body, r.def.Message("retrieving", r.def.Singular))
	})
}

// Create posts a new record and invalidates the resource on success.
func (r *Resource[T, C, U]) Create(ctx context.Context, payload C, opts ...apiclient.CallOption) (T, error) {
	msg := r.def.Message("creating", r.def.Singular)
	var zero T
	if err := validatePayload(payload); err != nil {
		return zero, apierror.Normalize(err, msg)
	}
	path, err := r.collectionPath()
	if err != nil {
		return zero, apierror.Normalize(err, msg)
	}
	body, err := r.deps.API.Post(ctx, path, payload, opts...)
	if err != nil {
		r.log.Debug("create failed", zap.Error(err))
		return zero, apierror.Normalize(err, msg)
	}
	out, err := decode[T](body, msg)
	if err != nil {
		return zero, err
	}
	r.invalidate(ctx)
	r.log.Info("resource created")
	return out, nil
}

// Update replaces a record and invalidates the resource on success.
func (r *Resource[T, C, U]) Update(ctx context.Context, id string, payload U, opts ...apiclient.CallOption) (T, error) {
	msg := r.def.Message("updating", r.def.Singular)
	var zero T
	if err := validatePayload(payload); err != nil {
		return zero, apierror.Normalize(err, msg)
	}
	path, err := r.itemPath(id)
	if err != nil {
		return zero, apierror.Normalize(err, msg)
	}
	body, err := r.deps.API.Put(ctx, path, payload, opts...)
	if err != nil {
		r.log.Debug("update failed", zap.String("id", id), zap.Error(err))
		return zero, apierror.Normalize(err, msg)
	}
	out, err := decode[T](body, msg)
	if err != nil {
		return zero, err
	}
	r.invalidate(ctx)
	r.log.Info("resource updated", zap.String("id", id))
	return out, nil
}

// Delete removes a record and, unless skipped, invalidates the resource.
func (r *Resource[T, C, U]) Delete(ctx context.Context, id string, opts DeleteOptions, callOpts ...apiclient.CallOption) error {
	msg := r.def.Message("deleting", r.def.Singular)
	path, err := r.itemPath(id)
	if err != nil {
		return apierror.Normalize(err, msg)
	}
	if _, err := r.deps.API.Delete(ctx, path, callOpts...); err != nil {
		r.log.Debug("delete failed", zap.String("id", id), zap.Error(err))
		return apierror.Normalize(err, msg)
	}
	if !opts.SkipInvalidate {
		r.invalidate(ctx)
	}
	r.log.Info("resource deleted", zap.String("id", id), zap.Bool("skip_invalidate", opts.SkipInvalidate))
	return nil
}

// action posts to <item>/<name> and invalidates on success.
func (r *Resource[T, C, U]) action(ctx context.Context, id, name, verb string, opts ...apiclient.CallOption) (T, error) {
	msg := r.def.Message(verb, r.def.Singular)
	var zero T
	path, err := r.itemPath(id)
	if err != nil {
		return zero, apierror.Normalize(err, msg)
	}
	body, err := r.deps.API.Post(ctx, path+"/"+name, nil, opts...)
	if err != nil {
		return zero, apierror.Normalize(err, msg)
	}
	out, err := decode[T](body, msg)
	if err != nil {
		return zero, err
	}
	r.invalidate(ctx)
	r.log.Info("resource action", zap.String("id", id), zap.String("action", name))
	return out, nil
}

func (r *Resource[T, C, U]) invalidate(ctx context.Context) {
	if r.deps.Invalidator != nil {
		r.deps.Invalidator.InvalidateQueries(ctx, r.def.Key)
	}
}

func (r *Resource[T, C, U]) key(parts ...any) query.Key {
	if !r.scope.empty() {
		parts = append([]any{r.scope}, parts...)
	}
	return query.NewKey(r.def.Key, parts...)
}

func (r *Resource[T, C, U]) listQuery(p apiclient.ListParams) (query.Key, query.Fetcher[*apiclient.Page[T]]) {
	msg := r.def.Message("retrieving", r.def.Plural)
	fetch := func(ctx context.Context) (*apiclient.Page[T], error) {
		path, err := r.collectionPath()
		if err != nil {
			return nil, apierror.Normalize(err, msg)
		}
		body, err := r.deps.API.List(ctx, path, p)
		if err != nil {
			return nil, apierror.Normalize(err, msg)
		}
		page, err := apiclient.DecodePage[T](body)
		if err != nil {
			return nil, apierror.Normalize(err, msg)
		}
		return page, nil
	}
	return r.key(p), fetch
}

func (r *Resource[T, C, U]) collectionPath() (string, error) {
	p := strings.NewReplacer("{rangeId}", r.scope.RangeID, "{scenarioId}", r.scope.ScenarioID).Replace(r.def.Path)
	if strings.Contains(p, "{") || strings.Contains(p, "//") {
		return "", fmt.Errorf("%s requires a range scope", r.def.Key)
	}
	return p, nil
}

func (r *Resource[T, C, U]) itemPath(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%s id is required", r.def.Singular)
	}
	base, err := r.collectionPath()
	if err != nil {
		return "", err
	}
	return base + "/" + id, nil
}

func decode[T any](body []byte, msg string) (T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return out, apierror.Normalize(fmt.Errorf("decode response: %w", err), msg)
	}
	return out, nil
}

func validatePayload(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	return validate.Struct(v)
}
