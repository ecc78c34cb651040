// Package mockapi serves canned DevOps API responses for local development
// and tests. Each fixture follows one shared handler convention, with
// per-fixture paging behaviour recorded in its Catalog entry.
package mockapi

import (
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rangeos/engine/internal/models"
)

// Options configure a Server.
type Options struct {
	// Version is the API version path segment. Defaults to "v1".
	Version string
	Logger  *zap.Logger
}

// Server is the fixture API.
type Server struct {
	version  string
	set      *fixtureSet
	validate *validator.Validate
	log      *zap.Logger
}

// NewServer decodes the embedded fixtures and builds a server.
func NewServer(opts Options) (*Server, error) {
	set, err := loadFixtures()
	if err != nil {
		return nil, err
	}
	if opts.Version == "" {
		opts.Version = "v1"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		version:  opts.Version,
		set:      set,
		validate: v,
		log:      opts.Logger.Named("mockapi"),
	}, nil
}

// Version returns the API version segment the server is meant to be mounted under.
func (s *Server) Version() string { return s.version }

// Register adds every fixture route and the GraphQL endpoint to r, which
// must be rooted at the API version segment.
func (s *Server) Register(r chi.Router) {
	for _, f := range s.set.fixtures {
		f.mount(r, s.validate, s.log)
	}
	r.Post("/graphql", s.graphql)
}

// Handler returns a standalone router serving /{version}/...
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/"+s.version, s.Register)
	return r
}

// Catalog describes the mounted fixtures.
func (s *Server) Catalog() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(s.set.fixtures))
	for _, f := range s.set.fixtures {
		out = append(out, f.entry())
	}
	return out
}

// graphql matches on operationName. Unknown operations and unknown ids
// answer {"data":{}}.
func (s *Server) graphql(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(body) {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	op := gjson.GetBytes(body, "operationName").String()
	vars := gjson.GetBytes(body, "variables")
	s.log.Debug("graphql", zap.String("operation", op), zap.String("variables", vars.Raw))

	data := map[string]any{}
	switch op {
	case "BackgroundJobs":
		if id := vars.Get("scenarioId").String(); id == ScenarioID {
			jobs := make([]models.BackgroundJob, 0, len(s.set.jobs))
			for _, j := range s.set.jobs {
				if j.ScenarioID == id {
					jobs = append(jobs, j)
				}
			}
			data["backgroundJobs"] = jobs
		}
	case "Range":
		if vars.Get("uuid").String() == s.set.graph.UUID {
			data["range"] = s.set.graph
		}
	case "Scenarios":
		if vars.Get("rangeId").String() == RangeID {
			data["scenarios"] = s.rangeScenarios()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// rangeScenarios reports the two fixture scenarios deployed into the fixture range.
func (s *Server) rangeScenarios() []models.RangeScenario {
	out := []models.RangeScenario{}
	for _, sc := range s.set.scenarios {
		if sc.UUID != ScenarioID && sc.UUID != SecondScenarioID {
			continue
		}
		status := models.StatusReady
		if sc.UUID == SecondScenarioID {
			status = models.StatusCreating
		}
		out = append(out, models.RangeScenario{Meta: sc.Meta, ScenarioID: sc.UUID, Status: status})
	}
	return out
}
