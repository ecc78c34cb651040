package mockapi

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rangeos/engine/internal/models"
	"github.com/rangeos/engine/internal/querykey"
)

// Well-known fixture ids.
const (
	RangeID          = "12345679-6fb7-4997-8f3c-70f0a335d5a3"
	ScenarioID       = "11145679-6fb7-4997-8f3c-70f0a335d5a3"
	SecondScenarioID = "22245679-6fb7-4997-8f3c-70f0a335d5a3"
	ParentScenarioID = "12345678-6fb7-4997-8f3c-70f0a335d5a3"
	ChartName        = "mychartname"
)

//go:embed fixtures/*.json
var fixtureFS embed.FS

type fixtureFile[T any] struct {
	List    []T          `json:"list"`
	Single  T            `json:"single"`
	Updates map[string]T `json:"updates"`
}

func readFixture[T any](name string) (fixtureFile[T], error) {
	var out fixtureFile[T]
	b, err := fixtureFS.ReadFile("fixtures/" + name)
	if err != nil {
		return out, fmt.Errorf("read fixture %s: %w", name, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode fixture %s: %w", name, err)
	}
	return out, nil
}

func fixtureOf[T models.Record](key querykey.Key, path, file string, paging Paging) (*Fixture[T], error) {
	ff, err := readFixture[T](file)
	if err != nil {
		return nil, err
	}
	return &Fixture[T]{
		Key:     key,
		Path:    path,
		List:    ff.List,
		Single:  ff.Single,
		Updates: ff.Updates,
		Paging:  paging,
	}, nil
}

// mounter is a Fixture with its type parameter erased.
type mounter interface {
	mount(r chi.Router, v *validator.Validate, log *zap.Logger)
	entry() CatalogEntry
}

// fixtureSet is every fixture decoded fresh for one server.
type fixtureSet struct {
	fixtures  []mounter
	jobs      []models.BackgroundJob
	graph     models.RangeGraph
	scenarios []models.Scenario
}

func loadFixtures() (*fixtureSet, error) {
	set := &fixtureSet{}
	add := func(m mounter, err error) error {
		if err != nil {
			return err
		}
		set.fixtures = append(set.fixtures, m)
		return nil
	}

	scoped := "manage/range/{rangeId}/scenarios/{scenarioId}/"
	windowed := Paging{Paged: true, SliceWindow: true, Unpaged: UnpagedArray}
	full := Paging{Paged: true, Unpaged: UnpagedArray}
	single := Paging{Paged: true, Unpaged: UnpagedEnvelope}

	ranges, err := fixtureOf[models.Range](querykey.Ranges, "manage/infrastructure/ranges", "ranges.json",
		Paging{Paged: true, Unpaged: UnpagedEnvelopeNoPages})
	if err := add(ranges, err); err != nil {
		return nil, err
	}

	vms, err := fixtureOf[models.RangeVM](querykey.RangeResourceVMs, scoped+"range-vms", "range-vms.json", single)
	if err != nil {
		return nil, err
	}
	vms.Extra = vmActions
	set.fixtures = append(set.fixtures, vms)

	steps := []func() error{
		func() error {
			f, err := fixtureOf[models.RangeIP](querykey.RangeIPs, scoped+"range-ips", "range-ips.json", single)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.AwsEnvironment](querykey.AwsEnvironments, "manage/infrastructure/environments/aws", "aws-environments.json", windowed)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.AwsEnvironmentCredential](querykey.AwsEnvironmentCredentials, "content/infrastructure/environment-credentials/aws", "aws-environment-credentials.json", windowed)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.AwsRangeSpec](querykey.AwsRangeSpecs, "content/infrastructure/range-specifications/aws", "aws-range-specs.json", Paging{Unpaged: UnpagedArray})
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.Scenario](querykey.Scenarios, "content/range/scenarios", "scenarios.json", windowed)
			if err == nil {
				set.scenarios = f.List
			}
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.RangeVolume](querykey.RangeVolumes, "content/range/range-volumes", "range-volumes.json", windowed)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.RangeCert](querykey.Certificates, "content/range/range-certs", "range-certs.json", windowed)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.ContainerSpec](querykey.ContainerSpecs, "content/range/container-specifications", "container-specs.json", full)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.RangeDNSZone](querykey.RangeDNSZones, "content/range/range-dns-zones", "range-dns-zones.json", full)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.RangeDNSRecord](querykey.RangeDNSRecords, "content/range/range-dns-records", "range-dns-records.json", full)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.VMImage](querykey.VMImages, "content/assets/virtual-machine/images", "vm-images.json", single)
			return add(f, err)
		},
		func() error {
			f, err := fixtureOf[models.Chart](querykey.Charts, "content/assets/charts", "charts.json", full)
			return add(f, err)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	jobs, err := readFixture[models.BackgroundJob]("background-jobs.json")
	if err != nil {
		return nil, err
	}
	set.jobs = jobs.List

	b, err := fixtureFS.ReadFile("fixtures/range-graph.json")
	if err != nil {
		return nil, fmt.Errorf("read fixture range-graph.json: %w", err)
	}
	if err := json.Unmarshal(b, &set.graph); err != nil {
		return nil, fmt.Errorf("decode fixture range-graph.json: %w", err)
	}
	return set, nil
}

// vmActions answers the VM power endpoints with the VM in its new state.
func vmActions(r chi.Router, find func(string) (models.RangeVM, bool)) {
	power := func(running bool) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			vm, ok := find(chi.URLParam(req, "id"))
			if !ok {
				writeMessage(w, http.StatusNotFound, "not found")
				return
			}
			vm.Running = running
			if running {
				vm.Status, vm.KubevirtVMStatus = models.StatusReady, "Running"
			} else {
				vm.Status, vm.KubevirtVMStatus = models.StatusStopped, "Stopped"
			}
			writeJSON(w, http.StatusOK, vm)
		}
	}
	r.Post("/{id}/start", power(true))
	r.Post("/{id}/stop", power(false))
}

// Catalog describes every fixture's ids and paging behaviour.
func Catalog() []CatalogEntry {
	set, err := loadFixtures()
	if err != nil {
		panic(err)
	}
	out := make([]CatalogEntry, 0, len(set.fixtures))
	for _, f := range set.fixtures {
		out = append(out, f.entry())
	}
	return out
}
