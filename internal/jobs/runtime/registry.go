package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/dats-backend/internal/domain/jobs"
)

// Handler runs one job type. Validate checks a payload against the input
// schema before it is enqueued; Run executes a claimed job and returns the
// value persisted as the job result.
type Handler interface {
	Validate(payload []byte) error
	Run(jc *Context) (any, error)
}

// Spec binds a job type to its handler and scheduling attributes.
type Spec struct {
	Type     string
	Device   jobs.Device
	Priority int
	Handler  Handler
}

type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

func (r *Registry) Register(spec Spec) error {
	if spec.Type == "" {
		return fmt.Errorf("job spec Type is empty")
	}
	if spec.Handler == nil {
		return fmt.Errorf("nil handler for job_type=%s", spec.Type)
	}
	if spec.Device == "" {
		spec.Device = jobs.DeviceCPU
	}
	if !spec.Device.Valid() {
		return fmt.Errorf("invalid device %q for job_type=%s", spec.Device, spec.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Type]; exists {
		return fmt.Errorf("handler already registered for job_type=%s", spec.Type)
	}
	r.specs[spec.Type] = spec
	return nil
}

// MustRegister panics on a registration error. Used at wiring time only.
func (r *Registry) MustRegister(spec Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(jobType string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[jobType]
	return s, ok
}

// Types lists the job types a worker of the given device can claim.
func (r *Registry) Types(device jobs.Device) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.specs))
	for t, s := range r.specs {
		if s.Device == device {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
