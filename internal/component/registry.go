package component

import (
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
)

// DriverInfo describes a component variant.
type DriverInfo struct {
	UUID uuid.UUID
	Name string
	// Create builds the driver for dev. dev is fully configured but not
	// yet connected to any buffer.
	Create func(dev *Device) (Driver, error)
}

// Registry holds the drivers components can be created from. It must be
// initialised with Init before use and is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	drivers map[uuid.UUID]DriverInfo
	log     logger.Logger
}

// NewRegistry returns an uninitialised registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Global().Module(ComponentName)
	}
	return &Registry{log: log.Module("registry")}
}

// Init makes the registry ready for Register. Calling it again drops every
// registered driver.
func (r *Registry) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = make(map[uuid.UUID]DriverInfo)
}

// Teardown drops every driver. Register fails until the next Init.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = nil
}

// Register adds a driver. UUIDs and names must be unique.
func (r *Registry) Register(info DriverInfo) error {
	if info.UUID == uuid.Nil || info.Name == "" || info.Create == nil {
		return errors.Newf("driver registration needs a uuid, a name and a constructor").
			Component(ComponentName).
			Category(errors.CategoryInvalidParams).
			Context("driver", info.Name).
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.drivers == nil {
		return errors.Newf("driver registry is not initialised").
			Component(ComponentName).
			Category(errors.CategoryInvalidState).
			Build()
	}
	if _, ok := r.drivers[info.UUID]; ok {
		return conflict(info)
	}
	for _, d := range r.drivers {
		if strings.EqualFold(d.Name, info.Name) {
			return conflict(info)
		}
	}

	r.drivers[info.UUID] = info
	r.log.Debug("driver registered",
		logger.String("driver", info.Name),
		logger.String("uuid", info.UUID.String()))
	return nil
}

func conflict(info DriverInfo) error {
	return errors.Newf("driver %s (%s) already registered", info.Name, info.UUID).
		Component(ComponentName).
		Category(errors.CategoryConflict).
		Build()
}

// Lookup finds a driver by UUID.
func (r *Registry) Lookup(id uuid.UUID) (DriverInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.drivers[id]
	if !ok {
		return DriverInfo{}, errors.Newf("no driver with uuid %s", id).
			Component(ComponentName).
			Category(errors.CategoryNotFound).
			Build()
	}
	return info, nil
}

// LookupName finds a driver by name, case-insensitively.
func (r *Registry) LookupName(name string) (DriverInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.drivers {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return DriverInfo{}, errors.Newf("no driver named %q", name).
		Component(ComponentName).
		Category(errors.CategoryNotFound).
		Build()
}

// Drivers lists registered drivers by name.
func (r *Registry) Drivers() []DriverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DriverInfo, 0, len(r.drivers))
	for _, d := range r.drivers {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b DriverInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Create instantiates the driver registered under id. The device starts in
// READY with no buffers.
func (r *Registry) Create(id uuid.UUID, cfg Config, env *Env) (*Device, error) {
	info, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}

	dev := newDevice(cfg, info, env)
	drv, err := info.Create(dev)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentName).
			Category(errors.CategoryDriver).
			Context("driver", info.Name).
			Context("comp_id", cfg.ID).
			Build()
	}
	dev.driver = drv
	dev.log.Debug("component created")
	return dev, nil
}
