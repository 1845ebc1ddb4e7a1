// internal/di/container.go
package di

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Names the application registers its services under.
const (
	Metrics      = "metrics"
	Files        = "files"
	GalleryStore = "gallery_store"
	LLM          = "llm"
	Design       = "design"
	Analyzer     = "analyzer"
	Session      = "session"
	Export       = "export"
	Gallery      = "gallery"
	WebSocket    = "websocket"
)

var ErrNotRegistered = errors.New("service not registered")

// Container is a name-keyed service registry.
type Container struct {
	services map[string]interface{}
	mutex    sync.RWMutex
}

var (
	globalContainer *Container
	once            sync.Once
)

func NewContainer() *Container {
	return &Container{services: make(map[string]interface{})}
}

// GetContainer returns the process-wide container.
func GetContainer() *Container {
	once.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

// Register stores service under name, replacing any previous entry.
func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.services[name] = service
}

// Get returns the service registered under name, or nil.
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.services[name]
}

func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, exists := c.services[name]
	return exists
}

func (c *Container) Remove(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.services, name)
}

// Clear drops every registration.
func (c *Container) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.services = make(map[string]interface{})
}

// GetNames lists the registered names, sorted.
func (c *Container) GetNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the service under name as a T. It fails with
// ErrNotRegistered when nothing is registered and with a type error when the
// entry has another type.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	service := c.Get(name)
	if service == nil {
		return zero, fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("%s: registered as %T, want %T", name, service, zero)
	}
	return typed, nil
}

// Lookup is Resolve without the error, for optional services.
func Lookup[T any](c *Container, name string) (T, bool) {
	typed, err := Resolve[T](c, name)
	return typed, err == nil
}
