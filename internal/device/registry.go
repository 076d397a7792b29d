package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/memdev/internal/chardev"
	"github.com/rs/zerolog/log"
)

const (
	DefaultName     = "my_device"
	DefaultCapacity = chardev.DefaultCapacity
)

var (
	ErrNodeExists   = errors.New("device: node already exists")
	ErrNodeNotFound = errors.New("device: node not found")
	ErrInvalidName  = errors.New("device: invalid node name")
)

// Node is one named device backed by a buffer.
type Node struct {
	Name     string          `json:"name"`
	Capacity int             `json:"capacity"`
	Created  time.Time       `json:"created"`
	Buffer   *chardev.Buffer `json:"-"`
}

// Registry stores device nodes by name.
type Registry struct {
	mu        sync.RWMutex
	lifecycle Lifecycle
	nodes     map[string]*Node
}

// NewRegistry creates an empty registry. A nil lifecycle defaults to MemoryLifecycle.
func NewRegistry(lifecycle Lifecycle) *Registry {
	if lifecycle == nil {
		lifecycle = MemoryLifecycle{}
	}
	return &Registry{
		lifecycle: lifecycle,
		nodes:     make(map[string]*Node),
	}
}

// Create initializes a buffer through the lifecycle and registers it under name.
func (r *Registry) Create(name string, capacity int) (*Node, error) {
	name = strings.TrimSpace(name)
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, name)
	}
	buf, err := r.lifecycle.Init(capacity)
	if err != nil {
		return nil, fmt.Errorf("device %s init failed: %w", name, err)
	}
	node := &Node{
		Name:     name,
		Capacity: buf.Capacity(),
		Created:  time.Now(),
		Buffer:   buf,
	}
	r.nodes[name] = node
	log.Info().Str("device", name).Int("capacity", node.Capacity).Msg("device node created")
	return node, nil
}

// Resolve returns a node by name.
func (r *Registry) Resolve(name string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[name]
	return node, ok
}

// Destroy tears down the node's buffer and forgets it.
func (r *Registry) Destroy(name string) error {
	r.mu.Lock()
	node, ok := r.nodes[name]
	if ok {
		delete(r.nodes, name)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	if err := r.lifecycle.Teardown(node.Buffer); err != nil {
		return fmt.Errorf("device %s teardown failed: %w", name, err)
	}
	log.Info().Str("device", name).Msg("device node destroyed")
	return nil
}

// List returns nodes ordered by name.
func (r *Registry) List() []Node {
	r.mu.RLock()
	list := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		list = append(list, *node)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Close destroys every node and joins teardown errors.
func (r *Registry) Close() error {
	var errs []error
	for _, node := range r.List() {
		if err := r.Destroy(node.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidName reports whether name is lowercase letters and digits separated by
// single '.', '-' or '_' characters.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(name)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
