package tools

import (
	"context"
	"sync"
	"time"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
)

// DefaultRefreshInterval is how long a fetched catalogue stays fresh.
const DefaultRefreshInterval = time.Minute

// CatalogueOptions configures a Catalogue.
type CatalogueOptions struct {
	// RefreshInterval bounds the age of the cached snapshot. Negative disables
	// expiry; zero means DefaultRefreshInterval.
	RefreshInterval time.Duration
	// Builtins are served in-process and listed after the remote tools.
	Builtins []Builtin
	Logger   interfaces.Logger
}

// Catalogue is the lazily fetched, cached set of tools for one session.
type Catalogue struct {
	source   Source
	builtins []Builtin
	interval time.Duration
	logger   interfaces.Logger
	now      func() time.Time

	mu        sync.Mutex
	tools     []Descriptor
	index     map[string]int
	fetchedAt time.Time
	loaded    bool
}

// NewCatalogue creates a catalogue over source. A nil source serves builtins only.
func NewCatalogue(source Source, opts CatalogueOptions) *Catalogue {
	interval := opts.RefreshInterval
	if interval == 0 {
		interval = DefaultRefreshInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &Catalogue{
		source:   source,
		builtins: opts.Builtins,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Tools returns the current snapshot, fetching it on first use or once it expired.
func (c *Catalogue) Tools(ctx context.Context) ([]Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && !c.expired() {
		return c.snapshot(), nil
	}
	if err := c.fetch(ctx); err != nil {
		return nil, err
	}
	return c.snapshot(), nil
}

// Refresh forces a re-fetch. On failure the previous snapshot is kept.
func (c *Catalogue) Refresh(ctx context.Context) ([]Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fetch(ctx); err != nil {
		return nil, err
	}
	return c.snapshot(), nil
}

// Lookup finds a tool by name. The boolean is false for unknown names.
func (c *Catalogue) Lookup(ctx context.Context, name string) (Descriptor, bool, error) {
	if _, err := c.Tools(ctx); err != nil {
		return Descriptor{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[name]
	if !ok {
		return Descriptor{}, false, nil
	}
	return c.tools[i], true, nil
}

func (c *Catalogue) builtin(name string) *Builtin {
	for i := range c.builtins {
		if c.builtins[i].Name == name {
			return &c.builtins[i]
		}
	}
	return nil
}

func (c *Catalogue) expired() bool {
	if c.interval < 0 {
		return false
	}
	return c.now().Sub(c.fetchedAt) >= c.interval
}

// fetch must be called with mu held.
func (c *Catalogue) fetch(ctx context.Context) error {
	var remote []Descriptor
	if c.source != nil {
		var err error
		remote, err = c.source.ListTools(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &UnreachableError{Err: err}
		}
	}

	tools := make([]Descriptor, 0, len(remote)+len(c.builtins))
	index := make(map[string]int, cap(tools))
	add := func(d Descriptor) {
		if _, dup := index[d.Name]; dup {
			c.logger.Infof("Dropping duplicate tool %q (servlet %q)", d.Name, d.Servlet)
			return
		}
		index[d.Name] = len(tools)
		tools = append(tools, d)
	}
	for _, d := range remote {
		add(d)
	}
	for _, b := range c.builtins {
		add(b.Descriptor)
	}

	c.tools = tools
	c.index = index
	c.fetchedAt = c.now()
	c.loaded = true
	c.logger.Debugf("Fetched tool catalogue - tools: %d", len(tools))
	return nil
}

func (c *Catalogue) snapshot() []Descriptor {
	out := make([]Descriptor, len(c.tools))
	copy(out, c.tools)
	return out
}
