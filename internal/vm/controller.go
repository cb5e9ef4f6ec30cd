package vm

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/im7mortal/kmutex"
	"github.com/spf13/afero"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/metrics"
	"github.com/jbweber/anvil/internal/render"
	"github.com/jbweber/anvil/internal/storage"
	"github.com/jbweber/anvil/internal/unattend"
)

// Controller performs VM lifecycle operations against configured
// hypervisor endpoints. It holds no per-VM state and is safe for
// concurrent use; every call opens and closes its own connection.
type Controller struct {
	registry  endpointRegistry
	connector connector
	renderer  renderer
	runner    command.Runner
	fs        afero.Fs
	log       logr.Logger
	metrics   *metrics.Recorder
	locks     *kmutex.Kmutex

	newMedia func(ep config.Endpoint) (mediaBuilder, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithRunner sets the runner for external tools.
func WithRunner(r command.Runner) Option {
	return func(c *Controller) { c.runner = r }
}

// WithFs sets the filesystem for media images and files outside pools.
func WithFs(fsys afero.Fs) Option {
	return func(c *Controller) { c.fs = fsys }
}

// WithRenderer sets the descriptor renderer. By default templates named
// in the registry's general section are used, or the built-in ones.
func WithRenderer(r *render.Renderer) Option {
	return func(c *Controller) { c.renderer = r }
}

// New creates a Controller for the endpoints in reg.
func New(reg *config.Registry, opts ...Option) (*Controller, error) {
	c := newController(reg, opts...)
	if c.renderer == nil {
		general := reg.General()
		r, err := render.NewRenderer(general.DomainTemplatePath, general.DiskTemplatePath)
		if err != nil {
			return nil, err
		}
		c.renderer = r
	}
	if c.connector == nil {
		c.connector = libvirtConnector{mgr: libvirt.NewManager(c.log)}
	}
	return c, nil
}

// newController applies options and fills in the dependencies that need
// no I/O. Tests call it directly with fakes.
func newController(reg endpointRegistry, opts ...Option) *Controller {
	c := &Controller{
		registry: reg,
		fs:       afero.NewOsFs(),
		log:      logr.Discard(),
		locks:    kmutex.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = command.NewExec(c.log)
	}
	if c.newMedia == nil {
		c.newMedia = c.defaultMedia
	}
	return c
}

func (c *Controller) defaultMedia(ep config.Endpoint) (mediaBuilder, error) {
	format, err := unattend.ParseFormat(ep.MediaFormat)
	if err != nil {
		return nil, err
	}
	return unattend.NewBuilder(ep.ImageDir,
		unattend.WithFormat(format),
		unattend.WithFs(c.fs),
		unattend.WithRunner(c.runner),
		unattend.WithLogger(c.log),
		unattend.WithLocks(c.locks),
	), nil
}

// open resolves id and connects to it. The caller must close the session.
func (c *Controller) open(ctx context.Context, id string) (config.Endpoint, session, error) {
	ep, err := c.registry.Lookup(id)
	if err != nil {
		return config.Endpoint{}, nil, err
	}
	sess, err := c.connector.Connect(ctx, ep)
	if err != nil {
		return config.Endpoint{}, nil, err
	}
	return ep, sess, nil
}

// withSession runs fn on a fresh session to endpoint id.
func (c *Controller) withSession(ctx context.Context, id string, fn func(config.Endpoint, session) error) error {
	ep, sess, err := c.open(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.log.Info("Warning: failed to close libvirt connection", "endpoint", id, "error", err.Error())
		}
	}()
	return fn(ep, sess)
}

// volumes returns a storage manager bound to sess.
func (c *Controller) volumes(sess session) *storage.Manager {
	return storage.NewManager(sess,
		storage.WithRunner(c.runner),
		storage.WithFs(c.fs),
		storage.WithLogger(c.log),
	)
}

// observe records the outcome of an operation. Use with defer and a named
// error result.
func (c *Controller) observe(op string, start time.Time, err *error) {
	c.metrics.ObserveOperation(op, start, *err)
}
