package hashfinder

import (
	"context"
	"errors"

	"github.com/DistributedClocks/tracing"
	"go.uber.org/zap"

	"example.org/hashfinder/digest"
	"example.org/hashfinder/findlib"
	"example.org/hashfinder/pool"
)

const ChCapacity = 10

type Client struct {
	NotifyChannel findlib.NotifyChannel
	id            string
	config        FinderConfig
	finder        *findlib.Finder
	log           *zap.Logger
	tracer        *tracing.Tracer
	recorder      pool.Recorder
	initialized   bool
	tracerConfig  tracing.TracerConfig
}

func NewClient(config FinderConfig, finder *findlib.Finder, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	tracerConfig := tracing.TracerConfig{
		ServerAddress:  config.TracerServerAddr,
		TracerIdentity: config.FinderID,
		Secret:         config.TracerSecret,
	}
	client := &Client{
		id:           config.FinderID,
		config:       config,
		finder:       finder,
		log:          log.With(zap.String("finder", config.FinderID)),
		tracerConfig: tracerConfig,
		initialized:  false,
	}
	return client
}

// Initialize validates the configuration, connects the tracer when a
// tracing server is configured, and prepares the finder.
func (c *Client) Initialize() error {
	if c.initialized {
		return errors.New("client has been initialized before")
	}
	poolConfig, err := c.config.PoolConfig()
	if err != nil {
		return err
	}
	fn, err := digest.ByName(c.config.Digest)
	if err != nil {
		return &ConfigError{Field: "Digest", Reason: err.Error()}
	}

	if c.tracerConfig.ServerAddress != "" {
		c.tracer = tracing.NewTracer(c.tracerConfig)
		c.recorder = c.tracer
	}
	ch, err := c.finder.Initialize(poolConfig, ChCapacity, c.log, pool.WithDigest(fn))
	if err != nil {
		return err
	}
	c.NotifyChannel = ch
	c.initialized = true
	return nil
}

// Find starts a search; matches arrive on NotifyChannel.
func (c *Client) Find(ctx context.Context, n uint8, target uint32) error {
	if !c.initialized {
		return errors.New("client is not initialized")
	}
	return c.finder.Find(ctx, c.recorder, n, target)
}

// Wait returns the outcome of the search started by Find.
func (c *Client) Wait() (*pool.Result, error) {
	return c.finder.Wait()
}

func (c *Client) Close() error {
	if c.tracer != nil {
		if err := c.tracer.Close(); err != nil {
			return err
		}
	}
	if err := c.finder.Close(); err != nil {
		return err
	}
	c.initialized = false
	return nil
}
