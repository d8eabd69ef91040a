// Package client assembles the components of a participant: its key, the
// connections to the relays, the message registry and the ingestion pipeline.
//
// A Client is configured through a config.Config. Features register their
// message types on Client.Registry before Init is called; Init then verifies
// the registry and wires the network to the pipeline, so that every message
// broadcast by a relay is validated and handed to its handler exactly once.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/popstellar/popclient/src/config"
	"github.com/popstellar/popclient/src/crypto/keys"
	"github.com/popstellar/popclient/src/ingestion"
	"github.com/popstellar/popclient/src/message"
	"github.com/popstellar/popclient/src/net"
	"github.com/popstellar/popclient/src/registry"
	"github.com/popstellar/popclient/src/service"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Client is a participant of the protocol.
type Client struct {
	Config    *config.Config
	Key       *keys.KeyPair
	Registry  *registry.Registry
	Store     ingestion.Store
	Pipeline  *ingestion.Pipeline
	Network   *net.Manager
	Service   *service.Service
	PopTokens PopTokenProvider

	logger *logrus.Entry

	ol            sync.RWMutex
	organizations map[string]*Organization
}

// NewClient creates a Client with the default message types registered.
func NewClient(conf *config.Config) *Client {
	c := &Client{
		Config:        conf,
		logger:        conf.Logger(),
		organizations: make(map[string]*Organization),
	}

	c.Registry = registry.NewRegistry(c.logger.WithField("component", "registry"))
	c.registerDefaults()

	return c
}

func (c *Client) initKey() error {
	if c.Config.Key == nil {
		keyfile := keys.NewSimpleKeyfile(c.Config.Keyfile())

		kp, err := keys.LoadOrGenerate(keyfile)
		if err != nil {
			c.logger.WithError(err).Error("Cannot load or generate a private key")
			return err
		}

		c.Config.Key = kp
	}

	c.Key = c.Config.Key

	c.logger.WithField("public_key", c.Key.Public().String()).Debug("Loaded key")

	return nil
}

func (c *Client) initStore() error {
	if !c.Config.Store {
		c.Store = ingestion.NewInmemStore()

		c.logger.Debug("created new in-mem store")
	} else {
		c.logger.WithField("path", c.Config.DatabaseDir).Debug("Attempting to load or create database")

		store, err := ingestion.NewBadgerStore(c.Config.DatabaseDir, c.logger)
		if err != nil {
			return err
		}

		c.Store = store
	}

	return nil
}

func (c *Client) initPipeline() error {
	c.Pipeline = ingestion.NewPipeline(c.Registry, c.Store, c.logger.WithField("component", "ingestion"))
	c.Pipeline.SetReplay(c.replayMessage)

	// messages left pending by a previous run
	if err := c.Pipeline.Load(); err != nil {
		return err
	}

	stats := c.Pipeline.Stats()
	c.logger.WithFields(logrus.Fields{
		"known":       stats.Known,
		"unprocessed": stats.Unprocessed,
	}).Debug("Loaded pipeline")

	return nil
}

func (c *Client) initNetwork() error {
	strategy, err := c.Config.SendingStrategy()
	if err != nil {
		return err
	}

	dialer := c.Config.Dialer
	if dialer == nil {
		dialer = net.NewWebsocketDialer(c.logger.WithField("component", "websocket"))
	}

	c.Network = net.NewManager(dialer, c.Config.NetConfig(), strategy, c.logger.WithField("component", "network"))
	c.Network.SetRPCHandler(c.handleRequest)

	return nil
}

func (c *Client) initService() error {
	if !c.Config.NoService {
		c.Service = service.NewService(c.Config.ServiceAddr, c.Pipeline, c.Network, c.logger.WithField("component", "service"))
	}
	return nil
}

// Init verifies the registry and creates the components.
func (c *Client) Init() error {
	if err := c.Registry.VerifyEntries(); err != nil {
		return err
	}

	if err := c.initKey(); err != nil {
		return err
	}

	if err := c.initStore(); err != nil {
		return err
	}

	if err := c.initPipeline(); err != nil {
		return err
	}

	if err := c.initNetwork(); err != nil {
		return err
	}

	if err := c.initService(); err != nil {
		return err
	}

	return nil
}

// Connect opens the connections to the configured relays, then subscribes to
// and catches up on the configured channels. Relays that cannot be reached
// are skipped; an error is returned only if none is reachable.
func (c *Client) Connect(ctx context.Context) error {
	for _, address := range c.Config.Relays {
		if _, err := c.Network.Connect(ctx, address); err != nil {
			c.logger.WithError(err).WithField("address", address).Warn("Cannot connect to relay")
		}
	}

	if len(c.Network.Connections()) == 0 {
		return xerrors.Errorf("none of the relays %v is reachable", c.Config.Relays)
	}

	for _, ch := range c.Config.Channels {
		if err := c.SubscribeAndCatchup(ctx, message.Channel(ch)); err != nil {
			return xerrors.Errorf("failed to subscribe to %s: %w", ch, err)
		}
	}

	return nil
}

// Run connects, serves the status API if enabled, and blocks until ctx is
// done.
func (c *Client) Run(ctx context.Context) error {
	if c.Service != nil {
		go c.Service.Serve()
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	return nil
}

// Close disconnects from every relay and releases the store.
func (c *Client) Close() error {
	if c.Service != nil {
		if err := c.Service.Shutdown(context.Background()); err != nil {
			c.logger.WithError(err).Warn("Cannot shut down service")
		}
	}

	if c.Network != nil {
		c.Network.DisconnectAll()
	}

	if c.Pipeline != nil {
		return c.Pipeline.Close()
	}

	return nil
}

// Keygen generates a key pair and writes it to the keyfile of datadir. It
// refuses to overwrite an existing key.
func Keygen(datadir string) (*keys.KeyPair, error) {
	conf := config.NewDefaultConfig()
	conf.SetDataDir(datadir)

	keyfile := keys.NewSimpleKeyfile(conf.Keyfile())

	if _, err := keyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("Another key already lives under %s", datadir)
	}

	kp := keys.GenerateKeyPair()

	if err := keyfile.WriteKey(kp); err != nil {
		return nil, err
	}

	return kp, nil
}
