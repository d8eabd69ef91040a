package mobile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/popstellar/popclient/src/client"
	"github.com/popstellar/popclient/src/message"
	"github.com/popstellar/popclient/src/messagedata"
	"github.com/popstellar/popclient/src/net"
	"github.com/sirupsen/logrus"
)

// Client wraps a client with an API restricted to the types gomobile can
// bind.
type Client struct {
	client           *client.Client
	app              *mobileApp
	popTokens        *client.InmemPopTokens
	exceptionHandler ExceptionHandler
	logger           *logrus.Entry
}

// New initializes a Client. relays is a comma separated list of websocket
// addresses. It returns nil, after reporting the error to exceptionHandler, if
// the client cannot be initialized.
func New(privKey string,
	relays string,
	messageHandler MessageHandler,
	exceptionHandler ExceptionHandler,
	config *MobileConfig) *Client {

	return newClient(privKey, splitRelays(relays), nil, messageHandler, exceptionHandler, config)
}

func newClient(privKey string,
	relays []string,
	dialer net.Dialer,
	messageHandler MessageHandler,
	exceptionHandler ExceptionHandler,
	config *MobileConfig) *Client {

	conf := config.toConfig()
	conf.Relays = relays
	conf.Dialer = dialer

	logger := conf.Logger()

	logger.WithFields(logrus.Fields{
		"relays": relays,
		"config": fmt.Sprintf("%v", config),
	}).Debug("New Mobile Client")

	//Check private key
	key, err := parsePrivateKey(privKey)
	if err != nil {
		exceptionHandler.OnException(fmt.Sprintf("Failed to read private key: %s", err))
		return nil
	}

	conf.Key = key

	engine := client.NewClient(conf)

	popTokens := client.NewInmemPopTokens()
	engine.PopTokens = popTokens

	if err := engine.Init(); err != nil {
		exceptionHandler.OnException(fmt.Sprintf("Cannot initialize client: %s", err))
		return nil
	}

	return &Client{
		client:           engine,
		app:              newMobileApp(messageHandler, exceptionHandler, engine.Registry, logger),
		popTokens:        popTokens,
		exceptionHandler: exceptionHandler,
		logger:           logger,
	}
}

func splitRelays(relays string) []string {
	var res []string
	for _, r := range strings.Split(relays, ",") {
		if r = strings.TrimSpace(r); r != "" {
			res = append(res, r)
		}
	}
	return res
}

func (c *Client) fail(op string, err error) {
	c.exceptionHandler.OnException(fmt.Sprintf("%s: %s", op, err))
}

// Register binds the messages tagged object#action to the MessageHandler.
// popToken selects the key their publications are signed with.
func (c *Client) Register(object string, action string, popToken bool) {
	c.app.register(object, action, popToken)
}

// SetPopToken sets the hex private key of the pop token for an organization.
func (c *Client) SetPopToken(orgID string, privKey string) bool {
	key, err := parsePrivateKey(privKey)
	if err != nil {
		c.fail("SetPopToken", err)
		return false
	}

	c.popTokens.Set(orgID, key)
	return true
}

// Connect opens the connections to the relays.
func (c *Client) Connect() bool {
	if err := c.client.Connect(context.Background()); err != nil {
		c.fail("Connect", err)
		return false
	}
	return true
}

// Subscribe subscribes to channel and catches up on its messages.
func (c *Client) Subscribe(channel string) bool {
	if err := c.client.SubscribeAndCatchup(context.Background(), message.Channel(channel)); err != nil {
		c.fail("Subscribe", err)
		return false
	}
	return true
}

// Unsubscribe unsubscribes from channel.
func (c *Client) Unsubscribe(channel string) bool {
	if err := c.client.Unsubscribe(context.Background(), message.Channel(channel)); err != nil {
		c.fail("Unsubscribe", err)
		return false
	}
	return true
}

// Publish publishes the JSON payload data on channel and returns the id of the
// message, or an empty string on failure.
func (c *Client) Publish(channel string, data []byte) string {
	//have to make a copy or the payload may be garbage collected by the
	//mobile runtime
	d := make([]byte, len(data), len(data))
	copy(d, data)

	payload, err := messagedata.NewGeneric(d)
	if err != nil {
		c.fail("Publish", err)
		return ""
	}

	env, err := c.client.Publish(context.Background(), message.Channel(channel), payload)
	if err != nil {
		c.fail("Publish", err)
		return ""
	}

	return env.MessageID()
}

// Witness co-signs a received message and publishes the co-signature on
// channel. It returns the id of the witness message, or an empty string on
// failure.
func (c *Client) Witness(channel string, messageID string) string {
	msg, ok := c.client.Pipeline.Get(messageID)
	if !ok {
		c.fail("Witness", fmt.Errorf("unknown message %s", messageID))
		return ""
	}

	env, err := c.client.Witness(context.Background(), message.Channel(channel), msg.Envelope)
	if err != nil {
		c.fail("Witness", err)
		return ""
	}

	return env.MessageID()
}

// NotifyNetworkStatus reports the network reachability of the device.
func (c *Client) NotifyNetworkStatus(online bool) {
	c.client.Network.NotifyNetworkStatus(online)
}

// NotifyForeground reports whether the application is in the foreground.
func (c *Client) NotifyForeground(active bool) {
	c.client.Network.NotifyForeground(active)
}

// GetStats returns the message counts, JSON encoded.
func (c *Client) GetStats() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(c.client.Pipeline.Stats()); err != nil {
		return ""
	}

	return buf.String()
}

// Shutdown closes the connections and the store.
func (c *Client) Shutdown() {
	if err := c.client.Close(); err != nil {
		c.fail("Shutdown", err)
	}
}
