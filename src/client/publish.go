package client

import (
	"context"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto/keys"
	"github.com/popstellar/popclient/src/jsonrpc"
	"github.com/popstellar/popclient/src/message"
	"github.com/popstellar/popclient/src/messagedata"
	"github.com/popstellar/popclient/src/registry"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// signingKey returns the key that must sign payload on channel.
func (c *Client) signingKey(payload messagedata.Data, channel message.Channel) (*keys.KeyPair, error) {
	st, err := c.Registry.SignatureTypeOf(payload)
	if err != nil {
		return nil, err
	}

	switch st {
	case registry.KeyPairSignature:
		return c.Key, nil
	case registry.PopTokenSignature:
		orgID, ok := channel.OrganizationID()
		if !ok {
			return nil, common.NewProtocolError("%s carries no organization to pick a pop token for", channel)
		}

		if c.PopTokens == nil {
			return nil, common.NewProtocolError("no pop token provider")
		}

		return c.PopTokens.PopToken(orgID)
	default:
		return nil, common.NewProtocolError("unsupported signature type %s", st)
	}
}

// Publish signs payload with the key its type requires and publishes it on
// channel. It returns the published envelope.
func (c *Client) Publish(ctx context.Context, channel message.Channel, payload messagedata.Data) (*message.Envelope, error) {
	kp, err := c.signingKey(payload, channel)
	if err != nil {
		return nil, err
	}

	env, err := message.Create(payload, kp, channel, nil)
	if err != nil {
		return nil, err
	}

	if _, err := c.Network.SendPayload(ctx, jsonrpc.NewPublish(channel, env)); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"channel":    channel,
		"message_id": env.MessageID(),
	}).Debug("Published message")

	return env, nil
}

// Subscribe asks the relays to broadcast the messages of channel.
func (c *Client) Subscribe(ctx context.Context, channel message.Channel) error {
	_, err := c.Network.SendPayload(ctx, jsonrpc.NewSubscribe(channel))
	return err
}

// Unsubscribe stops the broadcasts of channel.
func (c *Client) Unsubscribe(ctx context.Context, channel message.Channel) error {
	_, err := c.Network.SendPayload(ctx, jsonrpc.NewUnsubscribe(channel))
	return err
}

// Catchup fetches the messages already published on channel. The envelopes
// are validated one at a time as the iterator advances.
func (c *Client) Catchup(ctx context.Context, channel message.Channel) (*EnvelopeIterator, error) {
	responses, err := c.Network.SendPayload(ctx, jsonrpc.NewCatchup(channel))
	if err != nil {
		return nil, err
	}

	return newEnvelopeIterator(channel, responses), nil
}

// SubscribeAndCatchup subscribes to channel, then feeds the messages already
// published on it to the pipeline. Envelopes failing validation are logged and
// dropped.
func (c *Client) SubscribeAndCatchup(ctx context.Context, channel message.Channel) error {
	if err := c.Subscribe(ctx, channel); err != nil {
		return err
	}

	it, err := c.Catchup(ctx, channel)
	if err != nil {
		return err
	}

	dropped := 0
	it.SkipInvalid(func(from string, err error) {
		dropped++
		c.logger.WithError(err).WithFields(logrus.Fields{
			"channel": channel,
			"from":    from,
		}).Warn("Dropping invalid catchup message")
	})

	msgs, err := it.All()
	if err != nil {
		return xerrors.Errorf("catchup on %s: %w", channel, err)
	}

	c.logger.WithFields(logrus.Fields{
		"channel":  channel,
		"messages": len(msgs),
		"dropped":  dropped,
	}).Debug("Caught up")

	return c.Pipeline.AddMessages(msgs...)
}

// Witness co-signs env and publishes the co-signature on channel.
func (c *Client) Witness(ctx context.Context, channel message.Channel, env *message.Envelope) (*message.Envelope, error) {
	ws, err := env.WitnessSign(c.Key)
	if err != nil {
		return nil, err
	}

	sig, err := common.DecodeFromString(ws.Signature)
	if err != nil {
		return nil, err
	}

	return c.Publish(ctx, channel, messagedata.NewWitnessMessage(env.MessageID(), sig))
}
