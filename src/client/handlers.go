package client

import (
	"github.com/popstellar/popclient/src/jsonrpc"
	"github.com/popstellar/popclient/src/message"
	"github.com/popstellar/popclient/src/messagedata"
	"github.com/popstellar/popclient/src/registry"
	"github.com/sirupsen/logrus"
)

// Organization is an organization whose creation was processed.
type Organization struct {
	ID        string
	Name      string
	Creation  messagedata.Timestamp
	Organizer string
	Witnesses []string
	Channel   message.Channel
}

// IsWitness reports whether key is a witness of the organization.
func (o *Organization) IsWitness(key string) bool {
	for _, w := range o.Witnesses {
		if w == key {
			return true
		}
	}
	return false
}

// Organization returns a known organization.
func (c *Client) Organization(id string) (*Organization, bool) {
	c.ol.RLock()
	defer c.ol.RUnlock()

	o, ok := c.organizations[id]
	return o, ok
}

func (c *Client) registerDefaults() {
	c.Registry.Add(messagedata.LaoObject, messagedata.CreateAction,
		c.handleCreateLao, messagedata.BuildCreateLao, registry.KeyPairSignature)

	c.Registry.Add(messagedata.MessageObject, messagedata.WitnessAction,
		c.handleWitnessMessage, messagedata.BuildWitnessMessage, registry.KeyPairSignature)
}

func (c *Client) handleCreateLao(msg *message.ExtendedEnvelope) bool {
	data, err := msg.Decode(c.Registry)
	if err != nil {
		return false
	}

	create, ok := data.(*messagedata.CreateLao)
	if !ok {
		return false
	}

	if create.Organizer != msg.Sender().String() {
		c.logger.WithFields(logrus.Fields{
			"message_id": msg.MessageID(),
			"organizer":  create.Organizer,
			"sender":     msg.Sender().String(),
		}).Warn("lao#create not sent by its organizer")
		return false
	}

	c.ol.Lock()
	c.organizations[create.ID] = &Organization{
		ID:        create.ID,
		Name:      create.Name,
		Creation:  create.Creation,
		Organizer: create.Organizer,
		Witnesses: append([]string{}, create.Witnesses...),
		Channel:   message.RootChannel.Sub(create.ID),
	}
	c.ol.Unlock()

	c.logger.WithFields(logrus.Fields{
		"id":   create.ID,
		"name": create.Name,
	}).Info("New organization")

	return true
}

// replayMessage restores the organizations of a previous run from their
// processed lao#create messages.
func (c *Client) replayMessage(msg *message.ExtendedEnvelope) {
	data, err := msg.Decode(c.Registry)
	if err != nil {
		return
	}

	if _, ok := data.(*messagedata.CreateLao); ok {
		c.handleCreateLao(msg)
	}
}

// handleWitnessMessage attaches the co-signature to the message it refers to.
// It waits for that message, and on an organization channel for the
// organization, to be known.
func (c *Client) handleWitnessMessage(msg *message.ExtendedEnvelope) bool {
	data, err := msg.Decode(c.Registry)
	if err != nil {
		return false
	}

	witness, ok := data.(*messagedata.WitnessMessage)
	if !ok {
		return false
	}

	logger := c.logger.WithFields(logrus.Fields{
		"message_id": msg.MessageID(),
		"witnessed":  witness.MessageID,
		"witness":    msg.Sender().String(),
	})

	if err := witness.Verify(msg.Sender()); err != nil {
		logger.WithError(err).Warn("Invalid witness signature")
		return false
	}

	if orgID, ok := msg.Channel().OrganizationID(); ok {
		org, known := c.Organization(orgID)
		if !known {
			logger.Debug("Organization of witness message not known yet")
			return false
		}

		if !org.IsWitness(msg.Sender().String()) {
			logger.Warn("Sender is not a witness of the organization")
			return false
		}
	}

	ws := message.WitnessSignature{
		Witness:   msg.Sender().String(),
		Signature: witness.Signature,
	}

	if err := c.Pipeline.AddWitnessSignature(witness.MessageID, ws); err != nil {
		logger.WithError(err).Debug("Cannot attach witness signature yet")
		return false
	}

	return true
}

// handleRequest feeds the messages broadcast by the relays to the pipeline.
func (c *Client) handleRequest(req *jsonrpc.ExtendedRequest) {
	logger := c.logger.WithFields(logrus.Fields{
		"method":  req.Method,
		"channel": req.Params.Channel,
		"from":    req.ReceivedFrom,
	})

	if req.Method != jsonrpc.Broadcast {
		logger.Debug("Ignoring unexpected request")
		return
	}

	env, err := req.Envelope()
	if err != nil {
		logger.WithError(err).Warn("Dropping invalid broadcast")
		return
	}

	if err := c.Pipeline.AddMessages(message.NewExtendedEnvelope(env, req.ReceivedFrom)); err != nil {
		logger.WithError(err).Error("Cannot add broadcast message")
	}
}
