package mobile

import (
	"github.com/popstellar/popclient/src/message"
	"github.com/popstellar/popclient/src/messagedata"
	"github.com/popstellar/popclient/src/registry"
	"github.com/sirupsen/logrus"
)

/*
This type is not exported
*/

// mobileApp binds the message types registered by the application to its
// MessageHandler.
type mobileApp struct {
	messageHandler   MessageHandler
	exceptionHandler ExceptionHandler
	registry         *registry.Registry
	logger           *logrus.Entry
}

func newMobileApp(messageHandler MessageHandler,
	exceptionHandler ExceptionHandler,
	reg *registry.Registry,
	logger *logrus.Entry) *mobileApp {
	mobileApp := &mobileApp{
		messageHandler:   messageHandler,
		exceptionHandler: exceptionHandler,
		registry:         reg,
		logger:           logger,
	}
	return mobileApp
}

func (m *mobileApp) register(object string, action string, popToken bool) {
	signature := registry.KeyPairSignature
	if popToken {
		signature = registry.PopTokenSignature
	}

	m.registry.Add(messagedata.ObjectType(object), messagedata.ActionType(action),
		m.handle, build, signature)
}

func build(raw []byte, _ string) (messagedata.Data, error) {
	return messagedata.NewGeneric(raw)
}

// handle implements registry.HandleFunc. It passes the JSON payload to the
// application.
func (m *mobileApp) handle(msg *message.ExtendedEnvelope) bool {
	return m.messageHandler.OnMessage(
		msg.Channel().String(),
		msg.MessageID(),
		msg.Sender().String(),
		msg.Data(),
	)
}
