package mobile

/*
These types are exported and need to be implemented and used by the mobile
application.
*/

//------------------------------------------------------------------------------

// MessageHandler applies the messages of the types registered by the
// application. data is the JSON payload. Returning false leaves the message
// pending; it is offered again when new messages arrive.
type MessageHandler interface {
	OnMessage(channel string, messageID string, sender string, data []byte) bool
}

// ExceptionHandler receives the errors of calls that cannot return one.
type ExceptionHandler interface {
	OnException(string)
}
