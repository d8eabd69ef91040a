// Package registry binds every (object, action) pair of payloads to the
// functions that build, sign and handle them.
//
// Features register their entries during configuration. VerifyEntries must be
// called once configuration is complete; afterwards the registry is only read.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/message"
	"github.com/popstellar/popclient/src/messagedata"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// SignatureType is the kind of key that must sign a payload.
type SignatureType int

const (
	// NoSignature marks an entry registered without a signature requirement.
	NoSignature SignatureType = iota
	// KeyPairSignature is the participant's general identity key.
	KeyPairSignature
	// PopTokenSignature is the participant's single-use token for the
	// organization.
	PopTokenSignature
)

// String returns the string representation of a SignatureType
func (s SignatureType) String() string {
	switch s {
	case KeyPairSignature:
		return "KeyPair"
	case PopTokenSignature:
		return "PopToken"
	default:
		return "None"
	}
}

// Key identifies an entry.
type Key struct {
	Object messagedata.ObjectType
	Action messagedata.ActionType
}

// String returns the object#action form of the key.
func (k Key) String() string {
	return fmt.Sprintf("%s#%s", k.Object, k.Action)
}

// HandleFunc applies a validated message. It returns false when a
// precondition is not met yet; the message is then retried later.
type HandleFunc func(msg *message.ExtendedEnvelope) bool

// BuildFunc turns a raw payload into a typed one. orgID is empty when the
// message was not received on an organization channel.
type BuildFunc func(raw []byte, orgID string) (messagedata.Data, error)

// Entry holds the three facets of a registration.
type Entry struct {
	Handle        HandleFunc
	Build         BuildFunc
	SignatureType SignatureType
}

func (e *Entry) complete() bool {
	return e.Handle != nil && e.Build != nil && e.SignatureType != NoSignature
}

// Registry is the table of entries. It implements message.DataBuilder.
type Registry struct {
	l       sync.RWMutex
	entries map[Key]*Entry
	logger  *logrus.Entry
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *logrus.Entry) *Registry {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Registry{
		entries: make(map[Key]*Entry),
		logger:  logger,
	}
}

// Add registers an entry for object#action. A previous entry for the same
// key is replaced.
func (r *Registry) Add(
	object messagedata.ObjectType,
	action messagedata.ActionType,
	handle HandleFunc,
	build BuildFunc,
	signatureType SignatureType,
) {
	r.l.Lock()
	defer r.l.Unlock()

	key := Key{Object: object, Action: action}

	if _, ok := r.entries[key]; ok {
		r.logger.WithField("key", key).Debug("overwriting registry entry")
	}

	r.entries[key] = &Entry{
		Handle:        handle,
		Build:         build,
		SignatureType: signatureType,
	}
}

func (r *Registry) get(key Key) (*Entry, bool) {
	r.l.RLock()
	defer r.l.RUnlock()

	e, ok := r.entries[key]
	return e, ok
}

// BuildMessageData builds the typed payload of raw with the builder
// registered for its tag. It fails with a ProtocolError when the tag is not
// registered.
func (r *Registry) BuildMessageData(raw []byte, orgID string) (messagedata.Data, error) {
	object, action, err := messagedata.GetObjectAndAction(raw)
	if err != nil {
		return nil, err
	}

	key := Key{Object: object, Action: action}

	e, ok := r.get(key)
	if !ok || e.Build == nil {
		return nil, common.NewProtocolError("message type %s is not supported", key)
	}

	return e.Build(raw, orgID)
}

// HandleMessage decodes msg and hands it to the handler registered for its
// tag. It returns the handler's verdict, or false if the message cannot be
// decoded or has no handler.
func (r *Registry) HandleMessage(msg *message.ExtendedEnvelope) bool {
	data, err := msg.Decode(r)
	if err != nil {
		r.logger.WithError(err).WithField("message_id", msg.MessageID()).Warn("failed to decode message")
		return false
	}

	key := Key{Object: data.Object(), Action: data.Action()}

	e, ok := r.get(key)
	if !ok || e.Handle == nil {
		r.logger.WithField("key", key).Warn("no handler registered")
		return false
	}

	return e.Handle(msg)
}

// SignatureType returns the kind of key that must sign object#action
// payloads.
func (r *Registry) SignatureType(object messagedata.ObjectType, action messagedata.ActionType) (SignatureType, error) {
	key := Key{Object: object, Action: action}

	e, ok := r.get(key)
	if !ok || e.SignatureType == NoSignature {
		return NoSignature, common.NewProtocolError("no signature type registered for %s", key)
	}

	return e.SignatureType, nil
}

// SignatureTypeOf returns the signature type required for data.
func (r *Registry) SignatureTypeOf(data messagedata.Data) (SignatureType, error) {
	return r.SignatureType(data.Object(), data.Action())
}

// VerifyEntries fails if any entry lacks one of its facets.
func (r *Registry) VerifyEntries() error {
	var incomplete []string

	for _, k := range r.Keys() {
		e, _ := r.get(k)
		if !e.complete() {
			incomplete = append(incomplete, k.String())
		}
	}

	if len(incomplete) > 0 {
		return xerrors.Errorf("incomplete registry entries: %v", incomplete)
	}

	return nil
}

// Keys returns the registered keys in lexicographic order.
func (r *Registry) Keys() []Key {
	r.l.RLock()
	defer r.l.RUnlock()

	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	return keys
}

// Entries returns a copy of every entry.
func (r *Registry) Entries() map[Key]Entry {
	r.l.RLock()
	defer r.l.RUnlock()

	res := make(map[Key]Entry, len(r.entries))
	for k, e := range r.entries {
		res[k] = *e
	}
	return res
}
