package client

import (
	"sync"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto/keys"
)

// PopTokenProvider returns the single-use key of the participant for an
// organization.
type PopTokenProvider interface {
	PopToken(orgID string) (*keys.KeyPair, error)
}

// InmemPopTokens keeps pop tokens in memory.
type InmemPopTokens struct {
	l      sync.Mutex
	tokens map[string]*keys.KeyPair
}

// NewInmemPopTokens creates an empty InmemPopTokens.
func NewInmemPopTokens() *InmemPopTokens {
	return &InmemPopTokens{tokens: make(map[string]*keys.KeyPair)}
}

// Set records the token of an organization.
func (p *InmemPopTokens) Set(orgID string, kp *keys.KeyPair) {
	p.l.Lock()
	defer p.l.Unlock()
	p.tokens[orgID] = kp
}

// Generate creates and records a new token for an organization.
func (p *InmemPopTokens) Generate(orgID string) *keys.KeyPair {
	kp := keys.GenerateKeyPair()
	p.Set(orgID, kp)
	return kp
}

// PopToken implements PopTokenProvider.
func (p *InmemPopTokens) PopToken(orgID string) (*keys.KeyPair, error) {
	p.l.Lock()
	defer p.l.Unlock()

	kp, ok := p.tokens[orgID]
	if !ok {
		return nil, common.NewStoreErr("PopToken", common.KeyNotFound, orgID)
	}
	return kp, nil
}
