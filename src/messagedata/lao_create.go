package messagedata

import (
	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto"
	"github.com/popstellar/popclient/src/crypto/keys"
)

// CreateLao announces a new organization. Its id is the hash of the
// organizer key, the creation time and the name.
type CreateLao struct {
	Header

	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Creation  Timestamp `json:"creation"`
	Organizer string    `json:"organizer"`
	Witnesses []string  `json:"witnesses"`
}

// NewCreateLao builds a CreateLao and computes its id.
func NewCreateLao(name string, creation Timestamp, organizer keys.PublicKey, witnesses []keys.PublicKey) (*CreateLao, error) {
	c := &CreateLao{
		Header:    Header{ObjectField: LaoObject, ActionField: CreateAction},
		Name:      name,
		Creation:  creation,
		Organizer: organizer.String(),
		Witnesses: make([]string, 0, len(witnesses)),
	}

	for _, w := range witnesses {
		c.Witnesses = append(c.Witnesses, w.String())
	}

	id, err := LaoID(c.Organizer, creation, name)
	if err != nil {
		return nil, err
	}
	c.ID = id

	return c, nil
}

// LaoID computes the identifier of an organization.
func LaoID(organizer string, creation Timestamp, name string) (string, error) {
	h, err := crypto.HashItems(organizer, creation.String(), name)
	if err != nil {
		return "", err
	}
	return common.EncodeToString(h), nil
}

// BuildCreateLao parses and validates a lao#create payload. When orgID is set,
// the payload must describe that very organization.
func BuildCreateLao(raw []byte, orgID string) (Data, error) {
	var c CreateLao
	if err := unmarshalTagged(raw, &c, LaoObject, CreateAction); err != nil {
		return nil, err
	}

	if err := c.Verify(orgID); err != nil {
		return nil, err
	}

	return &c, nil
}

// Verify checks the fields of the payload.
func (c *CreateLao) Verify(orgID string) error {
	if c.Name == "" {
		return common.NewProtocolError("lao#create: empty name")
	}

	if c.Creation <= 0 {
		return common.NewProtocolError("lao#create: invalid creation time %d", c.Creation)
	}

	if _, err := keys.ParsePublicKey(c.Organizer); err != nil {
		return common.NewProtocolError("lao#create: invalid organizer: %v", err)
	}

	for _, w := range c.Witnesses {
		if _, err := keys.ParsePublicKey(w); err != nil {
			return common.NewProtocolError("lao#create: invalid witness: %v", err)
		}
	}

	expected, err := LaoID(c.Organizer, c.Creation, c.Name)
	if err != nil {
		return common.NewProtocolError("lao#create: %v", err)
	}

	if c.ID != expected {
		return common.NewProtocolError("lao#create: id %s does not match its content", c.ID)
	}

	if orgID != "" && orgID != c.ID {
		return common.NewProtocolError("lao#create: id %s does not belong to organization %s", c.ID, orgID)
	}

	return nil
}
