package message

import (
	"strings"

	"github.com/popstellar/popclient/src/common"
)

// RootChannel is the channel every organization is announced on.
const RootChannel Channel = "/root"

// Channel is a hierarchical topic identifier of the form /root/<id>/...
type Channel string

// String implements fmt.Stringer
func (c Channel) String() string {
	return string(c)
}

// Validate checks the channel is rooted and has no empty segment.
func (c Channel) Validate() error {
	s := string(c)

	if s != string(RootChannel) && !strings.HasPrefix(s, string(RootChannel)+"/") {
		return common.NewProtocolError("channel %q is not under %s", s, RootChannel)
	}

	for _, seg := range strings.Split(s[1:], "/") {
		if seg == "" {
			return common.NewProtocolError("channel %q has an empty segment", s)
		}
	}

	return nil
}

// Sub returns the child channel named seg.
func (c Channel) Sub(seg string) Channel {
	return Channel(string(c) + "/" + seg)
}

// OrganizationID returns the organization id embedded in the channel, which is
// the segment right after /root. The root channel itself carries none.
func (c Channel) OrganizationID() (string, bool) {
	segs := strings.Split(strings.TrimPrefix(string(c), "/"), "/")

	if len(segs) < 2 || segs[0] != "root" || segs[1] == "" {
		return "", false
	}

	return segs[1], true
}
