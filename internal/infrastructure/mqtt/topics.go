package mqtt

import (
	"strings"
)

// DefaultPrefix is used when Topics has no prefix.
const DefaultPrefix = "boxlink"

// Topics builds the boxlink topic tree:
//
//	{prefix}/status          retained online/offline status
//	{prefix}/services        retained list of services
//	{prefix}/state/{id}      retained state of one service
//	{prefix}/set/{id}        inbound state changes for one service
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Status returns the status topic.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// Services returns the topic carrying the service list.
func (t Topics) Services() string {
	return t.prefix() + "/services"
}

// ServiceState returns the state topic for a service.
func (t Topics) ServiceState(id string) string {
	return t.prefix() + "/state/" + Segment(id)
}

// ServiceSet returns the inbound topic for a service.
func (t Topics) ServiceSet(id string) string {
	return t.prefix() + "/set/" + Segment(id)
}

// AllServiceSets matches the inbound topic of every service.
func (t Topics) AllServiceSets() string {
	return t.prefix() + "/set/+"
}

// ServiceIDFromSet extracts the id from a topic built by ServiceSet.
func (t Topics) ServiceIDFromSet(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, t.prefix()+"/set/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Segment makes s usable as a single topic level: separators and wildcards
// become underscores.
func Segment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, s)
}
