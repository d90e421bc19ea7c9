// Package mqttjson carries square calls over MQTT as JSON envelopes.
//
// A request published to <prefix>/<serverID>/request/<callID> is answered on
// <prefix>/<serverID>/response/<callID>.
package mqttjson

import (
	"path"
	"strings"

	"github.com/xizhibei/go-square-rpc/envelope"
)

type (
	// Request is the envelope published on a request topic.
	Request = envelope.Request
	// Response is the envelope published on a response topic.
	Response = envelope.Response
)

// RequestTopic is the topic filter a server with serverID listens on.
func RequestTopic(topicPrefix, serverID string) string {
	return path.Join(topicPrefix, serverID, "request", "+")
}

// CallTopics returns the request and response topics of a single call.
func CallTopics(topicPrefix, serverID, callID string) (request, response string) {
	return path.Join(topicPrefix, serverID, "request", callID),
		path.Join(topicPrefix, serverID, "response", callID)
}

// replyTopic turns .../request/<callID> into .../response/<callID>.
func replyTopic(topic string) string {
	dir, callID := path.Split(topic)
	return strings.TrimSuffix(dir, "request/") + "response/" + callID
}
