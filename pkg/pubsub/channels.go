package pubsub

import "strings"

// BroadcastChannel carries persisted chat messages to every server instance.
const BroadcastChannel = "chat:broadcast"

// Event types carried on the broadcast channel.
const (
	EventChatMessage = "chat_message"
)

// topicName maps a channel onto a Kafka topic name: "chat:broadcast"
// becomes "chat-broadcast".
func topicName(channel string) string {
	return strings.ReplaceAll(channel, ":", "-")
}
