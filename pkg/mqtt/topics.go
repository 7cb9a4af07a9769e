package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic layout for Alpaca server traffic:
//
//	{prefix}/alpaca/{device_type}/{device_number}/event/{property}
//	{prefix}/alpaca/{device_type}/{device_number}/req/{hook}
//	{prefix}/alpaca/{device_type}/{device_number}/resp
//	{prefix}/alpaca/server/{health|status}
const (
	// DefaultTopicPrefix is the root prefix used when none is configured.
	DefaultTopicPrefix = "bigskies"

	// Namespace separates Alpaca traffic from other framework topics.
	Namespace = "alpaca"

	ActionEvent    = "event"
	ActionRequest  = "req"
	ActionResponse = "resp"
	ActionHealth   = "health"
	ActionStatus   = "status"

	serverSegment = "server"
)

// TopicBuilder helps construct topic strings following conventions.
type TopicBuilder struct {
	parts []string
}

// NewTopicBuilder starts a topic under prefix/alpaca. An empty prefix
// selects DefaultTopicPrefix.
func NewTopicBuilder(prefix string) *TopicBuilder {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &TopicBuilder{parts: []string{strings.TrimSuffix(prefix, "/"), Namespace}}
}

// Device adds the device type and number segments.
func (tb *TopicBuilder) Device(deviceType string, number int) *TopicBuilder {
	tb.parts = append(tb.parts, strings.ToLower(deviceType), strconv.Itoa(number))
	return tb
}

// Server adds the server segment.
func (tb *TopicBuilder) Server() *TopicBuilder {
	tb.parts = append(tb.parts, serverSegment)
	return tb
}

// Segment appends a raw segment.
func (tb *TopicBuilder) Segment(s string) *TopicBuilder {
	tb.parts = append(tb.parts, s)
	return tb
}

// Build constructs the final topic string.
func (tb *TopicBuilder) Build() string {
	return strings.Join(tb.parts, "/")
}

// DeviceEventTopic is where state changes of one device property are published.
func DeviceEventTopic(prefix, deviceType string, number int, property string) string {
	return NewTopicBuilder(prefix).Device(deviceType, number).Segment(ActionEvent).Segment(property).Build()
}

// DriverRequestTopic carries hook invocations to remote firmware.
func DriverRequestTopic(prefix, deviceType string, number int, hook string) string {
	return NewTopicBuilder(prefix).Device(deviceType, number).Segment(ActionRequest).Segment(hook).Build()
}

// DriverResponseTopic carries hook results back from remote firmware.
func DriverResponseTopic(prefix, deviceType string, number int) string {
	return NewTopicBuilder(prefix).Device(deviceType, number).Segment(ActionResponse).Build()
}

// ServerHealthTopic receives periodic health reports.
func ServerHealthTopic(prefix string) string {
	return NewTopicBuilder(prefix).Server().Segment(ActionHealth).Build()
}

// ServerStatusTopic holds the retained online/offline availability flag.
func ServerStatusTopic(prefix string) string {
	return NewTopicBuilder(prefix).Server().Segment(ActionStatus).Build()
}

// DeviceTopic is the parsed form of a device topic.
type DeviceTopic struct {
	DeviceType   string
	DeviceNumber int
	Action       string
	Resource     string
}

// ParseDeviceTopic splits a device topic built by this package.
func ParseDeviceTopic(prefix, topic string) (*DeviceTopic, error) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	root := strings.TrimSuffix(prefix, "/") + "/" + Namespace + "/"
	if !strings.HasPrefix(topic, root) {
		return nil, fmt.Errorf("invalid topic %q: must start with %s", topic, root)
	}
	parts := strings.Split(strings.TrimPrefix(topic, root), "/")
	if len(parts) < 3 || parts[0] == serverSegment {
		return nil, fmt.Errorf("invalid device topic %q", topic)
	}
	number, err := strconv.Atoi(parts[1])
	if err != nil || number < 0 {
		return nil, fmt.Errorf("invalid device number in topic %q", topic)
	}

	dt := &DeviceTopic{DeviceType: parts[0], DeviceNumber: number, Action: parts[2]}
	if len(parts) > 3 {
		dt.Resource = strings.Join(parts[3:], "/")
	}
	return dt, nil
}

// ValidatePublishTopic rejects topics that are empty or contain wildcards.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("topic %q contains wildcards", topic)
	}
	return nil
}
