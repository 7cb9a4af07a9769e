package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:    "missing broker",
			config:  &Config{ClientID: "alpaca"},
			wantErr: true,
		},
		{
			name: "valid config",
			config: &Config{
				BrokerURL:            "tcp://localhost:1883",
				ClientID:             "alpaca-server",
				KeepAlive:            30 * time.Second,
				ConnectTimeout:       5 * time.Second,
				AutoReconnect:        true,
				MaxReconnectInterval: 1 * time.Minute,
				StatusTopic:          ServerStatusTopic(""),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config, logger)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client)
			assert.NotNil(t, client.client)
			assert.Equal(t, 5*time.Second, client.config.OperationTimeout)
		})
	}
}

func TestClientRequiresConnection(t *testing.T) {
	client, err := NewClient(&Config{
		BrokerURL: "tcp://localhost:1883",
		ClientID:  "alpaca-server",
	}, nil)
	require.NoError(t, err)

	assert.False(t, client.IsConnected())
	assert.ErrorIs(t, client.Publish("bigskies/alpaca/dome/0/event/shutterstatus", 0, false, []byte("1")), ErrNotConnected)
	assert.ErrorIs(t, client.PublishJSON("t", 0, false, map[string]int{"a": 1}), ErrNotConnected)
	assert.ErrorIs(t, client.Subscribe("t", 0, func(string, []byte) error { return nil }), ErrNotConnected)
	assert.ErrorIs(t, client.Unsubscribe("t"), ErrNotConnected)
}

func TestTopics(t *testing.T) {
	t.Run("device topics", func(t *testing.T) {
		assert.Equal(t, "bigskies/alpaca/dome/0/event/shutterstatus", DeviceEventTopic("", "Dome", 0, "shutterstatus"))
		assert.Equal(t, "obs/alpaca/safetymonitor/1/req/issafe", DriverRequestTopic("obs/", "safetymonitor", 1, "issafe"))
		assert.Equal(t, "obs/alpaca/dome/2/resp", DriverResponseTopic("obs", "dome", 2))
	})

	t.Run("server topics", func(t *testing.T) {
		assert.Equal(t, "bigskies/alpaca/server/health", ServerHealthTopic(""))
		assert.Equal(t, "bigskies/alpaca/server/status", ServerStatusTopic(""))
	})

	t.Run("parses device topic", func(t *testing.T) {
		dt, err := ParseDeviceTopic("obs", "obs/alpaca/dome/3/req/openshutter")
		require.NoError(t, err)
		assert.Equal(t, &DeviceTopic{DeviceType: "dome", DeviceNumber: 3, Action: ActionRequest, Resource: "openshutter"}, dt)
	})

	t.Run("rejects foreign and server topics", func(t *testing.T) {
		for _, topic := range []string{
			"other/alpaca/dome/0/resp",
			"bigskies/alpaca/server/health",
			"bigskies/alpaca/dome/x/resp",
			"bigskies/alpaca/dome",
		} {
			_, err := ParseDeviceTopic("", topic)
			assert.Error(t, err, topic)
		}
	})

	t.Run("validates publish topics", func(t *testing.T) {
		assert.NoError(t, ValidatePublishTopic("bigskies/alpaca/dome/0/resp"))
		assert.Error(t, ValidatePublishTopic(""))
		assert.Error(t, ValidatePublishTopic("bigskies/alpaca/+/0/resp"))
	})
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(MessageTypeEvent, "dome-0", map[string]string{"property": "slewing"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, MessageTypeEvent, msg.Type)

	var payload map[string]string
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.Equal(t, "slewing", payload["property"])
}
