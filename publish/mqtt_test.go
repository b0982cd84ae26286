package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtl-ml/models"
	"rtl-ml/radio"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mqtt.Client
	connected bool
	err       error
	sent      []message
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, message{topic: topic, retain: retained, payload: payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) { c.connected = false }

func TestSavePublishesDetection(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newMQTTPublisher(client, MQTTConfig{TopicPrefix: "site1"})

	require.NoError(t, p.Save(context.Background(), models.Detection{Label: "ADS_B", Target: "adsb"}))
	require.Len(t, client.sent, 1)
	assert.Equal(t, "site1/detections/ADS_B", client.sent[0].topic)
	assert.False(t, client.sent[0].retain)

	var got models.Detection
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &got))
	assert.Equal(t, "adsb", got.Target)
}

func TestSaveReportIsRetained(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newMQTTPublisher(client, MQTTConfig{TopicPrefix: "rtl_ml"})

	report := radio.ValidationReport{
		"noise":    {Check: radio.CheckSNR},
		"NOAA_APT": {Check: radio.CheckSyncTone},
	}
	require.NoError(t, p.SaveReport(context.Background(), report))
	require.Len(t, client.sent, 2)
	assert.Equal(t, "rtl_ml/validation/NOAA_APT", client.sent[0].topic)
	assert.Equal(t, "rtl_ml/validation/noise", client.sent[1].topic)
	assert.True(t, client.sent[0].retain)
}

func TestPublishErrors(t *testing.T) {
	offline := newMQTTPublisher(&fakeClient{}, MQTTConfig{})
	assert.Error(t, offline.Save(context.Background(), models.Detection{Label: "noise"}))

	failing := newMQTTPublisher(&fakeClient{connected: true, err: errors.New("denied")}, MQTTConfig{})
	assert.Error(t, failing.Save(context.Background(), models.Detection{Label: "noise"}))
}

func TestMQTTSafe(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mqttSafe("a/b+c#d"))
}

func TestCloseDisconnects(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newMQTTPublisher(client, MQTTConfig{})
	require.NoError(t, p.Close())
	assert.False(t, client.connected)
}
