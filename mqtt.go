package wxmatrix

// MQTT binding of the command channel and the state broadcast.  Commands
// arriving on the broker's goroutines are queued to the station, states are
// taken from the fanout and published retained.  Other publishers share the
// connection through PublishMessage.

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/TeamNorCal/wxmatrix/model"
)

const mqttTimeout = 2 * time.Second

// MQTTBridge connects a station to an MQTT broker
type MQTTBridge struct {
	base    string
	station *Station
	client  mqtt.Client

	last    *model.StatePayload
	lastMtx sync.Mutex

	// hooks run after every connection, they are registered before Start
	hooks []func()
}

// NewMQTTBridge prepares a bridge for broker, for example tcp://localhost:1883.
// Topics are rooted at base.
func NewMQTTBridge(broker string, clientID string, base string, station *Station) (b *MQTTBridge) {
	b = &MQTTBridge{
		base:    strings.TrimSuffix(base, "/"),
		station: station,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, errGo error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", errGo.Error())
		})

	b.client = mqtt.NewClient(opts)
	return b
}

// StateTopic carries the retained display state
func (b *MQTTBridge) StateTopic() string {
	return b.base + "/matrix/state"
}

// CommandTopic receives command documents
func (b *MQTTBridge) CommandTopic() string {
	return b.base + "/matrix/cmd"
}

// OnConnect registers fn to run after each connection and reconnection, it
// must not block
func (b *MQTTBridge) OnConnect(fn func()) {
	b.hooks = append(b.hooks, fn)
}

// Connected is true while the broker connection is up
func (b *MQTTBridge) Connected() bool {
	return b.client.IsConnectionOpen()
}

// onConnect runs on every connection, including reconnections, as the broker
// may have lost the subscription and the retained state
func (b *MQTTBridge) onConnect(c mqtt.Client) {
	token := c.Subscribe(b.CommandTopic(), 1, b.onCommand)
	if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
		logger.Warn("mqtt subscribe failed", "topic", b.CommandTopic(), "error", token.Error().Error())
	}
	logger.Info("mqtt connected", "topic", b.CommandTopic())

	b.lastMtx.Lock()
	last := b.last
	b.lastMtx.Unlock()
	if last != nil {
		if err := b.publish(*last); err != nil {
			logger.Warn("mqtt state not republished", "error", err.Error())
		}
	}

	for _, hook := range b.hooks {
		hook()
	}
}

func (b *MQTTBridge) onCommand(_ mqtt.Client, msg mqtt.Message) {
	payload := append([]byte{}, msg.Payload()...)
	b.station.Enqueue(func(d *Display) {
		d.HandleCommand(payload)
	})
}

func (b *MQTTBridge) publish(state model.StatePayload) (err errors.Error) {
	body, errGo := json.Marshal(state)
	if errGo != nil {
		return errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
	}
	return b.PublishMessage(b.StateTopic(), body, true)
}

// PublishMessage sends payload at QoS 1 and waits for the broker to take it
func (b *MQTTBridge) PublishMessage(topic string, payload []byte, retained bool) (err errors.Error) {
	token := b.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return errors.New("mqtt publish timed out").With("topic", topic).With("stack", stack.Trace().TrimRuntime())
	}
	if errGo := token.Error(); errGo != nil {
		return errors.Wrap(errGo).With("topic", topic).With("stack", stack.Trace().TrimRuntime())
	}
	return nil
}

// Start connects to the broker and publishes every state the fanout relays
// until quitC is closed
func (b *MQTTBridge) Start(fanout *Fanout, errorC chan<- errors.Error, quitC <-chan struct{}) {
	// With connection retries enabled the token only completes once connected
	b.client.Connect()

	statesC := make(chan model.StatePayload, 1)
	fanout.Subscribe(statesC)

	go func() {
		defer b.client.Disconnect(250)

		for {
			select {
			case state := <-statesC:
				b.lastMtx.Lock()
				b.last = &state
				b.lastMtx.Unlock()

				if !b.client.IsConnectionOpen() {
					continue
				}
				if err := b.publish(state); err != nil {
					select {
					case errorC <- err:
					case <-time.After(500 * time.Millisecond):
						logger.Warn("could not send error for mqtt publish", "error", err.Error())
					}
				}
			case <-quitC:
				return
			}
		}
	}()
}
