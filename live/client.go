package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Client is the broker connection shared by the live subscriber and the
// relay publisher (MQTT or Kafka).
type Client struct {
	mu       sync.RWMutex
	cfg      config.LiveConfig
	backend  string
	mqttConn mqtt.Client
	kafkaW   *kafkago.Writer
	kafkaR   *kafkago.Reader
	cancel   context.CancelFunc

	onConnect    func()
	onDisconnect func(error)
}

// NewClient creates a broker client for cfg.Backend ("mqtt" or "kafka").
func NewClient(cfg config.LiveConfig) *Client {
	return &Client{
		cfg:     cfg,
		backend: cfg.Backend,
	}
}

// Backend returns the configured broker type.
func (c *Client) Backend() string { return c.backend }

// OnConnectionChange registers callbacks for broker connect and loss. Only
// MQTT reports these; Kafka is connectionless from the client's view.
func (c *Client) OnConnectionChange(connected func(), lost func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = connected
	c.onDisconnect = lost
}

// Connect establishes the broker connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case BackendMQTT:
		return c.connectMQTT()
	case BackendKafka:
		return c.connectKafka()
	default:
		return fmt.Errorf("unknown live backend: %s", c.backend)
	}
}

func (c *Client) connectMQTT() error {
	clientID := c.cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "hexapod-" + uuid.NewString()[:8]
	}
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("live: mqtt connected to %s", broker)
			if fn := c.connectHook(); fn != nil {
				fn()
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("live: mqtt connection lost: %v", err)
			if fn := c.lostHook(); fn != nil {
				fn(err)
			}
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	return nil
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}
	c.kafkaW = &kafkago.Writer{
		Addr:         kafkago.TCP(c.cfg.Kafka.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return nil
}

func (c *Client) connectHook() func() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onConnect
}

func (c *Client) lostHook() func(error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onDisconnect
}

// Publish sends a payload to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.backend {
	case BackendMQTT:
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		token.Wait()
		return token.Error()
	case BackendKafka:
		if c.kafkaW == nil {
			return fmt.Errorf("kafka writer not initialized")
		}
		return c.kafkaW.WriteMessages(ctx, kafkago.Message{
			Topic: topic,
			Value: payload,
		})
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// Subscribe registers a handler for messages on topic.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case BackendMQTT:
		if c.mqttConn == nil {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Payload())
		})
		token.Wait()
		return token.Error()
	case BackendKafka:
		groupID := c.cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "hexapod-server"
		}
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: groupID,
		})
		ctx, cancel := context.WithCancel(context.Background())
		c.kafkaR = reader
		c.cancel = cancel
		go func() {
			for {
				msg, err := reader.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("live: kafka read: %v", err)
					}
					return
				}
				handler(msg.Value)
			}
		}()
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// IsConnected returns whether the broker client is usable.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.backend {
	case BackendMQTT:
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case BackendKafka:
		return c.kafkaW != nil
	default:
		return false
	}
}

// Close shuts down the broker connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
	if c.kafkaR != nil {
		c.kafkaR.Close()
		c.kafkaR = nil
	}
}
