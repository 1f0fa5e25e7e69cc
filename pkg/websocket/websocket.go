package websocketPkg

import (
	"HandwritingRecognizer/pkg/ctc"
	"HandwritingRecognizer/pkg/model"
	"HandwritingRecognizer/pkg/preprocess"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// IWebsocket is a recognition model hosted behind a websocket. One request is in
// flight per connection.
type IWebsocket interface {
	model.IModel
	IsConnected() bool
	Reconnect() error
}

type tensorMessage struct {
	Shape []int64   `json:"shape"`
	Data  []float32 `json:"data"`
	Error string    `json:"error,omitempty"`
}

type webSocketClient struct {
	url          string
	conn         *websocket.Conn
	mu           sync.Mutex
	inflight     sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	log          *logrus.Logger
}

func NewModelClient(url string, log *logrus.Logger) IWebsocket {
	client := &webSocketClient{
		url:          url,
		pingInterval: 30 * time.Second,
		readTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
		log:          log,
	}

	go client.connectInBackground()

	return client
}

func (c *webSocketClient) connectInBackground() {
	if _, err := c.ensureConnection(); err != nil {
		c.log.Warnf("Initial connection to model service failed: %v. Will retry on demand.", err)
	} else {
		c.log.Infof("Successfully connected to model service at %s", c.url)
	}
}

func (c *webSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Reconnect drops the current connection, if any, and dials again.
func (c *webSocketClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	return c.dialLocked()
}

func (c *webSocketClient) ensureConnection() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(); err != nil {
			return nil, err
		}
	}

	return c.conn, nil
}

func (c *webSocketClient) dialLocked() error {
	if c.url == "" {
		return fmt.Errorf("URL for model service not configured")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

func (c *webSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *webSocketClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Ping to model service failed, marking connection as dead: %v", err)
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

func (c *webSocketClient) drop(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

func (c *webSocketClient) Infer(ctx context.Context, tensor *preprocess.Tensor) (ctc.Matrix, error) {
	c.inflight.Lock()
	defer c.inflight.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := c.ensureConnection()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnavailable, err)
	}

	payload, err := json.Marshal(tensorMessage{Shape: tensor.BatchShape(), Data: tensor.Data})
	if err != nil {
		return nil, fmt.Errorf("encode tensor: %w", err)
	}

	writeDeadline := time.Now().Add(c.writeTimeout)
	readDeadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok {
		if d.Before(writeDeadline) {
			writeDeadline = d
		}
		if d.Before(readDeadline) {
			readDeadline = d
		}
	}

	c.mu.Lock()
	conn.SetWriteDeadline(writeDeadline)
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.mu.Unlock()
	if err != nil {
		c.drop(conn)
		return nil, fmt.Errorf("%w: error sending tensor: %v", model.ErrUnavailable, err)
	}

	conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.drop(conn)
		return nil, fmt.Errorf("%w: error reading prediction: %v", model.ErrUnavailable, err)
	}
	conn.SetReadDeadline(time.Time{})

	var result tensorMessage
	if err := json.Unmarshal(message, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling prediction: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", model.ErrUnavailable, result.Error)
	}

	return model.Unbatch(result.Data, result.Shape)
}
