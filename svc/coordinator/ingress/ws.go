package ingress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/clients"

	"github.com/fxamacker/cbor/v2"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"
)

type WSClient struct {
	id         uint16
	host       string
	agent      string
	events     chan clients.Event
	disconnect chan bool
	send       chan []byte
	closeSlow  func()
	session    context.Context
	cancel     context.CancelFunc
}

func NewWSClient() *WSClient {
	return &WSClient{
		events:     make(chan clients.Event, clients.CLIENT_MESSAGE_LIMIT),
		send:       make(chan []byte, clients.CLIENT_MESSAGE_LIMIT),
		disconnect: make(chan bool, 1),
	}
}

func (c *WSClient) Id() uint16 {
	return c.id
}

func (c *WSClient) SetId(id uint16) {
	c.id = id
}

func (c *WSClient) Host() string {
	return c.host
}

func (c *WSClient) Agent() string {
	return c.agent
}

func (c *WSClient) Reference() string {
	return fmt.Sprintf("ws:%d", c.id)
}

func (c *WSClient) Send(message interface{}) error {
	bytes, err := cbor.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.send <- bytes:
		return nil
	default:
		go c.closeSlow()
		return fmt.Errorf("client %d too slow", c.id)
	}
}

func (c *WSClient) ReceiveEvents() <-chan clients.Event {
	return c.events
}

func (c *WSClient) ReceiveDisconnect() <-chan bool {
	return c.disconnect
}

func (c *WSClient) SessionContext() context.Context {
	return c.session
}

func (c *WSClient) Disconnect(reason string) {
	c.cancel()
}

type WSIngress struct {
	manager    *clients.Manager
	clients    map[*WSClient]struct{}
	mutex      deadlock.Mutex
	httpServer *http.Server
}

func NewWSIngress(manager *clients.Manager) *WSIngress {
	return &WSIngress{
		manager: manager,
		clients: make(map[*WSClient]struct{}),
	}
}

func WriteTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageBinary, msg)
}

func (server *WSIngress) AddClient(s *WSClient) {
	server.mutex.Lock()
	server.clients[s] = struct{}{}
	server.mutex.Unlock()
}

func (server *WSIngress) RemoveClient(client *WSClient) {
	server.mutex.Lock()
	delete(server.clients, client)
	server.mutex.Unlock()
}

func (server *WSIngress) HandleClient(ctx context.Context, c *websocket.Conn, host string, agent string) error {
	client := NewWSClient()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	client.session = sessionCtx
	client.cancel = cancel
	client.host = host
	client.agent = agent
	client.closeSlow = func() {
		c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
	}

	err := server.manager.AddClient(client)
	if err != nil {
		log.Error().Err(err).Msg("failed to accept ws client")
		return err
	}

	server.AddClient(client)
	defer server.RemoveClient(client)
	defer server.manager.RemoveClient(client)

	logger := log.With().Uint16("clientId", client.id).Str("host", host).Logger()
	if ua := useragent.Parse(agent); ua.Name != "" {
		logger = logger.With().Str("browser", ua.Name).Logger()
	}

	logger.Info().Msg("client joined")

	receive := make(chan []byte)

	go func() {
		for {
			if sessionCtx.Err() != nil {
				return
			}

			typ, message, err := c.Read(sessionCtx)
			if err != nil {
				select {
				case client.disconnect <- true:
				default:
				}
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			receive <- message
		}
	}()

	for {
		select {
		case msg := <-receive:
			var generic protocol.GenericMessage
			if err := cbor.Unmarshal(msg, &generic); err != nil {
				logger.Debug().Err(err).Msg("dropping undecodable message")
				continue
			}

			client.events <- clients.Event{
				Op:   generic.Op,
				Data: msg,
			}
		case msg := <-client.send:
			err := WriteTimeout(sessionCtx, time.Second*5, c, msg)
			if err != nil {
				logger.Error().Msg("client missed write timeout; disconnecting")
				return err
			}
		case <-sessionCtx.Done():
			logger.Info().Msg("client left")
			return sessionCtx.Err()
		}
	}
}

func (server *WSIngress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})

	if err != nil {
		log.Error().Err(err).Msg("error accepting client connection")
		return
	}

	defer c.Close(websocket.StatusInternalError, "operational fault during relay")

	// We use nginx for ingress everywhere, so check this first
	hostname := r.RemoteAddr

	original, ok := r.Header["X-Forwarded-For"]
	if ok {
		hostname = original[0]
	}

	err = server.HandleClient(r.Context(), c, hostname, r.UserAgent())
	if errors.Is(err, context.Canceled) {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to close client port")
		return
	}
}

func (server *WSIngress) Serve(ctx context.Context, port int) error {
	listen, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		log.Error().Err(err).Msg("failed to bind WebSocket port")
		return err
	}

	log.Info().Msgf("listening on http://%v", listen.Addr())

	httpServer := &http.Server{
		Handler: server,
	}

	server.httpServer = httpServer

	return httpServer.Serve(listen)
}

func (server *WSIngress) Shutdown(ctx context.Context) {
	server.httpServer.Shutdown(ctx)
}
