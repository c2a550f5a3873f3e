package flowengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RemoteClient replays a server session onto a local SceneHost and forwards
// the viewer's keys back as commands.
type RemoteClient struct {
	URL  string
	host *SceneHost

	mu           sync.Mutex
	conn         *websocket.Conn
	scene        Surface
	ids          map[LayerID]LayerID
	status       Status
	destinations []DestinationPoint
}

func NewRemoteClient(rawURL string, host *SceneHost) *RemoteClient {
	return &RemoteClient{URL: rawURL, host: host, ids: make(map[LayerID]LayerID)}
}

// SessionURL adds the window size to a session URL.
func SessionURL(base, location string, width, height int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse session url: %w", err)
	}
	q := u.Query()
	if location != "" {
		q.Set("location", location)
	}
	q.Set("w", strconv.Itoa(width))
	q.Set("h", strconv.Itoa(height))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run keeps a session open until ctx is done, reconnecting with backoff.
func (c *RemoteClient) Run(ctx context.Context) {
	backoff := 1 * time.Second
	for ctx.Err() == nil {
		log.Printf("[remote] Connecting to %s", c.URL)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
		if err != nil {
			log.Printf("[remote] Dial error: %v. Retrying in %v...", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			continue
		}
		backoff = 1 * time.Second

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		if err := c.readLoop(conn); err != nil && ctx.Err() == nil {
			log.Printf("[remote] Read error: %v. Reconnecting...", err)
		}
		stop()

		c.mu.Lock()
		c.conn = nil
		c.releaseLocked()
		c.mu.Unlock()
		_ = conn.Close()
	}
}

func (c *RemoteClient) readLoop(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var op Op
		if err := json.Unmarshal(message, &op); err != nil {
			log.Printf("[remote] Ignoring malformed op: %v", err)
			continue
		}
		c.Apply(op)
	}
}

// Apply performs one op against the local scene.
func (c *RemoteClient) Apply(op Op) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch op.Type {
	case OpMount:
		c.releaseLocked()
		s, err := c.host.Mount()
		if err != nil {
			log.Printf("[remote] Mount failed: %v", err)
			return
		}
		c.scene = s
		s.Invalidate()
		return
	case OpStatus:
		if op.Status != nil {
			c.status = op.Status.Status()
		}
		return
	case OpDestinations:
		c.destinations = op.Destinations
		return
	}

	if c.scene == nil {
		return
	}
	switch op.Type {
	case OpAddLayer:
		if op.Layer == nil {
			return
		}
		id, err := c.scene.AddLayer(*op.Layer)
		if err != nil {
			log.Printf("[remote] Add layer failed: %v", err)
			return
		}
		c.ids[op.ID] = id
	case OpRemoveLayer:
		if id, ok := c.ids[op.ID]; ok {
			c.scene.RemoveLayer(id)
			delete(c.ids, op.ID)
		}
	case OpSetDash:
		if id, ok := c.ids[op.ID]; ok {
			c.scene.SetDash(id, op.Length, op.Offset)
		}
	case OpSetMarkerStyle:
		if id, ok := c.ids[op.ID]; ok {
			c.scene.SetMarkerStyle(id, op.Radius, op.Opacity)
		}
	case OpSetView:
		if op.Viewport != nil {
			c.scene.SetView(op.Viewport.Center, op.Viewport.Zoom)
		}
	case OpInvalidate:
		c.scene.Invalidate()
	case OpRelease:
		c.releaseLocked()
	}
}

func (c *RemoteClient) releaseLocked() {
	if c.scene != nil {
		_ = c.scene.Release()
		c.scene = nil
	}
	c.ids = make(map[LayerID]LayerID)
}

func (c *RemoteClient) send(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		log.Printf("[remote] Not connected, dropping %s", cmd.Type)
		return
	}
	if err := c.conn.WriteJSON(cmd); err != nil {
		log.Printf("[remote] Write error: %v", err)
	}
}

func (c *RemoteClient) NextLocation()  { c.send(Command{Type: CmdNextLocation}) }
func (c *RemoteClient) NextTileStyle() { c.send(Command{Type: CmdNextTileStyle}) }
func (c *RemoteClient) Retry()         { c.send(Command{Type: CmdRetry}) }

func (c *RemoteClient) ZoomBy(delta float64) {
	st := c.Status()
	zoom := st.Zoom + delta
	if zoom < MinZoom || zoom > MaxZoom {
		return
	}
	c.send(Command{Type: CmdSetZoom, Zoom: zoom})
}

// Resize tells the server the window changed size.
func (c *RemoteClient) Resize(width, height int) {
	c.send(Command{Type: CmdResize, Width: width, Height: height})
}

func (c *RemoteClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *RemoteClient) Destinations() []DestinationPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DestinationPoint(nil), c.destinations...)
}
