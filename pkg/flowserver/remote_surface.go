package flowserver

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sudorandom/flow-map/pkg/flowengine"
)

const writeWait = 10 * time.Second

var ErrConnClosed = errors.New("session connection closed")

// OpSender delivers surface ops to a client.
type OpSender interface {
	Send(op flowengine.Op) error
}

// wsConn serializes writes to a websocket. After the first failed write it
// drops everything quietly.
type wsConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	broken bool
}

func newWSConn(conn *websocket.Conn) *wsConn { return &wsConn{conn: conn} }

func (c *wsConn) Send(op flowengine.Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return ErrConnClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(op); err != nil {
		c.broken = true
		log.Printf("[session] Write error, dropping further ops: %v", err)
		return ErrConnClosed
	}
	return nil
}

// RemoteContainer mounts a shadow scene on the server for every map the
// controller creates and tells the client to mount its own.
type RemoteContainer struct {
	host *flowengine.SceneHost
	out  OpSender
}

func NewRemoteContainer(host *flowengine.SceneHost, out OpSender) *RemoteContainer {
	return &RemoteContainer{host: host, out: out}
}

func (c *RemoteContainer) Mount() (flowengine.Surface, error) {
	shadow := c.host.MountScene()
	if err := c.out.Send(flowengine.Op{Type: flowengine.OpMount}); err != nil {
		_ = shadow.Release()
		return nil, err
	}
	return &RemoteSurface{shadow: shadow, out: c.out}, nil
}

// RemoteSurface applies every mutation to its shadow scene and forwards it.
// Layer IDs on the wire are the shadow's. View fitting runs against the
// shadow so the client receives a finished viewport.
type RemoteSurface struct {
	shadow *flowengine.Scene
	out    OpSender
}

func (s *RemoteSurface) AddLayer(l flowengine.Layer) (flowengine.LayerID, error) {
	id, err := s.shadow.AddLayer(l)
	if err != nil {
		return 0, err
	}
	if err := s.out.Send(flowengine.Op{Type: flowengine.OpAddLayer, ID: id, Layer: &l}); err != nil {
		s.shadow.RemoveLayer(id)
		return 0, err
	}
	return id, nil
}

func (s *RemoteSurface) RemoveLayer(id flowengine.LayerID) {
	s.shadow.RemoveLayer(id)
	_ = s.out.Send(flowengine.Op{Type: flowengine.OpRemoveLayer, ID: id})
}

func (s *RemoteSurface) SetDash(id flowengine.LayerID, length, offset float64) {
	s.shadow.SetDash(id, length, offset)
	_ = s.out.Send(flowengine.Op{Type: flowengine.OpSetDash, ID: id, Length: length, Offset: offset})
}

func (s *RemoteSurface) SetMarkerStyle(id flowengine.LayerID, radius, opacity float64) {
	s.shadow.SetMarkerStyle(id, radius, opacity)
	_ = s.out.Send(flowengine.Op{Type: flowengine.OpSetMarkerStyle, ID: id, Radius: radius, Opacity: opacity})
}

func (s *RemoteSurface) SetView(center flowengine.GeoPoint, zoom float64) {
	s.shadow.SetView(center, zoom)
	s.sendView()
}

func (s *RemoteSurface) FitBounds(b flowengine.Bounds, padding float64) error {
	if err := s.shadow.FitBounds(b, padding); err != nil {
		return err
	}
	s.sendView()
	return nil
}

func (s *RemoteSurface) sendView() {
	vp := s.shadow.Viewport()
	_ = s.out.Send(flowengine.Op{Type: flowengine.OpSetView, Viewport: &vp})
}

func (s *RemoteSurface) Invalidate() {
	s.shadow.Invalidate()
	_ = s.out.Send(flowengine.Op{Type: flowengine.OpInvalidate})
}

func (s *RemoteSurface) Release() error {
	if err := s.shadow.Release(); err != nil {
		return err
	}
	_ = s.out.Send(flowengine.Op{Type: flowengine.OpRelease})
	return nil
}
