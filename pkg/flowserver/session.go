package flowserver

import (
	"context"
	"log"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sudorandom/flow-map/pkg/flowengine"
)

const (
	maxCommandSize = 4096
	statusInterval = 250 * time.Millisecond

	defaultSessionWidth  = 1280
	defaultSessionHeight = 720
)

// session is one connected viewer: its own controller and dashboard drawing
// onto a shadow scene that mirrors the client's.
type session struct {
	out  *wsConn
	host *flowengine.SceneHost
	dash *flowengine.Dashboard
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !s.beginSession() {
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "server is shutting down"})
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[session] Upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxCommandSize)

	width := queryInt(r, "w", defaultSessionWidth)
	height := queryInt(r, "h", defaultSessionHeight)
	location := r.URL.Query().Get("location")
	log.Printf("[session] %s connected (%dx%d, location=%q)", r.RemoteAddr, width, height, location)

	sess := &session{
		out:  newWSConn(conn),
		host: flowengine.NewSceneHost(width, height),
	}
	ctrl := flowengine.NewController(s.mapConfig)
	sess.dash = flowengine.NewDashboard(s.source, ctrl)
	ctrl.AttachContainer(NewRemoteContainer(sess.host, sess.out))

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	go sess.pushStatus(ctx)

	if location == "" {
		sess.dash.NextLocation()
	} else {
		sess.dash.SelectAsync(location)
	}

	err = sess.readCommands(conn)
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		log.Printf("[session] %s read error: %v", r.RemoteAddr, err)
	}
	cancel()
	sess.dash.Close()
	log.Printf("[session] %s disconnected", r.RemoteAddr)
}

func (s *session) readCommands(conn *websocket.Conn) error {
	for {
		var cmd flowengine.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return err
		}
		s.apply(cmd)
	}
}

func (s *session) apply(cmd flowengine.Command) {
	switch cmd.Type {
	case flowengine.CmdSelectLocation:
		s.dash.SelectAsync(cmd.Location)
	case flowengine.CmdNextLocation:
		s.dash.NextLocation()
	case flowengine.CmdSetTileStyle:
		_ = s.dash.SetTileStyle(cmd.TileStyle)
	case flowengine.CmdNextTileStyle:
		s.dash.NextTileStyle()
	case flowengine.CmdSetZoom:
		s.dash.SetZoom(cmd.Zoom)
	case flowengine.CmdRetry:
		s.dash.Retry()
	case flowengine.CmdResize:
		if cmd.Width > 0 && cmd.Height > 0 {
			s.host.Resize(cmd.Width, cmd.Height)
			s.dash.Resize(cmd.Width, cmd.Height)
		}
	default:
		log.Printf("[session] Ignoring unknown command %q", cmd.Type)
	}
}

// pushStatus sends the dashboard status and the drawn destinations whenever
// either changes.
func (s *session) pushStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	var (
		sent      bool
		lastState flowengine.WireStatus
		lastDests []flowengine.DestinationPoint
	)
	for {
		st := s.dash.Status().Wire()
		if !sent || st != lastState {
			if err := s.out.Send(flowengine.Op{Type: flowengine.OpStatus, Status: &st}); err != nil {
				return
			}
			lastState, sent = st, true
		}
		dests := s.dash.Destinations()
		if !slices.Equal(dests, lastDests) {
			if err := s.out.Send(flowengine.Op{Type: flowengine.OpDestinations, Destinations: dests}); err != nil {
				return
			}
			lastDests = dests
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
