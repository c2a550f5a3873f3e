package flowserver

import (
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/sudorandom/flow-map/pkg/flowengine"
)

type opRecorder struct {
	mu  sync.Mutex
	ops []flowengine.Op
}

func (r *opRecorder) Send(op flowengine.Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	return nil
}

// since returns the ops recorded after the first n.
func (r *opRecorder) since(n int) []flowengine.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]flowengine.Op(nil), r.ops[n:]...)
}

func (r *opRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func lastView(ops []flowengine.Op) *flowengine.Viewport {
	var vp *flowengine.Viewport
	for _, op := range ops {
		if op.Type == flowengine.OpSetView {
			vp = op.Viewport
		}
	}
	return vp
}

func TestSessionResizeRefitsClient(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := &opRecorder{}
	sess := &session{host: flowengine.NewSceneHost(1280, 720)}
	ctrl := flowengine.NewController(fastMapConfig())
	sess.dash = flowengine.NewDashboard(srv.source, ctrl)
	defer sess.dash.Close()
	ctrl.AttachContainer(NewRemoteContainer(sess.host, rec))

	ds, err := srv.source.LoadDataset(t.Context(), "moda")
	if err != nil {
		t.Fatal(err)
	}
	ctrl.Load(ds.Origin, ds.Destinations)
	before := lastView(rec.since(0))
	if before == nil || before.Width != 1280 {
		t.Fatalf("initial view = %+v", before)
	}

	n := rec.len()
	sess.apply(flowengine.Command{Type: flowengine.CmdResize, Width: 400, Height: 300})
	ops := rec.since(n)

	invalidated := false
	for _, op := range ops {
		if op.Type == flowengine.OpInvalidate {
			invalidated = true
		}
	}
	if !invalidated {
		t.Error("resize was not forwarded to the client")
	}
	after := lastView(ops)
	if after == nil {
		t.Fatal("resize did not refit the view")
	}
	if after.Width != 400 || after.Height != 300 {
		t.Errorf("refit at %dx%d; want 400x300", after.Width, after.Height)
	}
	if after.Zoom >= before.Zoom {
		t.Errorf("zoom %v after shrinking; want below %v", after.Zoom, before.Zoom)
	}
}

func TestSessionRefusedAfterClose(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/session?location=moda"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("session accepted after Close")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v; want 503", resp)
	}
}
