package flowengine

import (
	"errors"
	"time"
)

// OpType names a surface mutation sent from a server session to a client.
type OpType string

const (
	OpMount          OpType = "mount"
	OpAddLayer       OpType = "addLayer"
	OpRemoveLayer    OpType = "removeLayer"
	OpSetDash        OpType = "setDash"
	OpSetMarkerStyle OpType = "setMarkerStyle"
	OpSetView        OpType = "setView"
	OpInvalidate     OpType = "invalidate"
	OpRelease        OpType = "release"
	OpStatus         OpType = "status"
	OpDestinations   OpType = "destinations"
)

// Op is one server → client message. Layer IDs are the server's.
type Op struct {
	Type         OpType             `json:"type"`
	ID           LayerID            `json:"id,omitempty"`
	Layer        *Layer             `json:"layer,omitempty"`
	Length       float64            `json:"length,omitempty"`
	Offset       float64            `json:"offset,omitempty"`
	Radius       float64            `json:"radius,omitempty"`
	Opacity      float64            `json:"opacity,omitempty"`
	Viewport     *Viewport          `json:"viewport,omitempty"`
	Status       *WireStatus        `json:"status,omitempty"`
	Destinations []DestinationPoint `json:"destinations,omitempty"`
}

// CommandType names a client → server request.
type CommandType string

const (
	CmdSelectLocation CommandType = "selectLocation"
	CmdNextLocation   CommandType = "nextLocation"
	CmdSetTileStyle   CommandType = "setTileStyle"
	CmdNextTileStyle  CommandType = "nextTileStyle"
	CmdSetZoom        CommandType = "setZoom"
	CmdRetry          CommandType = "retry"
	CmdResize         CommandType = "resize"
)

type Command struct {
	Type      CommandType `json:"type"`
	Location  string      `json:"location,omitempty"`
	TileStyle string      `json:"tileStyle,omitempty"`
	Zoom      float64     `json:"zoom,omitempty"`
	Width     int         `json:"width,omitempty"`
	Height    int         `json:"height,omitempty"`
}

// WireStatus is Status with the error flattened to text.
type WireStatus struct {
	Location    string    `json:"location"`
	DisplayName string    `json:"displayName"`
	Loading     bool      `json:"loading"`
	Fallback    bool      `json:"fallback"`
	Error       string    `json:"error,omitempty"`
	RowsTotal   int       `json:"rowsTotal"`
	RowsKept    int       `json:"rowsKept"`
	TileStyle   string    `json:"tileStyle"`
	Zoom        float64   `json:"zoom"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (s Status) Wire() WireStatus {
	w := WireStatus{
		Location:    s.Location,
		DisplayName: s.DisplayName,
		Loading:     s.Loading,
		Fallback:    s.Fallback,
		RowsTotal:   s.RowsTotal,
		RowsKept:    s.RowsKept,
		TileStyle:   s.TileStyle,
		Zoom:        s.Zoom,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Err != nil {
		w.Error = s.Err.Error()
	}
	return w
}

func (w WireStatus) Status() Status {
	s := Status{
		Location:    w.Location,
		DisplayName: w.DisplayName,
		Loading:     w.Loading,
		Fallback:    w.Fallback,
		RowsTotal:   w.RowsTotal,
		RowsKept:    w.RowsKept,
		TileStyle:   w.TileStyle,
		Zoom:        w.Zoom,
		UpdatedAt:   w.UpdatedAt,
	}
	if w.Error != "" {
		s.Err = errors.New(w.Error)
	}
	return s
}
