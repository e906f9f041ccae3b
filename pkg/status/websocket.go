package status

import (
	"strings"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

// streamBuffer is how many frames a slow websocket client may lag.
const streamBuffer = 16

// frameConn sends encoded frames: binary for protobuf, text otherwise.
type frameConn struct {
	conn  *websocket.Conn
	codec telemetry.Codec
}

func (c *frameConn) WriteFrame(f telemetry.Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}
	if c.codec.Name() == (telemetry.JSONCodec{}).Name() {
		return websocket.Message.Send(c.conn, string(data))
	}
	return websocket.Message.Send(c.conn, data)
}

// ReadText receives one text message.
func (c *frameConn) ReadText() (string, error) {
	var msg string
	err := websocket.Message.Receive(c.conn, &msg)
	return strings.TrimSpace(msg), err
}

func (s *Server) codec() telemetry.Codec {
	if s.Codec != nil {
		return s.Codec
	}
	return telemetry.JSONCodec{}
}

// telemetryHandler streams frames to the client. Text messages from the
// client are parsed as commands.
// The handshake accepts any origin so command line tools can connect.
func (s *Server) telemetryHandler() websocket.Server {
	return websocket.Server{Handler: func(ws *websocket.Conn) {
		defer ws.Close()
		conn := &frameConn{conn: ws, codec: s.codec()}
		frames, unsubscribe := s.Hub.Subscribe(streamBuffer)
		defer unsubscribe()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				msg, err := conn.ReadText()
				if err != nil {
					return
				}
				cmd, err := brain.ParseCommand(msg)
				if err != nil {
					glog.Warningf("status: telemetry client %s: %v", ws.Request().RemoteAddr, err)
					continue
				}
				if s.Commands == nil {
					continue
				}
				if err := s.Commands.Put(cmd); err != nil {
					glog.Warningf("status: drop command %s: %v", cmd, err)
				}
			}
		}()

		glog.V(1).Infof("status: telemetry client %s connected", ws.Request().RemoteAddr)
		for {
			select {
			case <-closed:
				return
			case f := <-frames:
				if err := conn.WriteFrame(f); err != nil {
					glog.V(1).Infof("status: telemetry client %s: %v", ws.Request().RemoteAddr, err)
					return
				}
			}
		}
	}}
}
