package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/share"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

// Topic suffixes under romi/<id>/.
const (
	TopicTelemetry = "telemetry"
	TopicCommand   = "cmd"
	TopicError     = "error"
	TopicMeta      = "meta"
)

// RobotTopic returns the topic of a robot.
func RobotTopic(robotID, suffix string) string {
	return "romi/" + robotID + "/" + suffix
}

// Meta is published retained so tools can discover robots.
type Meta struct {
	ID      string `json:"id"`
	Codec   string `json:"codec"`
	Backend string `json:"backend"`
	Online  bool   `json:"online"`
}

// Bridge connects a robot to the broker: it publishes telemetry frames and
// feeds remote commands into the brain's command queue.
type Bridge struct {
	Queue    *Queue
	Meta     Meta
	Codec    telemetry.Codec
	Commands *share.Queue[brain.Command]
	// ConnectTimeout bounds the initial connection.
	ConnectTimeout time.Duration
}

// NewBridge creates a bridge. Commands may be nil for a telemetry-only
// bridge.
func NewBridge(q *Queue, meta Meta, codec telemetry.Codec, commands *share.Queue[brain.Command]) *Bridge {
	meta.Codec = codec.Name()
	return &Bridge{Queue: q, Meta: meta, Codec: codec, Commands: commands, ConnectTimeout: 5 * time.Second}
}

// Publish implements telemetry.Sink.
func (b *Bridge) Publish(_ context.Context, f telemetry.Frame) error {
	if !b.Queue.Client.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}
	payload, err := b.Codec.Encode(f)
	if err != nil {
		return err
	}
	b.Queue.Pub(RobotTopic(b.Meta.ID, TopicTelemetry), payload)
	return nil
}

func (b *Bridge) publishMeta(online bool) paho.Token {
	meta := b.Meta
	meta.Online = online
	payload, _ := json.Marshal(meta)
	return b.Queue.PubWith(RobotTopic(b.Meta.ID, TopicMeta), payload, 1, true)
}

// HandleCommand parses a text command and queues it for the brain.
func (b *Bridge) HandleCommand(_ string, payload []byte) {
	cmd, err := brain.ParseCommand(strings.TrimSpace(string(payload)))
	if err == nil {
		err = b.Commands.Put(cmd)
	}
	if err != nil {
		glog.Warningf("mqtt: command %q: %v", payload, err)
		b.Queue.Pub(RobotTopic(b.Meta.ID, TopicError), []byte(err.Error()))
		return
	}
	glog.V(1).Infof("mqtt: command %s", cmd)
}

// Run implements Runnable. It connects, serves until ctx is done and
// marks the robot offline before disconnecting.
func (b *Bridge) Run(ctx context.Context) error {
	b.Queue.OnConnect = func(*Queue) { b.publishMeta(true) }
	if b.Commands != nil {
		sub := b.Queue.Sub(RobotTopic(b.Meta.ID, TopicCommand), b.HandleCommand)
		defer sub.Close()
	}
	token := b.Queue.Connect()
	if !token.WaitTimeout(b.ConnectTimeout) {
		glog.Warningf("mqtt: connect timeout, retrying in background")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	<-ctx.Done()
	if b.Queue.Client.IsConnected() {
		b.publishMeta(false).WaitTimeout(time.Second)
	}
	b.Queue.Close()
	return ctx.Err()
}

// Discover lists robots announcing themselves online.
func Discover(ctx context.Context, q *Queue, timeout time.Duration) ([]Meta, error) {
	found := make(chan Meta, 16)
	sub := q.Sub(RobotTopic("+", TopicMeta), func(topic string, payload []byte) {
		var meta Meta
		if err := json.Unmarshal(payload, &meta); err != nil || !meta.Online {
			return
		}
		select {
		case found <- meta:
		default:
		}
	})
	defer sub.Close()

	var robots []Meta
	expired := time.After(timeout)
	for {
		select {
		case meta := <-found:
			robots = append(robots, meta)
		case <-expired:
			return robots, nil
		case <-ctx.Done():
			return robots, ctx.Err()
		}
	}
}
