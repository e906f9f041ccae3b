package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/share"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

// Remote is the tool side of a Bridge. It sends commands to one robot and
// keeps the latest telemetry frame and error reported by it.
type Remote struct {
	Queue *Queue
	Meta  Meta
	Codec telemetry.Codec

	Latest    *share.Share[telemetry.Frame]
	LastError *share.Share[string]

	subs []*Subscription
}

// Attach subscribes the telemetry and error topics of the robot.
func Attach(q *Queue, meta Meta) (*Remote, error) {
	codec, err := telemetry.CodecByName(meta.Codec)
	if err != nil {
		return nil, err
	}
	r := &Remote{
		Queue:     q,
		Meta:      meta,
		Codec:     codec,
		Latest:    share.NewShare[telemetry.Frame](meta.ID + ".telemetry"),
		LastError: share.NewShare[string](meta.ID + ".error"),
	}
	r.subs = append(r.subs,
		q.Sub(RobotTopic(meta.ID, TopicTelemetry), r.handleFrame),
		q.Sub(RobotTopic(meta.ID, TopicError), r.handleError),
	)
	return r, nil
}

func (r *Remote) handleFrame(topic string, payload []byte) {
	f, err := r.Codec.Decode(payload)
	if err != nil {
		glog.Warningf("%s: %v", topic, err)
		return
	}
	r.Latest.Put(f)
}

func (r *Remote) handleError(_ string, payload []byte) {
	r.LastError.Put(string(payload))
}

// Send publishes a command in its text form.
func (r *Remote) Send(cmd brain.Command) error {
	token := r.Queue.Pub(RobotTopic(r.Meta.ID, TopicCommand), []byte(cmd.String()))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("send %s: timeout", cmd.Kind)
	}
	return token.Error()
}

// NextFrame waits for a frame received after the call.
func (r *Remote) NextFrame(ctx context.Context) (telemetry.Frame, error) {
	seen := r.Latest.Puts()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return telemetry.Frame{}, ctx.Err()
		case <-ticker.C:
			if r.Latest.Puts() > seen {
				return r.Latest.Get(), nil
			}
		}
	}
}

// Close unsubscribes the robot topics.
func (r *Remote) Close() error {
	for _, sub := range r.subs {
		sub.Close()
	}
	r.subs = nil
	return nil
}
