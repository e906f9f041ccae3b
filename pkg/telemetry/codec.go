// Package telemetry publishes brain status snapshots to sinks.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/robotalks/romi.go/pkg/brain"
)

// ErrUnknownCodec is returned by CodecByName.
var ErrUnknownCodec = errors.New("unknown codec")

// Frame is one telemetry sample.
type Frame struct {
	RobotID string       `json:"robot_id"`
	Seq     uint64       `json:"seq"`
	Status  brain.Status `json:"status"`
}

// Codec serializes frames.
type Codec interface {
	Name() string
	ContentType() string
	Encode(Frame) ([]byte, error)
	Decode([]byte) (Frame, error)
}

// CodecByName returns "proto" or "json".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "proto", "":
		return ProtoCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
}

// JSONCodec encodes frames as JSON.
type JSONCodec struct{}

// Name implements Codec.
func (JSONCodec) Name() string { return "json" }

// ContentType implements Codec.
func (JSONCodec) ContentType() string { return "application/json" }

// Encode implements Codec.
func (JSONCodec) Encode(f Frame) ([]byte, error) { return json.Marshal(f) }

// Decode implements Codec.
func (JSONCodec) Decode(b []byte) (f Frame, err error) {
	err = json.Unmarshal(b, &f)
	return
}

// Field numbers of the protobuf encoding.
const (
	fieldRobotID protowire.Number = iota + 1
	fieldSeq
	fieldTime
	fieldState
	fieldManeuver
	fieldPose
	fieldWL
	fieldWR
	fieldDutyL
	fieldDutyR
	fieldLine
	fieldDistance
	fieldEnabledL
	fieldEnabledR
	fieldGains
)

// ProtoCodec encodes frames in protobuf wire format:
//
//	message Frame {
//	  string robot_id = 1;  uint64 seq = 2;  int64 time_ns = 3;
//	  string state = 4;  string maneuver = 5;  Pose pose = 6;
//	  double wl = 7;  double wr = 8;  double duty_l = 9;  double duty_r = 10;
//	  double line = 11;  double distance = 12;
//	  bool enabled_l = 13;  bool enabled_r = 14;  Gains line_gains = 15;
//	}
//	message Pose { double x = 1; double y = 2; double phi = 3; }
//	message Gains { double kp = 1; double ki = 2; double kd = 3; }
type ProtoCodec struct{}

// Name implements Codec.
func (ProtoCodec) Name() string { return "proto" }

// ContentType implements Codec.
func (ProtoCodec) ContentType() string { return "application/x-protobuf" }

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	if len(msg) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// Encode implements Codec.
func (ProtoCodec) Encode(f Frame) ([]byte, error) {
	st := f.Status
	var b []byte
	b = appendString(b, fieldRobotID, f.RobotID)
	b = appendVarint(b, fieldSeq, f.Seq)
	if !st.Time.IsZero() {
		b = appendVarint(b, fieldTime, uint64(st.Time.UnixNano()))
	}
	b = appendString(b, fieldState, st.State)
	b = appendString(b, fieldManeuver, st.Maneuver)

	var pose []byte
	pose = appendDouble(pose, 1, st.Pose.X)
	pose = appendDouble(pose, 2, st.Pose.Y)
	pose = appendDouble(pose, 3, st.Pose.Phi)
	b = appendMessage(b, fieldPose, pose)

	b = appendDouble(b, fieldWL, st.WL)
	b = appendDouble(b, fieldWR, st.WR)
	b = appendDouble(b, fieldDutyL, st.DutyL)
	b = appendDouble(b, fieldDutyR, st.DutyR)
	b = appendDouble(b, fieldLine, st.Line)
	b = appendDouble(b, fieldDistance, st.Distance)
	b = appendVarint(b, fieldEnabledL, protowire.EncodeBool(st.EnabledL))
	b = appendVarint(b, fieldEnabledR, protowire.EncodeBool(st.EnabledR))

	var gains []byte
	gains = appendDouble(gains, 1, st.LineGains.Kp)
	gains = appendDouble(gains, 2, st.LineGains.Ki)
	gains = appendDouble(gains, 3, st.LineGains.Kd)
	b = appendMessage(b, fieldGains, gains)
	return b, nil
}

// fields walks a message calling fn for each field. fn returns the number
// of bytes it consumed, or a negative protowire error.
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeDouble(typ protowire.Type, b []byte, v *float64) int {
	if typ != protowire.Fixed64Type {
		return 0
	}
	bits, n := protowire.ConsumeFixed64(b)
	if n >= 0 {
		*v = math.Float64frombits(bits)
	}
	return n
}

func decodeTriple(b []byte, v [3]*float64) error {
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num >= 1 && num <= 3 {
			return consumeDouble(typ, b, v[num-1])
		}
		return 0
	})
}

// Decode implements Codec. Unknown fields are skipped.
func (ProtoCodec) Decode(data []byte) (f Frame, err error) {
	st := &f.Status
	var nested error
	err = fields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			switch num {
			case fieldRobotID:
				f.RobotID = string(v)
			case fieldState:
				st.State = string(v)
			case fieldManeuver:
				st.Maneuver = string(v)
			case fieldPose:
				nested = decodeTriple(v, [3]*float64{&st.Pose.X, &st.Pose.Y, &st.Pose.Phi})
			case fieldGains:
				nested = decodeTriple(v, [3]*float64{&st.LineGains.Kp, &st.LineGains.Ki, &st.LineGains.Kd})
			}
			if nested != nil {
				return -1
			}
			return n
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n
			}
			switch num {
			case fieldSeq:
				f.Seq = v
			case fieldTime:
				st.Time = time.Unix(0, int64(v))
			case fieldEnabledL:
				st.EnabledL = protowire.DecodeBool(v)
			case fieldEnabledR:
				st.EnabledR = protowire.DecodeBool(v)
			}
			return n
		case protowire.Fixed64Type:
			target := map[protowire.Number]*float64{
				fieldWL: &st.WL, fieldWR: &st.WR,
				fieldDutyL: &st.DutyL, fieldDutyR: &st.DutyR,
				fieldLine: &st.Line, fieldDistance: &st.Distance,
			}[num]
			if target == nil {
				return 0
			}
			return consumeDouble(typ, b, target)
		}
		return 0
	})
	if nested != nil {
		return f, fmt.Errorf("telemetry: %w", nested)
	}
	if err != nil {
		return f, fmt.Errorf("telemetry: %w", err)
	}
	return f, nil
}
