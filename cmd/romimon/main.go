package main

import (
	"encoding/json"
	"flag"
	"log"
	"strings"
	"sync"

	"github.com/robotalks/romi.go/pkg/cli/sh"
	"github.com/robotalks/romi.go/pkg/comm/mqtt"
	"github.com/robotalks/romi.go/pkg/env"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

var (
	mqttURL = sh.DefaultMQTTURL
	robotID = "+"
)

func init() {
	env.String("MQTT_URL", &mqttURL)
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&robotID, "id", robotID, "Robot to monitor, + for all.")
}

// codecs remembers the telemetry codec announced by each robot.
type codecs struct {
	lock   sync.Mutex
	robots map[string]telemetry.Codec
}

func (c *codecs) set(meta mqtt.Meta) {
	codec, err := telemetry.CodecByName(meta.Codec)
	if err != nil {
		log.Printf("%s: %v", meta.ID, err)
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.robots[meta.ID] = codec
}

func (c *codecs) get(id string) telemetry.Codec {
	c.lock.Lock()
	defer c.lock.Unlock()
	if codec, ok := c.robots[id]; ok {
		return codec
	}
	return telemetry.ProtoCodec{}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	known := &codecs{robots: make(map[string]telemetry.Codec)}

	q.Sub(mqtt.RobotTopic(robotID, "#"), func(topic string, payload []byte) {
		parts := strings.Split(topic, "/")
		if len(parts) != 3 {
			return
		}
		id := parts[1]
		switch parts[2] {
		case mqtt.TopicMeta:
			var meta mqtt.Meta
			if err := json.Unmarshal(payload, &meta); err != nil {
				log.Printf("%s: bad meta: %v", topic, err)
				return
			}
			known.set(meta)
			log.Printf("%s: %s online=%v", topic, sh.FormatMeta(meta), meta.Online)
		case mqtt.TopicTelemetry:
			f, err := known.get(id).Decode(payload)
			if err != nil {
				log.Printf("%s: decode error: %v", topic, err)
				return
			}
			log.Printf("%s: %s", topic, sh.FormatFrame(f))
		default:
			log.Printf("%s: %s", topic, string(payload))
		}
	})
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
