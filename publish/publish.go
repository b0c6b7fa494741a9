// Package publish pushes accepted telemetry records to an MQTT broker as
// JSON, for dashboards or collectors listening on the side. Publishing is
// fire-and-forget at QoS 0: a lost message costs nothing the CSV log does
// not already hold.
package publish

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"github.com/TASBotL3C/smpspeed-usb2snes/sampler"
	"github.com/TASBotL3C/smpspeed-usb2snes/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is the wire payload for one accepted record.
type Message struct {
	Time           string  `json:"time"`
	PPUHz          float64 `json:"ppu_hz"`
	MeaningMicros  float64 `json:"meaning_us"`
	SlowestMicros  float64 `json:"slowest_us"`
	FastestMicros  float64 `json:"fastest_us"`
	SMPClockHz     float64 `json:"smp_clock_hz"`
	RelativePPM    float64 `json:"relative_ppm"`
	SlowestClockHz float64 `json:"slowest_clock_hz"`
	FastestClockHz float64 `json:"fastest_clock_hz"`
	DSPRateHz      float64 `json:"dsp_rate_hz"`
	Attempts       int     `json:"attempts"`
}

// Publisher owns one MQTT client with library-managed reconnects.
type Publisher struct {
	topic  string
	client mqtt.Client
}

// New connects to the broker. The returned publisher reconnects on its own;
// a brief broker outage only drops the messages sent during it.
func New(broker string, port int, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID(fmt.Sprintf("smpspeed-%d", time.Now().Unix()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("Publish: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publish: connect to %s:%d: %w", broker, port, token.Error())
	}
	log.Printf("Publish: connected to %s:%d (topic: %s)", broker, port, topic)
	return &Publisher{topic: topic, client: client}, nil
}

// Record implements the record sink: marshal and publish without blocking
// the acquisition loop.
func (p *Publisher) Record(rec *telemetry.Record, stats sampler.Stats) {
	if p == nil || rec == nil {
		return
	}
	payload, err := json.Marshal(Message{
		Time:           rec.Time.UTC().Format(time.RFC3339),
		PPUHz:          rec.PPUHz,
		MeaningMicros:  rec.MeaningMicros,
		SlowestMicros:  rec.SlowestMicros,
		FastestMicros:  rec.FastestMicros,
		SMPClockHz:     rec.SMPClockHz,
		RelativePPM:    rec.RelativePPM,
		SlowestClockHz: rec.SlowestClockHz,
		FastestClockHz: rec.FastestClockHz,
		DSPRateHz:      rec.DSPRateHz,
		Attempts:       stats.Attempts,
	})
	if err != nil {
		log.Printf("Publish: marshal failed: %v", err)
		return
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("Publish: publish failed: %v", token.Error())
		}
	}()
}

// Close disconnects from the broker, allowing a short flush window.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(250)
}
