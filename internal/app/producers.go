// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/relabs-tech/delivery_analyzer/internal/config"
	"github.com/relabs-tech/delivery_analyzer/internal/imu"
	"github.com/relabs-tech/delivery_analyzer/internal/sensors"
)

// pump publishes every sample pair of src as two readings. With a non-nil
// tick it waits for one tick per pair. It returns the number of pairs sent
// and nil once src reports io.EOF. Malformed serial lines are logged and
// skipped; any other source error ends the pump.
func pump(src imu.Source, pub Publisher, topic string, tick <-chan time.Time) (int, error) {
	sent := 0
	for {
		if tick != nil {
			<-tick
		}
		accel, gyro, err := src.Next()
		switch {
		case errors.Is(err, io.EOF):
			return sent, nil
		case errors.Is(err, sensors.ErrMalformedLine):
			log.Printf("producer: %v", err)
			continue
		case err != nil:
			return sent, err
		}

		if err := pub.Publish(topic, false, imu.Reading{Kind: imu.Acceleration, Sample: accel}); err != nil {
			log.Printf("producer: publish error: %v", err)
			continue
		}
		if err := pub.Publish(topic, false, imu.Reading{Kind: imu.AngularRate, Sample: gyro}); err != nil {
			log.Printf("producer: publish error: %v", err)
			continue
		}
		sent++
	}
}

// RunIMUProducer reads the SPI MPU9250 at IMU_SAMPLE_INTERVAL and publishes
// linear acceleration and angular rate readings.
func RunIMUProducer() error {
	cfg := config.Get()
	log.Println("starting delivery-analyzer IMU producer")

	dev, err := sensors.OpenMPU9250("sled", cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	if err != nil {
		return err
	}
	src := sensors.NewMPUSource("sled", dev, cfg.IMUAccelRange, cfg.IMUGyroRange, nil)
	log.Printf("IMU producer: capturing baseline from %d samples, keep the stone still", cfg.IMUBaselineSamples)
	if err := src.CaptureBaseline(cfg.IMUBaselineSamples); err != nil {
		return err
	}
	src.Restart()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ticker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Printf("IMU producer: publishing to %s every %dms", cfg.TopicSamples, cfg.IMUSampleInterval)
	_, err = pump(src, mqttPublisher{client}, cfg.TopicSamples, ticker.C)
	return err
}

// RunSerialProducer forwards a serial-attached IMU feed.
func RunSerialProducer() error {
	cfg := config.Get()
	log.Println("starting delivery-analyzer serial producer")

	src, err := sensors.OpenSerial(cfg.SerialPort, cfg.SerialBaudRate)
	if err != nil {
		return err
	}
	defer src.Close()
	log.Printf("serial producer: port %s opened at %d baud", cfg.SerialPort, cfg.SerialBaudRate)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	n, err := pump(src, mqttPublisher{client}, cfg.TopicSamples, nil)
	log.Printf("serial producer: %d sample pairs forwarded", n)
	return err
}

// RunMockProducer plays synthetic deliveries in real time, starting a
// recording before each one and leaving the stop to auto-stop.
func RunMockProducer(deliveries int) error {
	cfg := config.Get()
	log.Println("starting delivery-analyzer MQTT producer (mock)")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	pub := mqttPublisher{client}

	params := imu.DefaultSyntheticParams()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / params.RateHz))
	defer ticker.Stop()

	for i := 0; deliveries <= 0 || i < deliveries; i++ {
		if err := pub.Publish(cfg.TopicControl, false, ControlMessage{Command: CommandStart}); err != nil {
			return err
		}
		// vary the glide so the session summary has some spread
		params.GlideDecel = 0.4 + 0.3*float64(i%4)
		n, err := pump(imu.NewSyntheticSource(params), pub, cfg.TopicSamples, ticker.C)
		if err != nil {
			return err
		}
		log.Printf("mock producer: delivery %d published (%d sample pairs)", i+1, n)
		time.Sleep(time.Duration(cfg.MockThrowInterval * float64(time.Second)))
	}
	return nil
}
