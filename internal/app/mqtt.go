// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends a value as JSON to a topic.
type Publisher interface {
	Publish(topic string, retained bool, v any) error
}

type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	log.Printf("%s: connected to MQTT broker at %s", clientID, broker)
	return client, nil
}

// subscribeJSON decodes every message on topic into a fresh T.
func subscribeJSON[T any](client mqtt.Client, topic, who string, handle func(T)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			log.Printf("%s: %s unmarshal error: %v", who, topic, err)
			return
		}
		handle(v)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Printf("%s: subscribed to %s", who, topic)
	return nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
