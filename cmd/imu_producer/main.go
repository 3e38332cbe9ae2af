// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/delivery_analyzer/internal/app"
	"github.com/relabs-tech/delivery_analyzer/internal/config"
)

func main() {
	configPath := flag.String("config", "./delivery_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting delivery-analyzer IMU producer (MPU9250 → MQTT)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunIMUProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
