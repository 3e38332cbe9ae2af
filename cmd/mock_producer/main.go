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
	deliveries := flag.Int("n", 0, "number of deliveries to play, 0 for no limit")
	flag.Parse()

	log.Println("starting delivery-analyzer mock producer (synthetic deliveries → MQTT)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMockProducer(*deliveries); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
