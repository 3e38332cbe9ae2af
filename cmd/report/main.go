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
	sessionRef := flag.String("session", "", "session ID or name (default: SESSION_NAME from config)")
	outPath := flag.String("out", "-", "output file, - for stdout")
	flag.Parse()

	log.Println("exporting delivery-analyzer session report")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunReport(*sessionRef, *outPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
