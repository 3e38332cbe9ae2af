// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/delivery_analyzer/internal/config"
	"github.com/relabs-tech/delivery_analyzer/internal/report"
	"github.com/relabs-tech/delivery_analyzer/internal/store"
)

// RunReport writes the YAML report of a session (ID or name; the configured
// session when empty) to outPath, or stdout when outPath is "-".
func RunReport(ref, outPath string) error {
	cfg := config.Get()
	if ref == "" {
		ref = cfg.SessionName
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var w io.Writer = os.Stdout
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := report.Export(db, ref, w, time.Now()); err != nil {
		return err
	}
	if outPath != "-" {
		log.Printf("report: session %q written to %s", ref, outPath)
	}
	return nil
}
