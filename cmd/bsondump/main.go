// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Command bsondump prints the documents in one or more raw BSON files
// (the format mongodump writes: documents back to back, each prefixed
// by its own length, no surrounding framing) as indented JSON, one
// document after another.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	krpretty "github.com/kr/pretty"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
	twpretty "github.com/tidwall/pretty"

	"github.com/till-varoquaux/okmongo/bson"
	"github.com/till-varoquaux/okmongo/internal/dump"
)

// config holds the knobs bsondump.toml can set. The -color flag
// overrides the file's color setting; width is only set by the file.
type config struct {
	Width int  `toml:"width"`
	Color bool `toml:"color"`
}

var defaultConfig = config{Width: 80, Color: false}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("bsondump: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// docPrinter is a bson.Emitter that materializes one document at a
// time via dump.Builder and prints it as it completes.
type docPrinter struct {
	*dump.Builder
	cfg   config
	debug bool
	out   io.Writer
	log   *logrus.Logger
	n     int
}

func newDocPrinter(out io.Writer, cfg config, debug bool, log *logrus.Logger) *docPrinter {
	return &docPrinter{Builder: dump.NewBuilder(), cfg: cfg, debug: debug, out: out, log: log}
}

func (p *docPrinter) print() error {
	v := p.Builder.Result()
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bsondump: document %d: %w", p.n, err)
	}
	formatted := twpretty.PrettyOptions(raw, &twpretty.Options{Width: p.cfg.Width, Indent: "  "})
	if p.cfg.Color {
		formatted = twpretty.Color(formatted, nil)
	}
	if _, err := p.out.Write(formatted); err != nil {
		return err
	}
	if p.debug {
		p.log.Debugf("document %d:\n%# v", p.n, krpretty.Formatter(v))
	}
	p.n++
	return nil
}

// reset prepares p for the next document, replacing the exhausted
// Builder (it is not reusable across documents, see dump.Builder).
func (p *docPrinter) reset() { p.Builder = dump.NewBuilder() }

// dumpFile decodes every back-to-back document in f, printing each one
// through p as it completes.
func dumpFile(path string, p *docPrinter, log *logrus.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bson.NewReader(p.Builder)
	buf := make([]byte, 32*1024)
	var leftover []byte
	for {
		n, rerr := f.Read(buf)
		chunk := append(leftover, buf[:n]...)
		leftover = nil

		for len(chunk) > 0 {
			consumed, cerr := r.Consume(chunk)
			if cerr != nil {
				return fmt.Errorf("bsondump: %s: document %d: %w", path, p.n, cerr)
			}
			if !r.Done() {
				chunk = nil
				break
			}
			if err := p.print(); err != nil {
				return err
			}
			log.Debugf("%s: decoded document %d (%d bytes)", path, p.n-1, r.BytesSeen())
			chunk = chunk[consumed:]
			r.Reset()
			p.reset()
			r.Emitter = p.Builder
		}
		if rerr == io.EOF {
			if len(chunk) > 0 {
				leftover = chunk
			}
			break
		}
		if rerr != nil {
			return rerr
		}
		if len(chunk) > 0 {
			leftover = chunk
		}
	}
	if len(leftover) > 0 {
		return fmt.Errorf("bsondump: %s: %d trailing bytes after last document", path, len(leftover))
	}
	return nil
}

func main() {
	tomlPath := flag.String("config", "bsondump.toml", "path to a bsondump.toml config file")
	envPath := flag.String("env", ".env", "path to a .env file of connection settings")
	debug := flag.Bool("debug", false, "log each decoded document's size and Go-syntax form")
	color := flag.Bool("color", false, "colorize JSON output (overrides the config file)")
	flag.Parse()

	log := logrus.New()
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warnf("bsondump: loading %s", *envPath)
	}

	cfg, err := loadConfig(*tomlPath)
	if err != nil {
		log.WithError(err).Fatal("bsondump: loading config")
	}
	if *color {
		cfg.Color = true
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal("bsondump: usage: bsondump [flags] FILE...")
	}

	p := newDocPrinter(os.Stdout, cfg, *debug, log)
	for _, path := range args {
		if err := dumpFile(path, p, log); err != nil {
			log.WithError(err).Fatal("bsondump")
		}
	}
}
