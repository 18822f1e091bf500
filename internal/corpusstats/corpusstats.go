// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package corpusstats reports percentile statistics over a set of
// decode-time-per-byte samples gathered while benchmarking bson.Reader
// against a corpus of fixture documents.
package corpusstats

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// Sample is one fixture's decode timing: how long Consume took to
// decode a document of the given size.
type Sample struct {
	Bytes    int
	Duration time.Duration
}

// nsPerByte converts a sample to nanoseconds per byte, the unit every
// percentile below is computed over.
func (s Sample) nsPerByte() float64 {
	if s.Bytes == 0 {
		return 0
	}
	return float64(s.Duration.Nanoseconds()) / float64(s.Bytes)
}

// Report summarizes decode-time-per-byte across a corpus run.
type Report struct {
	Count      int
	P50        float64
	P95        float64
	P99        float64
	Mean       float64
	TotalBytes int64
}

// Summarize computes a Report over samples. It returns an error only
// when samples is empty or montanaflynn/stats rejects the input (e.g.
// a percentile outside (0, 100]).
func Summarize(samples []Sample) (Report, error) {
	if len(samples) == 0 {
		return Report{}, fmt.Errorf("corpusstats: no samples")
	}
	data := make(stats.Float64Data, len(samples))
	var total int64
	for i, s := range samples {
		data[i] = s.nsPerByte()
		total += int64(s.Bytes)
	}

	p50, err := stats.Percentile(data, 50)
	if err != nil {
		return Report{}, err
	}
	p95, err := stats.Percentile(data, 95)
	if err != nil {
		return Report{}, err
	}
	p99, err := stats.Percentile(data, 99)
	if err != nil {
		return Report{}, err
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Count:      len(samples),
		P50:        p50,
		P95:        p95,
		P99:        p99,
		Mean:       mean,
		TotalBytes: total,
	}, nil
}

// String renders a Report as a one-line human-readable summary.
func (r Report) String() string {
	return fmt.Sprintf(
		"n=%d total=%dB ns/byte: p50=%.2f p95=%.2f p99=%.2f mean=%.2f",
		r.Count, r.TotalBytes, r.P50, r.P95, r.P99, r.Mean)
}
