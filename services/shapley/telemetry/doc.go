// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports approximation run telemetry.
//
// # Description
//
// A Sink receives one ApproximationData per completed run and one
// ErrorData per failed run. Implementations:
//   - OTelSink: trace spans and metrics through OpenTelemetry providers
//   - PrometheusSink: counters and histograms on a Prometheus registry,
//     optionally written to a node-exporter textfile
//   - CompositeSink: fans out to several sinks
//   - NoOpSink: discards everything
//
// # Thread Safety
//
// All sinks are safe for concurrent use.
package telemetry
