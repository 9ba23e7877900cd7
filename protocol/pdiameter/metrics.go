// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pdiameter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/diamscope/common"
)

var (
	decodedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Subsystem: "diameter",
			Name:      "decoded_messages_total",
			Help:      "decoded diameter messages total",
		},
		[]string{"mode"},
	)

	decodeDiagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Subsystem: "diameter",
			Name:      "decode_diagnostics_total",
			Help:      "diagnostics attached to decoded diameter messages total",
		},
		[]string{"kind"},
	)

	droppedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Subsystem: "diameter",
			Name:      "dropped_bytes_total",
			Help:      "stream bytes discarded while resynchronizing total",
		},
	)
)
