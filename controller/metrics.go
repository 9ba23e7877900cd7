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

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/diamscope/common"
)

var (
	replayedPackets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "replayed_packets_total",
			Help:      "Replayed capture packets total",
		},
		[]string{"result"},
	)

	handledPackets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "handled_packets_total",
			Help:      "Layer4 packets dispatched to connection pools total",
		},
		[]string{"proto", "result"},
	)

	handledRoundtrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "handled_roundtrips_total",
			Help:      "Handled roundtrips total",
		},
		[]string{"proto"},
	)

	expiredConns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "expired_conns_total",
			Help:      "Connections removed for idleness during replay total",
		},
	)
)
