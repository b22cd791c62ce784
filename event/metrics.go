// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type eventMetrics struct {
	eventsTotal    *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	deliveryErrors *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
}

func (e *EventBus) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	e.metrics = &eventMetrics{
		eventsTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_event_published_total",
				Help: "total events published by type",
			},
			[]string{"type"},
		),
		eventsDropped: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_event_dropped_total",
				Help: "events dropped because a subscriber queue was full",
			},
			[]string{"type"},
		),
		deliveryErrors: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_event_delivery_errors_total",
				Help: "event delivery failures and handler panics",
			},
			[]string{"type"},
		),
		subscribers: promautoFactory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "traffic_event_subscribers",
				Help: "current subscribers by event type",
			},
			[]string{"type"},
		),
	}
}
