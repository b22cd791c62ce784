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

package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dashboardMetrics is a no-op until init is called
type dashboardMetrics struct {
	pendingAppeals prometheus.Gauge
	complianceRate prometheus.Gauge
	resyncs        prometheus.Counter
}

func (m *dashboardMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.pendingAppeals = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_report_pending_appeals",
		Help: "appeals awaiting a decision",
	})
	m.complianceRate = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_report_compliance_rate",
		Help: "share of issued violations that have been paid",
	})
	m.resyncs = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "traffic_report_resyncs_total",
		Help: "catch-up reads from the audit journal",
	})
}

func (m *dashboardMetrics) update(pendingAppeals int, complianceRate float64) {
	if m.pendingAppeals == nil {
		return
	}
	m.pendingAppeals.Set(float64(pendingAppeals))
	m.complianceRate.Set(complianceRate)
}

func (m *dashboardMetrics) incResyncs() {
	if m.resyncs == nil {
		return
	}
	m.resyncs.Inc()
}
