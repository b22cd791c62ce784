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

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ledgerMetrics is a no-op until init is called
type ledgerMetrics struct {
	operations         *prometheus.CounterVec
	totalViolations    prometheus.Gauge
	totalFinesPaid     prometheus.Gauge
	totalFinesRefunded prometheus.Gauge
	totalWithdrawn     prometheus.Gauge
	pendingRefunds     prometheus.Gauge
	auditSeq           prometheus.Gauge
	paused             prometheus.Gauge
}

func (m *ledgerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.operations = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_ledger_operations_total",
			Help: "ledger operations by name and result",
		},
		[]string{"op", "result"},
	)
	m.totalViolations = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_ledger_violations_total",
		Help: "violations issued",
	})
	m.totalFinesPaid = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_ledger_fines_paid_units",
		Help: "fines collected in ledger units",
	})
	m.totalFinesRefunded = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_ledger_fines_refunded_units",
		Help: "fines credited for refund in ledger units",
	})
	m.totalWithdrawn = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_ledger_withdrawn_units",
		Help: "funds withdrawn from custody in ledger units",
	})
	m.pendingRefunds = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_ledger_pending_refunds",
		Help: "principals with an unclaimed refund balance",
	})
	m.auditSeq = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_ledger_audit_seq",
		Help: "sequence number of the latest audit entry",
	})
	m.paused = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "traffic_ledger_paused",
		Help: "whether the ledger is paused (0 or 1)",
	})
}

func (m *ledgerMetrics) observe(op, result string) {
	if m.operations == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *ledgerMetrics) setState(s *state) {
	if m.operations == nil {
		return
	}
	m.totalViolations.Set(float64(s.stats.TotalViolations))
	m.totalFinesPaid.Set(float64(s.stats.TotalFinesPaid))
	m.totalFinesRefunded.Set(float64(s.stats.TotalFinesRefunded))
	m.totalWithdrawn.Set(float64(s.stats.TotalWithdrawn))
	m.pendingRefunds.Set(float64(len(s.refunds)))
	m.auditSeq.Set(float64(s.auditSeq))
	if s.paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}
