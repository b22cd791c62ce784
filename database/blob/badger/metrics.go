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

package badger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const badgerMetricNamePrefix = "database_blob_"

type blobMetrics struct {
	readsTotal   prometheus.Counter
	writesTotal  prometheus.Counter
	bytesWritten prometheus.Counter
	commitsTotal prometheus.Counter
}

func (m *blobMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.readsTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: badgerMetricNamePrefix + "reads_total",
		Help: "Total number of blob key reads",
	})
	m.writesTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: badgerMetricNamePrefix + "writes_total",
		Help: "Total number of blob key writes",
	})
	m.bytesWritten = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: badgerMetricNamePrefix + "bytes_written_total",
		Help: "Total bytes written to the blob store",
	})
	m.commitsTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: badgerMetricNamePrefix + "commits_total",
		Help: "Total number of committed blob transactions",
	})
}
