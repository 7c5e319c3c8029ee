// Package metrics provides the observers the bot reports through.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	prometheus.Collector
}

type Metrics struct {
	MessagesCount  Observer
	CommandsCount  Observer
	WelcomeCount   Observer
	SendFailures   Observer
	SpawnFailures  Observer
	QueueAppended  Observer
	CommandLatency Observer
}

func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesCount,
		m.CommandsCount,
		m.WelcomeCount,
		m.SendFailures,
		m.SpawnFailures,
		m.QueueAppended,
		m.CommandLatency,
	}
}

// Observe records val on o if o is not nil.
func Observe(o Observer, val float64, labels ...string) {
	if o == nil {
		return
	}
	o.Observe(val, labels...)
}
