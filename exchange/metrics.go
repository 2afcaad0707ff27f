// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package exchange

import "github.com/VictoriaMetrics/metrics"

// exchangeMetrics record exchange activity.
type exchangeMetrics struct {
	set *metrics.Set

	received       *metrics.Counter
	sent           *metrics.Counter
	dropped        *metrics.Counter
	merges         *metrics.Counter
	decodeErrors   *metrics.Counter // envelopes or payloads that did not decode
	unknownTypes   *metrics.Counter // auto-create for an unregistered type
	requestsServed *metrics.Counter
	mergeTime      *metrics.Histogram
}

func newExchangeMetrics(numObjects func() int) *exchangeMetrics {
	s := metrics.NewSet()
	s.NewGauge("lattice_exchange_objects", func() float64 { return float64(numObjects()) })
	return &exchangeMetrics{
		set:            s,
		received:       s.NewCounter("lattice_exchange_envelopes_received_total"),
		sent:           s.NewCounter("lattice_exchange_envelopes_sent_total"),
		dropped:        s.NewCounter("lattice_exchange_envelopes_dropped_total"),
		merges:         s.NewCounter("lattice_exchange_merges_total"),
		decodeErrors:   s.NewCounter("lattice_exchange_decode_errors_total"),
		unknownTypes:   s.NewCounter("lattice_exchange_unknown_types_total"),
		requestsServed: s.NewCounter("lattice_exchange_requests_served_total"),
		mergeTime:      s.NewHistogram("lattice_exchange_merge_duration_seconds"),
	}
}
