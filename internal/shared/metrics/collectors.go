package metrics

import "github.com/prometheus/client_golang/prometheus"

// Entry agrupa os coletores do entry-service (colocação e liquidação)
type Entry struct {
	Placed         prometheus.Counter
	WageredCents   prometheus.Counter
	Rejected       *prometheus.CounterVec
	LegsResolved   *prometheus.CounterVec
	EntriesSettled *prometheus.CounterVec
}

func NewEntry(reg prometheus.Registerer) *Entry {
	m := &Entry{
		Placed:         prometheus.NewCounter(prometheus.CounterOpts{Name: "entries_placed_total", Help: "entries colocadas"}),
		WageredCents:   prometheus.NewCounter(prometheus.CounterOpts{Name: "entries_wagered_cents_total", Help: "soma dos wagers debitados"}),
		Rejected:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "entries_rejected_total", Help: "colocações rejeitadas por motivo"}, []string{"reason"}),
		LegsResolved:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_legs_resolved_total", Help: "legs resolvidas por resultado"}, []string{"result"}),
		EntriesSettled: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_entries_settled_total", Help: "entries liquidadas por status"}, []string{"status"}),
	}
	reg.MustRegister(m.Placed, m.WageredCents, m.Rejected, m.LegsResolved, m.EntriesSettled)
	return m
}

func (m *Entry) ObservePlaced(wagerCents int64) {
	m.Placed.Inc()
	m.WageredCents.Add(float64(wagerCents))
}

func (m *Entry) ObserveRejected(reason string) { m.Rejected.WithLabelValues(reason).Inc() }

func (m *Entry) ObserveLeg(result string) { m.LegsResolved.WithLabelValues(result).Inc() }

func (m *Entry) ObserveSettled(status string) { m.EntriesSettled.WithLabelValues(status).Inc() }

// Worker agrupa os coletores do settlement-worker
type Worker struct {
	Consumed prometheus.Counter
	Applied  prometheus.Counter
	DLQ      prometheus.Counter
	Errors   *prometheus.CounterVec
}

func NewWorker(reg prometheus.Registerer) *Worker {
	m := &Worker{
		Consumed: prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_worker_messages_consumed_total", Help: "mensagens consumidas"}),
		Applied:  prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_worker_batches_applied_total", Help: "lotes aplicados"}),
		DLQ:      prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_worker_dlq_total", Help: "mensagens enviadas à DLQ"}),
		Errors:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_worker_errors_total", Help: "erros por estágio"}, []string{"stage"}),
	}
	reg.MustRegister(m.Consumed, m.Applied, m.DLQ, m.Errors)
	return m
}
