package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики ядра оркестрации.
var (
	// OrderTransitions — количество переходов состояния заказов по целевому состоянию.
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "excerpta",
		Name:      "order_transitions_total",
		Help:      "Extraction order state transitions by target state.",
	}, []string{"state"})

	// HarvestTicks — количество выполненных циклов сверки.
	HarvestTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "excerpta",
		Name:      "harvest_ticks_total",
		Help:      "Completed harvester reconciliation ticks.",
	})

	// HarvestJobErrors — ошибки сверки отдельных jobs (не прерывают цикл).
	HarvestJobErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "excerpta",
		Name:      "harvest_job_errors_total",
		Help:      "Per-job reconciliation errors, isolated within a tick.",
	})

	// Downloads — загрузки файлов результата по исходу.
	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "excerpta",
		Name:      "result_downloads_total",
		Help:      "Result file downloads by outcome.",
	}, []string{"outcome"})

	// Notifications — отправленные уведомления по каналу.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "excerpta",
		Name:      "notifications_total",
		Help:      "User notifications by channel.",
	}, []string{"channel"})

	// InFlightJobs — количество jobs, находившихся в обработке на последнем тике.
	InFlightJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "excerpta",
		Name:      "in_flight_jobs",
		Help:      "Jobs seen in the backing queues on the last harvest tick.",
	})
)
