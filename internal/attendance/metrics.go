package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	markAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_checkins_accepted_total",
		Help: "Check-ins that passed the face gate and the per-day check.",
	})
	markRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceattend_checkins_rejected_total",
		Help: "Check-ins rejected, by reason.",
	}, []string{"reason"})
)
