package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/metrics"
	"gridclash.io/internal/observerproto"
	"gridclash.io/internal/persistence/archive"
	"gridclash.io/internal/persistence/indexdb"
	"gridclash.io/internal/transport/observer"
)

func newMux(srv *authority.Server, obsSrv *observer.Server, reg *prometheus.Registry, matchID string, enableAdmin bool, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})

	mux.Handle("/metrics", metrics.Handler(reg))

	if !enableAdmin {
		logger.Printf("admin endpoints disabled (GSYNC_ENABLE_ADMIN_HTTP=false)")
		return mux
	}
	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		res, over := srv.Result()
		resp := struct {
			MatchID         string                `json:"match_id"`
			Config          authority.Config      `json:"config"`
			State           observerproto.TickMsg `json:"state"`
			Over            bool                  `json:"over"`
			FirstClaimOrder []uint8               `json:"first_claim_order,omitempty"`
			Digest          string                `json:"digest,omitempty"`
		}{
			MatchID: matchID,
			Config:  srv.Config(),
			State:   observerproto.FromView(srv.View()),
			Over:    over,
		}
		if over {
			resp.FirstClaimOrder = res.FirstClaimOrder
			resp.Digest = res.Digest
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	return mux
}

// registerRuntimeCollectors exposes spectator, archive mirror and index
// queue state.
func registerRuntimeCollectors(reg prometheus.Registerer, obsSrv *observer.Server, idx *indexdb.SQLiteIndex, mirror *archive.Mirror) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gsync_observer_sessions",
		Help: "Connected spectator websockets.",
	}, func() float64 { return float64(obsSrv.Sessions()) }))
	if mirror != nil {
		uploads := map[string]func(archive.MirrorStats) uint64{
			"uploaded": func(s archive.MirrorStats) uint64 { return s.Uploaded },
			"failed":   func(s archive.MirrorStats) uint64 { return s.Failed },
			"dropped":  func(s archive.MirrorStats) uint64 { return s.Dropped },
		}
		for outcome, get := range uploads {
			get := get
			reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name:        "gsync_archive_uploads_total",
				Help:        "Archive mirror uploads by outcome.",
				ConstLabels: prometheus.Labels{"outcome": outcome},
			}, func() float64 { return float64(get(mirror.Stats())) }))
		}
	}
	if idx == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gsync_index_queue_depth",
		Help: "Current sqlite index queue depth.",
	}, func() float64 { return float64(idx.Stats().QueueDepth) }))
	drops := map[string]func(indexdb.Stats) uint64{
		"tick":   func(s indexdb.Stats) uint64 { return s.DropTickTotal },
		"claim":  func(s indexdb.Stats) uint64 { return s.DropClaimTotal },
		"match":  func(s indexdb.Stats) uint64 { return s.DropMatchTotal },
		"result": func(s indexdb.Stats) uint64 { return s.DropResultTotal },
	}
	for kind, get := range drops {
		get := get
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "gsync_index_dropped_total",
			Help:        "Index writes dropped because the queue was full.",
			ConstLabels: prometheus.Labels{"kind": kind},
		}, func() float64 { return float64(get(idx.Stats())) }))
	}
}
