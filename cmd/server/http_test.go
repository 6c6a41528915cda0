package main

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/metrics"
	"gridclash.io/internal/observerproto"
	"gridclash.io/internal/protocol"
	"gridclash.io/internal/transport/observer"
)

type nopConn struct{}

func (nopConn) WriteTo(b []byte, _ net.Addr) (int, error) { return len(b), nil }
func (nopConn) ReadFrom([]byte) (int, net.Addr, error)    { return 0, nil, net.ErrClosed }
func (nopConn) Close() error                              { return nil }
func (nopConn) LocalAddr() net.Addr                       { return &net.UDPAddr{} }
func (nopConn) SetDeadline(time.Time) error               { return nil }
func (nopConn) SetReadDeadline(time.Time) error           { return nil }
func (nopConn) SetWriteDeadline(time.Time) error          { return nil }

func newTestMux(t *testing.T, admin bool) (*authority.Server, http.Handler) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	srv := authority.NewServer(authority.Config{GridN: 2, MaxPlayers: 2}, nopConn{}, quiet)
	reg := prometheus.NewRegistry()
	srv.SetMetrics(metrics.NewAuthority(reg))
	obs := observer.NewServer(srv, "m-1", quiet)
	registerRuntimeCollectors(reg, obs, nil, nil)
	return srv, newMux(srv, obs, reg, "m-1", admin, quiet)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	h.ServeHTTP(rr, req)
	return rr
}

func TestMux_HealthAndMetrics(t *testing.T) {
	srv, h := newTestMux(t, false)
	if err := srv.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if rr := get(t, h, "/healthz"); rr.Code != 200 || rr.Body.String() != "ok" {
		t.Fatalf("healthz=%d %q", rr.Code, rr.Body.String())
	}
	rr := get(t, h, "/metrics")
	body := rr.Body.String()
	for _, want := range []string{"gsync_authority_ticks_total 1", "gsync_observer_sessions 0"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if rr := get(t, h, "/admin/v1/state"); rr.Code != http.StatusNotFound {
		t.Fatalf("admin state reachable while disabled: %d", rr.Code)
	}
}

func TestMux_AdminState(t *testing.T) {
	srv, h := newTestMux(t, true)
	srv.HandleEvent(&net.UDPAddr{Port: 1}, protocol.Event{PlayerID: 2, CellID: 3})

	rr := get(t, h, "/admin/v1/state")
	if rr.Code != 200 {
		t.Fatalf("status=%d", rr.Code)
	}
	var resp struct {
		MatchID string                `json:"match_id"`
		State   observerproto.TickMsg `json:"state"`
		Over    bool                  `json:"over"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MatchID != "m-1" || resp.Over || resp.State.Cells[3] != 2 {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestMultiLoggers_SkipNil(t *testing.T) {
	var got []authority.TickRecord
	sink := tickFunc(func(r authority.TickRecord) error {
		got = append(got, r)
		return nil
	})
	m := multiTickLogger{nil, sink, sink}
	_ = m.WriteTick(authority.TickRecord{Seq: 9})
	if len(got) != 2 || got[1].Seq != 9 {
		t.Fatalf("got=%v", got)
	}
}

type tickFunc func(authority.TickRecord) error

func (f tickFunc) WriteTick(r authority.TickRecord) error { return f(r) }
