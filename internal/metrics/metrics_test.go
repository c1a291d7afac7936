package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

func TestObserveEventsMovesFundGauges(t *testing.T) {
	m := New()
	m.SetFunds(domain.Funds{Operating: 100, Slashed: 0})

	at := time.Now().UTC()
	who := common.HexToAddress("0x01")
	m.ObserveEvents([]domain.Event{
		domain.NewEvent(domain.EventParticipantJoined, who, at).WithBatch(1).WithAmount(25),
		domain.NewEvent(domain.EventParticipantSlashed, who, at).WithBatch(1).WithAmount(12),
		domain.NewEvent(domain.EventSlashedFundsWithdrawn, who, at).WithAmount(12),
		domain.NewEvent(domain.EventLedgerPaused, who, at),
	})

	if got := testutil.ToFloat64(m.funds.WithLabelValues("operating")); got != 113 {
		t.Fatalf("operating = %v, want 113", got)
	}
	if got := testutil.ToFloat64(m.funds.WithLabelValues("slashed")); got != 0 {
		t.Fatalf("slashed = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(string(domain.EventLedgerPaused))); got != 1 {
		t.Fatalf("paused events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.amounts.WithLabelValues(string(domain.EventParticipantJoined))); got != 25 {
		t.Fatalf("joined amount = %v, want 25", got)
	}
}

func TestHandlerExposesLedgerSeries(t *testing.T) {
	m := New()
	m.ObserveOperation("join_batch", "ok")
	m.ObserveSweep(2, 1)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, series := range []string{
		`batcher_operations_total{operation="join_batch",result="ok"} 1`,
		`batcher_slashing_sweep_participants_total{outcome="slashed"} 2`,
	} {
		if !strings.Contains(string(body), series) {
			t.Errorf("missing series %s", series)
		}
	}
}
