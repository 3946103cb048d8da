package plate_test

import (
	"context"
	"sync"
	"testing"

	"github.com/xraph/plate"
	"github.com/xraph/plate/audit"
	"github.com/xraph/plate/lp"
)

type statusWatcher struct {
	mu      sync.Mutex
	changes []string
}

func (w *statusWatcher) Name() string { return "status-watcher" }

func (w *statusWatcher) OnStatusChanged(_ context.Context, _ *lp.LicensePlate, from, to lp.Status, automatic bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := string(from) + "->" + string(to)
	if automatic {
		s += " (auto)"
	}
	w.changes = append(w.changes, s)
	return nil
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to lp.Status
		want     bool
	}{
		{lp.StatusPending, lp.StatusAvailable, true},
		{lp.StatusAvailable, lp.StatusBlocked, true},
		{lp.StatusBlocked, lp.StatusAvailable, true},
		{lp.StatusAvailable, lp.StatusQuarantine, true},
		{lp.StatusQuarantine, lp.StatusAvailable, true},
		{lp.StatusAvailable, lp.StatusReserved, true},
		{lp.StatusReserved, lp.StatusAvailable, true},
		{lp.StatusBlocked, lp.StatusConsumed, true},
		{lp.StatusAvailable, lp.StatusPending, false},
		{lp.StatusBlocked, lp.StatusQuarantine, false},
		{lp.StatusPending, lp.StatusBlocked, false},
		{lp.StatusConsumed, lp.StatusAvailable, false},
		{lp.StatusAvailable, lp.StatusAvailable, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := plate.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestChangeStatus(t *testing.T) {
	h := newHarness(t)

	t.Run("PendingToAvailable", func(t *testing.T) {
		p := h.create(t, 5, lp.CreateInput{Status: lp.StatusPending})
		got, err := h.engine.ChangeStatus(h.ctx, p.ID, lp.StatusAvailable, "user-1", "received")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != lp.StatusAvailable || got.Version != p.Version+1 {
			t.Fatalf("unexpected plate %s v%d", got.Status, got.Version)
		}
		trail, err := h.engine.AuditTrail(h.ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(trail) != 1 || trail[0].Field != audit.FieldStatus || trail[0].Automatic || trail[0].Reason != "received" {
			t.Fatalf("expected one manual status entry, got %+v", trail)
		}
	})

	t.Run("BlockUnblockQuarantine", func(t *testing.T) {
		p := h.create(t, 5, lp.CreateInput{})
		if _, err := h.engine.Block(h.ctx, p.ID, "user-1", "damaged"); err != nil {
			t.Fatal(err)
		}
		if _, err := h.engine.Quarantine(h.ctx, p.ID, "user-1", ""); plate.CodeOf(err) != plate.CodeInvalidStatusTransition {
			t.Fatalf("blocked -> quarantine must be rejected, got %v", err)
		}
		if _, err := h.engine.Unblock(h.ctx, p.ID, "user-1", ""); err != nil {
			t.Fatal(err)
		}
		if _, err := h.engine.Quarantine(h.ctx, p.ID, "user-1", ""); err != nil {
			t.Fatal(err)
		}
		trail, err := h.engine.AuditTrail(h.ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(trail) != 3 || trail[0].To != string(lp.StatusQuarantine) || trail[2].To != string(lp.StatusBlocked) {
			t.Fatalf("expected 3 entries newest first, got %d", len(trail))
		}
	})

	t.Run("ReservedPlateBlocks", func(t *testing.T) {
		p := h.create(t, 5, lp.CreateInput{})
		h.reserve(t, p, "d", 5)
		got, err := h.engine.Block(h.ctx, p.ID, "user-1", "")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != lp.StatusBlocked {
			t.Fatalf("expected blocked, got %s", got.Status)
		}
	})

	rejected := []struct {
		name   string
		create lp.CreateInput
		qty    int64
		to     lp.Status
	}{
		{"Self", lp.CreateInput{}, 5, lp.StatusAvailable},
		{"ToReserved", lp.CreateInput{}, 5, lp.StatusReserved},
		{"BackToPending", lp.CreateInput{}, 5, lp.StatusPending},
		{"ConsumedWithStock", lp.CreateInput{}, 5, lp.StatusConsumed},
		{"AvailableAfterFailedQA", lp.CreateInput{Status: lp.StatusBlocked, QAStatus: lp.QAFailed}, 5, lp.StatusAvailable},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			p := h.create(t, tt.qty, tt.create)
			_, err := h.engine.ChangeStatus(h.ctx, p.ID, tt.to, "user-1", "")
			wantCode(t, err, plate.CodeInvalidStatusTransition)
		})
	}

	t.Run("ConsumedAtZero", func(t *testing.T) {
		p := h.create(t, 0, lp.CreateInput{})
		got, err := h.engine.ChangeStatus(h.ctx, p.ID, lp.StatusConsumed, "user-1", "empty")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != lp.StatusConsumed {
			t.Fatalf("expected consumed, got %s", got.Status)
		}
		_, err = h.engine.ChangeStatus(h.ctx, p.ID, lp.StatusAvailable, "user-1", "")
		wantCode(t, err, plate.CodeInvalidStatusTransition)
	})
}

func TestQAFailureBlocks(t *testing.T) {
	w := &statusWatcher{}
	h := newHarness(t, plate.WithPlugin(w))
	p := h.create(t, 10, lp.CreateInput{QAStatus: lp.QAPassed})

	got, err := h.engine.UpdateQAStatus(h.ctx, p.ID, lp.QAFailed, "qa-1", "contaminated")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != lp.StatusBlocked {
		t.Fatalf("expected blocked, got %s", got.Status)
	}

	trail, err := h.engine.AuditTrail(h.ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(trail))
	}
	status, qa := trail[0], trail[1]
	if status.Field != audit.FieldStatus || status.From != "available" || status.To != "blocked" || !status.Automatic {
		t.Errorf("unexpected status entry %+v", status)
	}
	if qa.Field != audit.FieldQAStatus || qa.From != "passed" || qa.To != "failed" || qa.Automatic {
		t.Errorf("unexpected QA entry %+v", qa)
	}
	if len(w.changes) != 1 || w.changes[0] != "available->blocked (auto)" {
		t.Errorf("expected one automatic status hook, got %v", w.changes)
	}

	_, err = h.engine.UpdateQAStatus(h.ctx, p.ID, lp.QAFailed, "qa-1", "")
	wantCode(t, err, plate.CodeInvalidStatusTransition)
}

func TestQAReleaseFromQuarantineUnblocks(t *testing.T) {
	h := newHarness(t)
	p := h.create(t, 10, lp.CreateInput{Status: lp.StatusBlocked, QAStatus: lp.QAQuarantine})

	got, err := h.engine.UpdateQAStatus(h.ctx, p.ID, lp.QAPassed, "qa-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != lp.StatusAvailable {
		t.Fatalf("expected available, got %s", got.Status)
	}
	trail, err := h.engine.AuditTrail(h.ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 2 || !trail[0].Automatic {
		t.Fatalf("expected a QA entry and an automatic status entry, got %d", len(trail))
	}

	// Passing QA from pending leaves a blocked plate blocked.
	q := h.create(t, 10, lp.CreateInput{Status: lp.StatusBlocked, QAStatus: lp.QAPending})
	got, err = h.engine.UpdateQAStatus(h.ctx, q.ID, lp.QAPassed, "qa-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != lp.StatusBlocked {
		t.Fatalf("expected blocked, got %s", got.Status)
	}
	trail, err = h.engine.AuditTrail(h.ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected a single QA entry, got %d", len(trail))
	}
}

func TestQAFailureOnFullyReservedPlate(t *testing.T) {
	h := newHarness(t)
	p := h.create(t, 10, lp.CreateInput{})
	h.reserve(t, p, "d", 10)

	got, err := h.engine.UpdateQAStatus(h.ctx, p.ID, lp.QAFailed, "qa-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != lp.StatusBlocked {
		t.Fatalf("expected blocked, got %s", got.Status)
	}
	if free := h.free(t, p); free != "0" {
		t.Errorf("blocking must not release reservations, free is %s", free)
	}
}
