package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lanwatch/internal/domain"
	"lanwatch/internal/subnet"
)

func resolution(prefix, local string) subnet.Resolution {
	res := subnet.Resolution{Range: subnet.NewRange(netip.MustParsePrefix(prefix))}
	if local != "" {
		res.LocalAddr = netip.MustParseAddr(local)
	}
	return res
}

func outcomes(recs []domain.RawRecord) map[string]domain.ProbeOutcome {
	out := make(map[string]domain.ProbeOutcome, len(recs))
	for _, r := range recs {
		out[r.Address.String()] = r.Outcome
	}
	return out
}

func TestScheduler_RetriesResidualOnce(t *testing.T) {
	prober := newScriptedProber()
	prober.add("10.0.0.5", domain.OutcomeSucceeded)
	prober.add("10.0.0.9", domain.OutcomeTimedOut, domain.OutcomeSucceeded)
	prober.add("10.0.0.20", domain.OutcomeUnreachable, domain.OutcomeUnreachable)
	prober.add("10.0.0.1", domain.OutcomeHostIsSelf)

	warmer := fakeWarmer{result: PrewarmResult{Hits: hits("10.0.0.5", "10.0.0.9", "10.0.0.20", "10.0.1.7")}}
	s := NewScheduler(warmer, prober, 50, 2, nil)

	round, err := s.Run(context.Background(), resolution("10.0.0.0/24", "10.0.0.1"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := map[string]domain.ProbeOutcome{
		"10.0.0.1":  domain.OutcomeHostIsSelf,
		"10.0.0.5":  domain.OutcomeSucceeded,
		"10.0.0.9":  domain.OutcomeSucceeded,
		"10.0.0.20": domain.OutcomeUnreachable,
	}
	if diff := cmp.Diff(want, outcomes(round.Probes)); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	for addr, n := range map[string]int{"10.0.0.1": 1, "10.0.0.5": 1, "10.0.0.9": 2, "10.0.0.20": 2, "10.0.1.7": 0} {
		if got := prober.attemptsFor(addr); got != n {
			t.Errorf("attempts for %s = %d, want %d", addr, got, n)
		}
	}

	wantStats := domain.RoundStats{Swept: 3, Probed: 4, Retried: 2, Succeeded: 3, Unreachable: 1}
	if diff := cmp.Diff(wantStats, round.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if len(round.Sweep) != 3 {
		t.Errorf("sweep records = %d, want 3", len(round.Sweep))
	}
}

func TestResidual(t *testing.T) {
	addr := netip.MustParseAddr
	live := []netip.Addr{addr("10.0.0.1"), addr("10.0.0.2"), addr("10.0.0.3"), addr("10.0.0.4"), addr("10.0.0.5")}

	first := map[netip.Addr]domain.RawRecord{}
	for a, o := range map[string]domain.ProbeOutcome{
		"10.0.0.1": domain.OutcomeHostIsSelf,
		"10.0.0.2": domain.OutcomeSucceeded,
		"10.0.0.3": domain.OutcomeTimedOut,
		"10.0.0.4": domain.OutcomeUnreachable,
		"10.0.0.5": domain.OutcomeTimedOut,
	} {
		rec := domain.NewRawRecord(addr(a), domain.SourceProbe)
		rec.SetOutcome(o)
		first[addr(a)] = rec
	}

	got := Residual(live, first, []netip.Addr{addr("10.0.0.5")})
	want := []netip.Addr{addr("10.0.0.3"), addr("10.0.0.4")}
	if diff := cmp.Diff(want, got, addrComparer); diff != "" {
		t.Errorf("Residual() mismatch (-want +got):\n%s", diff)
	}

	// Every residual address is live and did not succeed
	for _, a := range got {
		if first[a].Outcome.Successful() {
			t.Errorf("%s succeeded but was retried", a)
		}
	}
}

func TestScheduler_BoundedPool(t *testing.T) {
	prober := newScriptedProber()
	prober.delay = 5 * time.Millisecond

	var addrs []string
	for i := 2; i < 40; i++ {
		addrs = append(addrs, fmt.Sprintf("10.0.0.%d", i))
	}
	s := NewScheduler(fakeWarmer{result: PrewarmResult{Hits: hits(addrs...)}}, prober, 4, 1, nil)

	if _, err := s.Run(context.Background(), resolution("10.0.0.0/24", "")); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := prober.maxInFlight.Load(); got > 4 {
		t.Errorf("max in-flight probes = %d, want <= 4", got)
	}
}

func TestScheduler_RoundDeadline(t *testing.T) {
	prober := newScriptedProber()
	prober.add("10.0.0.5", domain.OutcomeSucceeded)
	prober.block[netip.MustParseAddr("10.0.0.9")] = true

	s := NewScheduler(fakeWarmer{result: PrewarmResult{Hits: hits("10.0.0.5", "10.0.0.9")}}, prober, 50, 5, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	round, err := s.Run(ctx, resolution("10.0.0.0/24", ""))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %v, should stop at the deadline", elapsed)
	}

	got := outcomes(round.Probes)
	if got["10.0.0.9"] != domain.OutcomeTimedOut || got["10.0.0.5"] != domain.OutcomeSucceeded {
		t.Errorf("outcomes = %v", got)
	}
	if n := prober.attemptsFor("10.0.0.9"); n != 1 {
		t.Errorf("expired probe attempted %d times, want 1", n)
	}
}

func TestScheduler_RoundFailure(t *testing.T) {
	prewarmErr := fmt.Errorf("%w: nmap: exit status 1", domain.ErrPrewarmFailed)

	tests := []struct {
		name    string
		result  PrewarmResult
		wantErr bool
	}{
		{
			name:    "sweep failed and cache empty",
			result:  PrewarmResult{Fallback: true, Err: prewarmErr},
			wantErr: true,
		},
		{
			name:   "sweep failed but cache has hosts",
			result: PrewarmResult{Fallback: true, Err: prewarmErr, Hits: hits("10.0.0.5")},
		},
		{
			name:   "sweep found nothing",
			result: PrewarmResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(fakeWarmer{result: tt.result}, newScriptedProber(), 50, 5, nil)
			round, err := s.Run(context.Background(), resolution("10.0.0.0/24", "10.0.0.1"))
			if tt.wantErr {
				if !errors.Is(err, domain.ErrRoundFailed) || !errors.Is(err, domain.ErrPrewarmFailed) {
					t.Errorf("error = %v, want ErrRoundFailed wrapping ErrPrewarmFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if !errors.Is(round.PrewarmErr, tt.result.Err) {
				t.Errorf("PrewarmErr = %v", round.PrewarmErr)
			}
		})
	}
}

func TestScheduler_SelfNotQueuedBehindDeadline(t *testing.T) {
	prober := newScriptedProber()
	prober.add("10.0.0.2", domain.OutcomeSucceeded)
	prober.add("10.0.0.9", domain.OutcomeHostIsSelf)
	prober.block[netip.MustParseAddr("10.0.0.3")] = true
	prober.block[netip.MustParseAddr("10.0.0.5")] = true

	// One worker: the blocked hosts hold the pool until the deadline
	s := NewScheduler(fakeWarmer{result: PrewarmResult{Hits: hits("10.0.0.2", "10.0.0.3", "10.0.0.5")}}, prober, 1, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	round, err := s.Run(ctx, resolution("10.0.0.0/24", "10.0.0.9"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := outcomes(round.Probes)
	if got["10.0.0.9"] != domain.OutcomeHostIsSelf {
		t.Errorf("local host outcome = %s, want %s", got["10.0.0.9"], domain.OutcomeHostIsSelf)
	}
	if got["10.0.0.2"] != domain.OutcomeSucceeded || got["10.0.0.3"] != domain.OutcomeTimedOut {
		t.Errorf("outcomes = %v", got)
	}
	if n := prober.attemptsFor("10.0.0.9"); n != 1 {
		t.Errorf("local host probed %d times, want 1", n)
	}
	if round.Stats.Probed != 4 {
		t.Errorf("probed = %d, want 4", round.Stats.Probed)
	}
}

func TestScheduler_AbandonedRound(t *testing.T) {
	cancelled := func() (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx, cancel
	}
	expiring := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), 30*time.Millisecond)
	}

	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		blocked []string
		wantErr error
	}{
		{
			name:    "cancelled before probing",
			ctx:     cancelled,
			wantErr: context.Canceled,
		},
		{
			name:    "deadline before any answer",
			ctx:     expiring,
			blocked: []string{"10.0.0.3", "10.0.0.5"},
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := newScriptedProber()
			prober.add("10.0.0.1", domain.OutcomeHostIsSelf)
			for _, a := range tt.blocked {
				prober.block[netip.MustParseAddr(a)] = true
			}
			s := NewScheduler(fakeWarmer{result: PrewarmResult{Hits: hits("10.0.0.3", "10.0.0.5")}}, prober, 50, 5, nil)

			ctx, cancel := tt.ctx()
			defer cancel()

			_, err := s.Run(ctx, resolution("10.0.0.0/24", "10.0.0.1"))
			if !errors.Is(err, domain.ErrRoundFailed) || !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want ErrRoundFailed wrapping %v", err, tt.wantErr)
			}
		})
	}
}
