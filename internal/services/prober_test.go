package services

import (
	"context"
	"errors"
	"testing"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/repo"
)

type pingerStub struct {
	result repo.PingResult
	err    error
	calls  int
	got    repo.Deployment
}

func (p *pingerStub) Ping(ctx context.Context, d repo.Deployment) (repo.PingResult, error) {
	p.calls++
	p.got = d
	return p.result, p.err
}

func TestProbeOnce(t *testing.T) {
	cases := []struct {
		name   string
		pinger *pingerStub
		want   bool
	}{
		{name: "ok", pinger: &pingerStub{result: repo.PingResult{StatusCode: 200, OK: true}}, want: true},
		{name: "http error", pinger: &pingerStub{result: repo.PingResult{StatusCode: 404}}, want: false},
		{name: "transport error", pinger: &pingerStub{err: &repo.TransportError{Err: errors.New("refused")}}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProber(nil, config.NewStaticHolder(testConfig()), tc.pinger)
			if got := p.ProbeOnce(context.Background()); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if tc.pinger.calls != 1 || tc.pinger.got.Name != "gpt-4o" {
				t.Fatalf("expected one ping of gpt-4o, got %d calls to %q", tc.pinger.calls, tc.pinger.got.Name)
			}
		})
	}
}

func TestProbeOnceSkipsUnconfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Inference.APIKey = ""
	pinger := &pingerStub{}
	p := NewProber(nil, config.NewStaticHolder(cfg), pinger)

	if p.ProbeOnce(context.Background()) {
		t.Fatalf("expected unconfigured probe to report down")
	}
	if pinger.calls != 0 {
		t.Fatalf("expected no ping when unconfigured")
	}
}

func TestProberStartRejectsBadSchedule(t *testing.T) {
	p := NewProber(nil, config.NewStaticHolder(testConfig()), &pingerStub{})
	if err := p.Start("every tuesday"); err == nil {
		t.Fatalf("expected schedule error")
	}
	if err := p.Start("@every 1h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Stop()
	p.Stop()
}
