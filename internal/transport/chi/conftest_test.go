package chi

import (
	"context"

	"github.com/kailas-cloud/netscout/internal/domain/step"
	domusage "github.com/kailas-cloud/netscout/internal/domain/usage"
	healthuc "github.com/kailas-cloud/netscout/internal/usecase/health"
	searchuc "github.com/kailas-cloud/netscout/internal/usecase/search"
)

// mockSearcher replays events, or fails before streaming.
type mockSearcher struct {
	events []step.Event
	err    error
	got    searchuc.Request
}

func (m *mockSearcher) Start(_ context.Context, req searchuc.Request) (<-chan step.Event, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan step.Event, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type mockUsage struct {
	report    domusage.Report
	err       error
	gotUser   string
	gotPeriod domusage.Period
}

func (m *mockUsage) GetReport(_ context.Context, userID string, period domusage.Period) (domusage.Report, error) {
	m.gotUser, m.gotPeriod = userID, period
	return m.report, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }
