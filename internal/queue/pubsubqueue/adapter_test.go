package pubsubqueue

import (
	"context"
	"testing"

	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/obslog"
	"github.com/aiobjectives/report-worker/internal/queue"
)

func TestShouldAck_OutcomeMapping(t *testing.T) {
	cases := []struct {
		outcome model.Outcome
		want    bool
	}{
		{model.OutcomeOK, true},
		{model.OutcomePermanent, true},
		{model.OutcomeTransient, false},
		{model.Outcome("unexpected"), false},
	}
	for _, c := range cases {
		if got := shouldAck(c.outcome); got != c.want {
			t.Errorf("shouldAck(%q) = %v, want %v", c.outcome, got, c.want)
		}
	}
}

func TestSafeHandle_RecoversPanicAndNacks(t *testing.T) {
	a := &Adapter{logger: obslog.Silent()}
	panicking := queue.HandleFunc(func(ctx context.Context, msg model.JobMessage) model.Outcome {
		panic("boom")
	})

	ack := a.safeHandle(context.Background(), panicking, model.JobMessage{ReportID: "R1"})
	if ack {
		t.Error("safeHandle must nack (return false) after recovering a panic")
	}
}

func TestSafeHandle_PassesThroughNormalOutcome(t *testing.T) {
	a := &Adapter{logger: obslog.Silent()}
	ok := queue.HandleFunc(func(ctx context.Context, msg model.JobMessage) model.Outcome {
		return model.OutcomeOK
	})

	if ack := a.safeHandle(context.Background(), ok, model.JobMessage{ReportID: "R1"}); !ack {
		t.Error("safeHandle must ack a normal OutcomeOK result")
	}
}
