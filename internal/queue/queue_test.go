package queue

import (
	"encoding/json"
	"testing"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
)

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("expected disabled client")
	}
	if err := client.EnqueueRecurringPayment(RecurringPaymentPayload{SubscriptionID: "sub_1", InvoiceID: "in_1"}); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
	if err := client.EnqueuePayoutReconcile(PayoutReconcilePayload{PayoutID: "p1"}, -1); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestRecurringPaymentTaskPayload(t *testing.T) {
	payload := RecurringPaymentPayload{
		EventID:        "evt_1",
		SubscriptionID: "sub_1",
		InvoiceID:      "in_1",
		PayerUserID:    "payer-1",
		PlanPrice:      "97.00",
	}
	task, err := NewRecurringPaymentTask(payload)
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskRecurringPayment {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	var decoded RecurringPaymentPayload
	if err := json.Unmarshal(task.Payload(), &decoded); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if decoded.PlanPrice != "97.00" || decoded.InvoiceID != "in_1" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
	if got := recurringPaymentTaskID(payload); got != "recurring:sub_1:in_1" {
		t.Fatalf("unexpected task id: %s", got)
	}
	if got := recurringPaymentTaskID(RecurringPaymentPayload{SubscriptionID: "sub_1"}); got != "" {
		t.Fatalf("task id without invoice should be empty, got %s", got)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Host: " redis ", Port: 6380, DB: 2})
	if opt.Addr != "redis:6380" || opt.DB != 2 {
		t.Fatalf("unexpected redis opt: %+v", opt)
	}
	if cfg.Concurrency != 10 {
		t.Fatalf("unexpected concurrency: %d", cfg.Concurrency)
	}
	if cfg.Queues[CriticalQueue] <= cfg.Queues[DefaultQueue] {
		t.Fatalf("critical queue should outweigh default: %+v", cfg.Queues)
	}
}
