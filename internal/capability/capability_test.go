package capability

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
)

func newTestInvoker(t *testing.T, reg *Registry, opts ...InvokerOption) *Invoker {
	t.Helper()
	iv, err := NewInvoker(reg, opts...)
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	return iv
}

func TestNewInvoker_RequiresRegistry(t *testing.T) {
	if _, err := NewInvoker(nil); err == nil {
		t.Error("NewInvoker(nil) expected error, got nil")
	}
}

func TestInvoker_Success(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("echo", "", func(_ context.Context, req Request) (Payload, error) {
		return Payload{"subject": req.SubjectID, "subtask": req.Subtask}, nil
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	iv := newTestInvoker(t, reg)
	outcome := iv.Invoke(context.Background(), "echo", Request{SubjectID: "svc-api", Subtask: "echo"}, time.Second)

	if !outcome.Succeeded() {
		t.Fatalf("Invoke() failed: %v", outcome.Failure)
	}
	if got := outcome.Payload["subject"]; got != "svc-api" {
		t.Errorf("payload subject = %v, want svc-api", got)
	}
	if outcome.Duration < 0 {
		t.Errorf("Duration = %v, want >= 0", outcome.Duration)
	}
}

func TestInvoker_UnregisteredCapability(t *testing.T) {
	iv := newTestInvoker(t, NewRegistry())

	outcome := iv.Invoke(context.Background(), "missing", Request{}, time.Second)

	if outcome.Succeeded() {
		t.Fatal("Invoke() of unregistered capability succeeded")
	}
	if outcome.Failure.Kind != KindPermanent {
		t.Errorf("Kind = %q, want %q", outcome.Failure.Kind, KindPermanent)
	}
	if !strings.Contains(outcome.Failure.Message, "not registered") {
		t.Errorf("Message = %q, want mention of registration", outcome.Failure.Message)
	}
}

func TestInvoker_Timeout(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("stall", "", func(ctx context.Context, _ Request) (Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	iv := newTestInvoker(t, reg)
	outcome := iv.Invoke(context.Background(), "stall", Request{}, 20*time.Millisecond)

	if outcome.Succeeded() {
		t.Fatal("Invoke() succeeded, want timeout failure")
	}
	if outcome.Failure.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q", outcome.Failure.Kind, KindTimeout)
	}
	if outcome.Duration < 20*time.Millisecond {
		t.Errorf("Duration = %v, want >= 20ms", outcome.Duration)
	}
}

func TestInvoker_DefaultTimeout(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("stall", "", func(ctx context.Context, _ Request) (Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	iv := newTestInvoker(t, reg, WithDefaultTimeout(20*time.Millisecond))
	outcome := iv.Invoke(context.Background(), "stall", Request{}, 0)

	if outcome.Succeeded() || outcome.Failure.Kind != KindTimeout {
		t.Errorf("outcome = %+v, want timeout failure from default deadline", outcome)
	}
}

func TestInvoker_PanicRecovery(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("boom", "", func(_ context.Context, _ Request) (Payload, error) {
		panic("index out of range")
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	iv := newTestInvoker(t, reg)
	outcome := iv.Invoke(context.Background(), "boom", Request{}, time.Second)

	if outcome.Succeeded() {
		t.Fatal("Invoke() succeeded, want recovered panic failure")
	}
	if outcome.Failure.Kind != KindPermanent {
		t.Errorf("Kind = %q, want %q", outcome.Failure.Kind, KindPermanent)
	}
	if !strings.Contains(outcome.Failure.Message, "capability panic") {
		t.Errorf("Message = %q, want recovered panic text", outcome.Failure.Message)
	}
}

func TestInvoker_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{
			name: "transient marked error",
			err:  errors.Transient(errors.New("connection reset")),
			want: KindTransient,
		},
		{
			name: "unmarked error is permanent",
			err:  errors.New("bad exit status"),
			want: KindPermanent,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: KindTimeout,
		},
		{
			name: "canceled",
			err:  context.Canceled,
			want: KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			if err := reg.Register("cap", "", func(_ context.Context, _ Request) (Payload, error) {
				return nil, tt.err
			}); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			iv := newTestInvoker(t, reg)
			outcome := iv.Invoke(context.Background(), "cap", Request{}, time.Second)

			if outcome.Succeeded() {
				t.Fatal("Invoke() succeeded, want failure")
			}
			if outcome.Failure.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", outcome.Failure.Kind, tt.want)
			}
		})
	}
}

func TestInvoker_ParentContextCanceled(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("stall", "", func(ctx context.Context, _ Request) (Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	iv := newTestInvoker(t, reg)
	outcome := iv.Invoke(ctx, "stall", Request{}, time.Minute)

	if outcome.Succeeded() {
		t.Fatal("Invoke() succeeded, want cancellation failure")
	}
	if outcome.Failure.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q for canceled parent", outcome.Failure.Kind, KindTimeout)
	}
}

func TestRequest_PriorPayload(t *testing.T) {
	req := Request{
		Prior: map[string]map[string]Payload{
			"initialization": {
				"source_inventory": {"files": 42},
			},
		},
	}

	tests := []struct {
		name    string
		phase   string
		subtask string
		wantOK  bool
	}{
		{name: "present", phase: "initialization", subtask: "source_inventory", wantOK: true},
		{name: "missing subtask", phase: "initialization", subtask: "dependency_audit", wantOK: false},
		{name: "missing phase", phase: "analysis", subtask: "source_inventory", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := req.PriorPayload(tt.phase, tt.subtask)
			if ok != tt.wantOK {
				t.Fatalf("PriorPayload() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && p["files"] != 42 {
				t.Errorf("payload files = %v, want 42", p["files"])
			}
		})
	}
}

func TestPayload_Clone(t *testing.T) {
	var nilPayload Payload
	if got := nilPayload.Clone(); got != nil {
		t.Errorf("Clone() of nil = %v, want nil", got)
	}

	original := Payload{"a": 1, "b": "two"}
	clone := original.Clone()
	clone["a"] = 99

	if original["a"] != 1 {
		t.Errorf("original mutated through clone: a = %v", original["a"])
	}
	if clone["b"] != "two" {
		t.Errorf("clone b = %v, want two", clone["b"])
	}
}

func TestFailure_String(t *testing.T) {
	f := &Failure{Kind: KindTimeout, Message: "capability security_scan did not finish within 30s"}
	want := "timeout: capability security_scan did not finish within 30s"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
