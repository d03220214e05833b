package communicator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"remote-call/invoke"
)

// nested provider shaped like { math: { scalar: {...}, vector: {...} } }
func nestedProvider() any {
	return map[string]any{
		"math": map[string]any{
			"scalar": map[string]any{
				"add": func(a, b int) int { return a + b },
			},
			"vector": map[string]any{
				"add": func(u, v []int) ([]int, error) {
					if len(u) != len(v) {
						return nil, fmt.Errorf("length mismatch: %d vs %d", len(u), len(v))
					}
					sum := make([]int, len(u))
					for i := range u {
						sum[i] = u[i] + v[i]
					}
					return sum, nil
				},
			},
		},
	}
}

func TestNestedPathResolution(t *testing.T) {
	server := New(nestedProvider())
	client := New(nil)
	link(client, server)

	driver := client.Driver()

	var n int
	if err := driver.Member("math", "scalar", "add").Call(context.Background(), &n, 41, 1); err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Fatalf("math.scalar.add(41,1): expect 42, got %d", n)
	}

	var sum []int
	if err := driver.Member("math", "vector", "add").Call(context.Background(), &sum, []int{1, 2}, []int{3, 4}); err != nil {
		t.Fatal(err)
	}
	if len(sum) != 2 || sum[0] != 4 || sum[1] != 6 {
		t.Fatalf("math.vector.add: expect [4 6], got %v", sum)
	}
}

func TestIntermediateMemberNotCallable(t *testing.T) {
	server := New(nestedProvider())
	client := New(nil)
	link(client, server)

	// math.vector is a plain object, not a function.
	err := client.Driver().Member("math", "vector").Call(context.Background(), nil, 1)
	var remote *invoke.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expect RemoteError, got %v", err)
	}
	if remote.Name != "NotAFunctionError" {
		t.Fatalf("expect NotAFunctionError, got %s", remote.Name)
	}
}

func TestMissingMember(t *testing.T) {
	server := New(nestedProvider())
	client := New(nil)
	link(client, server)

	err := client.Driver().Member("math", "matrix", "add").Call(context.Background(), nil, 1)
	var remote *invoke.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expect RemoteError, got %v", err)
	}
	if remote.Name != "NotAFunctionError" {
		t.Fatalf("expect NotAFunctionError, got %s", remote.Name)
	}
}

type deepProvider struct {
	Math *mathAPI
}

type mathAPI struct{}

func (m *mathAPI) Add(a, b int) int { return a + b }

func (m *mathAPI) Div(ctx context.Context, a, b int) (int, error) {
	if b == 0 {
		return 0, invoke.Named("RangeError", "division by zero")
	}
	return a / b, nil
}

func TestStructFieldAndMethodResolution(t *testing.T) {
	server := New(&deepProvider{Math: &mathAPI{}})
	client := New(nil)
	link(client, server)

	driver := client.Driver()

	// Wire names use provider-native lower-case spelling; resolution maps
	// them onto the exported Go members.
	var n int
	if err := driver.Member("math", "add").Call(context.Background(), &n, 20, 22); err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Fatalf("expect 42, got %d", n)
	}

	// Methods taking a leading context get it from the framework.
	if err := driver.Member("math", "div").Call(context.Background(), &n, 84, 2); err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Fatalf("expect 42, got %d", n)
	}

	err := driver.Member("math", "div").Call(context.Background(), &n, 1, 0)
	var remote *invoke.RemoteError
	if !errors.As(err, &remote) || remote.Name != "RangeError" {
		t.Fatalf("expect RangeError, got %v", err)
	}
}

func TestWrongArityRejected(t *testing.T) {
	server := New(&Calculator{})
	client := New(nil)
	link(client, server)

	err := client.Driver().Member("plus").Call(context.Background(), nil, 1, 2, 3)
	var remote *invoke.RemoteError
	if !errors.As(err, &remote) || remote.Name != "ArgumentError" {
		t.Fatalf("expect ArgumentError, got %v", err)
	}
}

type panicky struct{}

func (p *panicky) Explode() { panic("kaboom") }

func TestProviderPanicBecomesFailureReturn(t *testing.T) {
	server := New(&panicky{})
	client := New(nil)
	link(client, server)

	err := client.Driver().Member("explode").Call(context.Background(), nil)
	var remote *invoke.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expect RemoteError, got %v", err)
	}
	if remote.Name != "PanicError" {
		t.Fatalf("expect PanicError, got %s", remote.Name)
	}
}
