package communicator

import (
	"context"
	"encoding/json"

	"remote-call/invoke"
)

// Driver is the client-side proxy over a remote provider. It carries only a
// member path and a back-reference to its Communicator — no other state —
// so building one is free and never touches the wire.
//
// Member extends the path; Call materializes a function record for the
// accumulated path and suspends until the matching return arrives; Path
// reports the accumulated path. The Driver deliberately exposes nothing
// else, so a provider member can never be masked by the proxy's own surface.
type Driver struct {
	comm *Communicator
	path string
}

// Member returns a new Driver whose path is this one's extended by the
// given segments. No wire traffic.
func (d *Driver) Member(segments ...string) *Driver {
	path := d.path
	for _, seg := range segments {
		if path == "" {
			path = seg
		} else {
			path = path + "." + seg
		}
	}
	return &Driver{comm: d.comm, path: path}
}

// Path returns the accumulated dot-separated member path.
func (d *Driver) Path() string {
	return d.path
}

// Call invokes the member at the Driver's path on the remote provider,
// decodes the return value into out (pass nil to discard it), and blocks
// until the matching return arrives. Remote failures surface as the
// reconstructed error.
//
// Calling the root Driver is a domain error: the root stands for the
// provider object itself, which is not callable.
func (d *Driver) Call(ctx context.Context, out any, params ...any) error {
	if d.path == "" {
		return invoke.Domainf("root driver is not callable; select a member first")
	}
	inv, err := invoke.NewFunction(d.path, params...)
	if err != nil {
		return err
	}
	raw, err := d.comm.SendInvoke(ctx, inv)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
