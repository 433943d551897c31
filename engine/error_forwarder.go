package engine

import (
	"context"
	"sync"
)

// errorForwarder consumes internal worker errors (in) and, on the first
// error, cancels the context via cancel and forwards exactly one error to
// the outward errors channel (out). If out isn't immediately writable, it
// uses a detached sender goroutine tracked by sendWG that either delivers
// later or drops when closeCh closes. After closeCh closes, it drains any
// remaining internal errors and exits.
//
// The owner controls lifecycle: errorForwarder never closes any channel.
type errorForwarder struct {
	in      <-chan error
	out     chan<- error
	closeCh <-chan struct{}
	cancel  context.CancelFunc
	sendWG  *sync.WaitGroup
}

func newErrorForwarder(
	in <-chan error, out chan<- error, closeCh <-chan struct{}, cancel context.CancelFunc, sendWG *sync.WaitGroup,
) *errorForwarder {
	return &errorForwarder{in: in, out: out, closeCh: closeCh, cancel: cancel, sendWG: sendWG}
}

func (f *errorForwarder) run() {
	forwardedFirst := false
	for {
		select {
		case e := <-f.in:
			f.cancel()
			if !forwardedFirst {
				forwardedFirst = true
				select {
				case f.out <- e:
				default:
					f.sendWG.Add(1)
					go func(err error) {
						defer f.sendWG.Done()
						select {
						case f.out <- err:
						case <-f.closeCh:
						}
					}(e)
				}
			}
		case <-f.closeCh:
			for {
				select {
				case <-f.in:
				default:
					return
				}
			}
		}
	}
}
