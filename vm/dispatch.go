package vm

// Dispatcher drives one ExecutionThread's fetch/decode/execute loop.
// Every Step call is a complete lock boundary: it acquires the VM's
// single dispatch mutex for exactly the duration of handling either
// one pending-exception branch or one opcode, then releases it. This
// is the only ordering guarantee threads get from each other.
type Dispatcher struct {
	state *VMState
}

func NewDispatcher(s *VMState) *Dispatcher {
	return &Dispatcher{state: s}
}

// Run drives thread to completion against stream: until EXIT, stream
// end, an unrecovered unhandled exception, or state.Good going false.
func (d *Dispatcher) Run(thread *ExecutionThread, stream *BytecodeStream) {
	for d.Step(thread, stream) {
	}
}

// Step performs one dispatch iteration, returning false when this
// thread's loop should stop.
func (d *Dispatcher) Step(thread *ExecutionThread, stream *BytecodeStream) bool {
	d.state.Lock()
	defer d.state.Unlock()
	return d.step(thread, stream)
}

func (d *Dispatcher) step(thread *ExecutionThread, stream *BytecodeStream) bool {
	if !d.state.Good || stream.Eof() {
		return false
	}

	if thread.Exception.Occurred() {
		if thread.Exception.TryCounter() > 0 {
			thread.Exception.EndTry()
			for {
				v, err := thread.Stack.Pop()
				if err != nil {
					break
				}
				if v.Kind() == KindTryCatchInfo {
					stream.Seek(v.TryFrame().CatchAddr)
					break
				}
			}
			thread.Exception.Clear()
			return true
		}

		d.state.Printf("unhandled exception: %s: %s\n", thread.Exception.Kind(), thread.Exception.Detail())
		stream.Seek(stream.Len())
		if thread.ID == MainThreadID {
			d.state.Good = false
		}
		return false
	}

	code, err := stream.ReadU8()
	if err != nil {
		return false
	}

	h := &InstructionHandler{State: d.state, Thread: thread, Stream: stream}
	return h.Handle(Opcode(code))
}
