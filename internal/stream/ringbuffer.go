package stream

// ringBuffer keeps the most recent events of a session for late subscribers
// and completion hooks.
type ringBuffer struct {
	items []*Event
	head  int
	count int
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = 1
	}
	return &ringBuffer{items: make([]*Event, size)}
}

func (r *ringBuffer) append(evt *Event) {
	size := len(r.items)
	if r.count < size {
		r.items[(r.head+r.count)%size] = evt
		r.count++
		return
	}
	r.items[r.head] = evt
	r.head = (r.head + 1) % size
}

// snapshot returns events oldest first.
func (r *ringBuffer) snapshot() []*Event {
	if r.count == 0 {
		return nil
	}
	out := make([]*Event, r.count)
	for i := range out {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}
