package store

import "sync"

// Feed fans change notifications out to subscribers by topic. Backends call
// Notify after a write; each subscriber reloads the full contents itself.
type Feed struct {
	mu     sync.Mutex
	next   int
	subs   map[string]map[int]*subscriber
	closed bool
}

type subscriber struct {
	mu       sync.Mutex
	reload   func()
	canceled bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[int]*subscriber)}
}

// Add registers reload for topic and runs it once before returning. Reloads
// for one subscriber never overlap, so the last delivery reflects the latest
// read.
func (f *Feed) Add(topic string, reload func()) (CancelFunc, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	id := f.next
	f.next++
	sub := &subscriber{reload: reload}
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[int]*subscriber)
	}
	f.subs[topic][id] = sub
	f.mu.Unlock()

	sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[topic], id)
			if len(f.subs[topic]) == 0 {
				delete(f.subs, topic)
			}
			f.mu.Unlock()

			sub.mu.Lock()
			sub.canceled = true
			sub.mu.Unlock()
		})
	}, nil
}

// Notify reloads every subscriber of topic.
func (f *Feed) Notify(topic string) {
	for _, sub := range f.snapshot(topic) {
		sub.run()
	}
}

// Topics lists topics with at least one subscriber.
func (f *Feed) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	topics := make([]string, 0, len(f.subs))
	for topic := range f.subs {
		topics = append(topics, topic)
	}
	return topics
}

// Close drops all subscribers; later Add calls fail with ErrClosed.
func (f *Feed) Close() {
	f.mu.Lock()
	all := f.subs
	f.subs = make(map[string]map[int]*subscriber)
	f.closed = true
	f.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.mu.Lock()
			sub.canceled = true
			sub.mu.Unlock()
		}
	}
}

func (f *Feed) snapshot(topic string) []*subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := make([]*subscriber, 0, len(f.subs[topic]))
	for _, sub := range f.subs[topic] {
		subs = append(subs, sub)
	}
	return subs
}

func (s *subscriber) run() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return
	}
	s.reload()
}
