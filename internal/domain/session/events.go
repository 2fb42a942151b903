package session

import "strings"

// Subscription receives a session's events on C. C is closed when the
// subscription is closed or the session is cleaned up.
type Subscription struct {
	C  <-chan Event
	ch chan Event
	s  *Session
}

// Subscribe attaches a new subscriber. Events emitted while nobody was
// subscribed (bounded) are delivered first.
func (s *Session) Subscribe() (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeTerminated {
		return nil, ErrTerminated
	}

	ch := make(chan Event, s.cfg.SubscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, s: s}
	for _, ev := range s.backlog {
		select {
		case ch <- ev:
		default:
		}
	}
	s.backlog = nil
	s.subs[sub] = struct{}{}
	return sub, nil
}

// Close detaches the subscriber. Safe to call more than once and after the
// session has been cleaned up.
func (sub *Subscription) Close() {
	s := sub.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

// Subscribers returns the number of attached subscribers
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(ev)
}

// emitLocked fans out to subscribers without blocking. A subscriber that has
// fallen a full buffer behind loses the event.
func (s *Session) emitLocked(ev Event) {
	if s.mode == ModeTerminated {
		return
	}

	if len(s.subs) == 0 {
		s.backlog = append(s.backlog, ev)
		if over := len(s.backlog) - s.cfg.BacklogSize; over > 0 {
			s.backlog = s.backlog[over:]
		}
		return
	}

	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			s.logger.Warn("subscriber buffer full, dropping event")
		}
	}
}

// output emits shell output, optionally recording it in history
func (s *Session) output(data string, record bool) {
	if data == "" {
		return
	}
	if record {
		s.history.Append(EntryOutput, data)
	}
	s.emit(Event{Kind: EventOutput, Data: toCRLF(data)})
}

// errorOut emits an error chunk, optionally recording it in history
func (s *Session) errorOut(data string, record bool) {
	if data == "" {
		return
	}
	if record {
		s.history.Append(EntryError, data)
	}
	s.emit(Event{Kind: EventError, Data: toCRLF(data)})
}

// fail reports a single-line error message and records it
func (s *Session) fail(msg string) {
	s.errorOut(msg+"\n", true)
}

// prompt prints the fallback prompt. A live shell prints its own.
func (s *Session) prompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeFallback {
		return
	}
	s.emitLocked(Event{Kind: EventOutput, Data: s.currentDir + "$ "})
}

// toCRLF turns bare line feeds into CRLF. Pipes carry no terminal line
// discipline, so the client widget would otherwise stair-step.
func toCRLF(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + strings.Count(s, "\n"))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && (i == 0 || s[i-1] != '\r') {
			b.WriteByte('\r')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
