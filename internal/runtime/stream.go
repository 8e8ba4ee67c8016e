package runtime

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/tidwall/gjson"

	"ptcagent/internal/event"
	"ptcagent/internal/logging"
)

// runStream adapts a server-sent event response to event.Stream.
type runStream struct {
	dec   ssestream.Decoder
	cur   event.Event
	err   error
	ended bool

	onEnd   func()
	endOnce sync.Once

	// runID comes from the metadata event. A stream closed before the run
	// settles cancels the run through cancelRun.
	runID     string
	settled   bool
	cancelRun func(runID string)
}

func newRunStream(resp *http.Response, onEnd func(), cancelRun func(string)) *runStream {
	return &runStream{dec: ssestream.NewDecoder(resp), onEnd: onEnd, cancelRun: cancelRun}
}

// splitEventName separates the stream mode from the subgraph namespace in
// names such as "updates|tools:call_1|model".
func splitEventName(name string) (string, []string) {
	parts := strings.Split(name, "|")
	if len(parts) == 1 {
		return name, nil
	}
	return parts[0], parts[1:]
}

func (s *runStream) Next() bool {
	if s.err != nil || s.ended {
		return false
	}

	for s.dec.Next() {
		ev := s.dec.Event()
		mode, ns := splitEventName(ev.Type)
		data := []byte(strings.TrimSpace(string(ev.Data)))

		switch mode {
		case "metadata":
			if id := gjson.GetBytes(data, "run_id").String(); id != "" {
				s.runID = id
			}
			continue
		case "", "debug", "values":
			continue
		case "end":
			s.finish()
			return false
		case "error":
			s.settled = true
			s.err = parseErrorBody(0, data)
			return false
		case "updates":
			u, err := event.DecodeUpdates(data)
			if err != nil {
				s.err = fmt.Errorf("decode updates event: %w", err)
				return false
			}
			s.cur = event.Event{Namespace: ns, Payload: u}
			return true
		case "messages":
			mt, err := event.DecodeMessageTuple(data)
			if err != nil {
				var unknown *event.UnknownTypeError
				if errors.As(err, &unknown) {
					logging.Warn("skipped_unknown_message", "kind", unknown.Kind, "type", unknown.Type)
					continue
				}
				s.err = fmt.Errorf("decode messages event: %w", err)
				return false
			}
			s.cur = event.Event{Namespace: ns, Payload: mt}
			return true
		default:
			logging.Debug("ignored stream event", "event", ev.Type)
		}
	}

	if err := s.dec.Err(); err != nil {
		s.err = fmt.Errorf("read run stream: %w", err)
		return false
	}
	s.finish()
	return false
}

func (s *runStream) finish() {
	s.ended = true
	s.settled = true
	if s.onEnd != nil {
		s.endOnce.Do(s.onEnd)
	}
}

func (s *runStream) Event() event.Event { return s.cur }

func (s *runStream) Err() error { return s.err }

// Close releases the response. A run that has not settled yet is cancelled
// on the server so the thread is free for the next run.
func (s *runStream) Close() error {
	err := s.dec.Close()
	if !s.settled && s.runID != "" && s.cancelRun != nil {
		s.settled = true
		s.cancelRun(s.runID)
	}
	return err
}
