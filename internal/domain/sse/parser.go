package sse

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
)

// Parser reads the standard SSE grammar off r: lines separated by LF,
// fields "event:", "data:" (successive data lines joined by LF within one
// frame), "id:", "retry:"; a frame ends at a blank line. Next is an
// iterator rather than a channel so the caller (C5's tee consumer)
// controls backpressure explicitly.
type Parser struct {
	r *bufio.Reader
}

// NewParser wraps r for incremental SSE decoding.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReader(r)}
}

// Next returns the next complete SSE event, blocking on I/O as needed. It
// returns io.EOF when the upstream stream ends, or ctx.Err() if ctx is
// cancelled first. The returned sequence is conceptually infinite; the
// caller stops on EOF or cancellation.
func (p *Parser) Next(ctx context.Context) (*Event, error) {
	type result struct {
		ev  *Event
		err error
	}
	done := make(chan result, 1)
	go func() {
		ev, err := p.readEvent()
		done <- result{ev, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.ev, res.err
	}
}

// readEvent reads lines until a blank line terminates a frame, or EOF.
func (p *Parser) readEvent() (*Event, error) {
	var ev Event
	var dataLines []string
	sawAny := false

	for {
		line, err := p.r.ReadString('\n')
		if len(line) == 0 && err != nil {
			if sawAny {
				return finalizeEvent(&ev, dataLines), nil
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if sawAny {
				return finalizeEvent(&ev, dataLines), nil
			}
			// Leading blank lines before any field: skip.
			if err != nil {
				return nil, err
			}
			continue
		}
		sawAny = true

		field, value := splitField(line)
		switch field {
		case "event":
			ev.Event = value
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			ev.ID = value
		case "retry":
			if n, convErr := strconv.Atoi(value); convErr == nil {
				ev.Retry = n
			}
		default:
			// Unknown/comment field: ignored per the SSE grammar.
		}

		if err != nil {
			return finalizeEvent(&ev, dataLines), nil
		}
	}
}

func finalizeEvent(ev *Event, dataLines []string) *Event {
	ev.Data = strings.Join(dataLines, "\n")
	return ev
}

// splitField splits "field: value" (or "field:value") per the SSE grammar:
// a single leading space after the colon is stripped if present.
func splitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	if strings.HasPrefix(value, " ") {
		value = value[1:]
	}
	return field, value
}
