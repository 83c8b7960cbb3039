package sse

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestNext_SingleEvent(t *testing.T) {
	p := NewParser(strings.NewReader("event: message\ndata: hello\nid: 1\n\n"))

	ev, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if ev.Event != "message" || ev.Data != "hello" || ev.ID != "1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestNext_MultiLineData_JoinedWithLF(t *testing.T) {
	p := NewParser(strings.NewReader("data: line1\ndata: line2\n\n"))

	ev, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if ev.Data != "line1\nline2" {
		t.Errorf("expected joined data lines, got %q", ev.Data)
	}
}

func TestNext_Retry(t *testing.T) {
	p := NewParser(strings.NewReader("retry: 5000\ndata: x\n\n"))
	ev, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if ev.Retry != 5000 {
		t.Errorf("expected retry 5000, got %d", ev.Retry)
	}
}

func TestNext_SequentialEvents(t *testing.T) {
	p := NewParser(strings.NewReader("data: first\n\ndata: second\n\n"))
	ctx := context.Background()

	ev1, err := p.Next(ctx)
	if err != nil || ev1.Data != "first" {
		t.Fatalf("expected first event, got %+v, err=%v", ev1, err)
	}
	ev2, err := p.Next(ctx)
	if err != nil || ev2.Data != "second" {
		t.Fatalf("expected second event, got %+v, err=%v", ev2, err)
	}
}

func TestNext_EOF(t *testing.T) {
	p := NewParser(strings.NewReader(""))
	_, err := p.Next(context.Background())
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestNext_TrailingEventWithoutBlankLine(t *testing.T) {
	p := NewParser(strings.NewReader("data: trailing"))
	ev, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("expected trailing event to be returned without error, got %v", err)
	}
	if ev.Data != "trailing" {
		t.Errorf("expected data 'trailing', got %q", ev.Data)
	}
}

func TestNext_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewParser(pr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Next(ctx)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSplitField_NoColon(t *testing.T) {
	field, value := splitField("justtext")
	if field != "justtext" || value != "" {
		t.Errorf("expected field=justtext value=empty, got field=%q value=%q", field, value)
	}
}

func TestSplitField_StripsLeadingSpace(t *testing.T) {
	field, value := splitField("data: hello")
	if field != "data" || value != "hello" {
		t.Errorf("expected field=data value=hello, got field=%q value=%q", field, value)
	}
}

func TestSplitField_NoSpaceAfterColon(t *testing.T) {
	field, value := splitField("data:hello")
	if field != "data" || value != "hello" {
		t.Errorf("expected field=data value=hello, got field=%q value=%q", field, value)
	}
}
