package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseRegister(t *testing.T) {
	line := []byte(`{"type":"register","origin":"https://app-a.localhost","host":"127.0.0.1","port":53211}`)
	msg, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reg, ok := msg.(Register)
	if !ok {
		t.Fatalf("expected Register, got %T", msg)
	}
	if reg.Origin != "https://app-a.localhost" || reg.Host != "127.0.0.1" || reg.Port != 53211 {
		t.Fatalf("unexpected register: %+v", reg)
	}
}

func TestParseUnregister(t *testing.T) {
	line := []byte(`{"type":"unregister","origin":"https://app-a.localhost"}`)
	msg, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := msg.(Unregister); !ok {
		t.Fatalf("expected Unregister, got %T", msg)
	}
}

func TestParseAck(t *testing.T) {
	line := []byte(`{"type":"ack","success":false,"error":"hostname already registered"}`)
	msg, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ack, ok := msg.(Ack)
	if !ok {
		t.Fatalf("expected Ack, got %T", msg)
	}
	if ack.Success || ack.Error != "hostname already registered" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestParseUnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"ping"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

// segmentedReader replays fixed-size chunks regardless of newline
// boundaries, simulating an arbitrary TCP segment split.
type segmentedReader struct {
	data  []byte
	chunk int
}

func (s *segmentedReader) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := s.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(s.data) {
		n = len(s.data)
	}
	copy(p, s.data[:n])
	s.data = s.data[n:]
	return n, nil
}

func TestFrameReaderSplitAcrossSegments(t *testing.T) {
	full := `{"type":"register","origin":"https://a.localhost","host":"127.0.0.1","port":1}` + "\n" +
		`{"type":"unregister","origin":"https://a.localhost"}` + "\n"

	for _, chunkSize := range []int{1, 2, 3, 7, 64, 4096} {
		fr := NewFrameReader(&segmentedReader{data: []byte(full), chunk: chunkSize})
		var got []string
		for {
			line, err := fr.ReadLine()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("chunk=%d: ReadLine: %v", chunkSize, err)
			}
			got = append(got, string(line))
		}
		if len(got) != 2 {
			t.Fatalf("chunk=%d: expected 2 messages, got %d: %v", chunkSize, len(got), got)
		}
		if _, err := Parse([]byte(got[0])); err != nil {
			t.Fatalf("chunk=%d: Parse first: %v", chunkSize, err)
		}
	}
}

func TestFrameReaderOversizedFrame(t *testing.T) {
	huge := `{"type":"register","origin":"https://a.localhost","host":"` + strings.Repeat("x", MaxFrameSize+1) + `","port":1}` + "\n"
	fr := NewFrameReader(bytes.NewBufferString(huge))
	_, err := fr.ReadLine()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestFrameWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	if err := fw.WriteMessage(NewRegister("https://a.localhost", "127.0.0.1", 9000)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := fw.WriteMessage(AckOK()); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	fr := NewFrameReader(&buf)
	line, err := fr.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	msg, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := msg.(Register); !ok {
		t.Fatalf("expected Register, got %T", msg)
	}

	line, err = fr.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	msg, err = Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ack, ok := msg.(Ack); !ok || !ack.Success {
		t.Fatalf("expected successful ack, got %T %+v", msg, msg)
	}
}
