package transport

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	payload := []byte(`{"uid":1,"listener":"math.add","parameters":[2,3]}`)
	if err := WriteFrame(&buf, FrameRecord, payload); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&buf, FrameControl, []byte(ControlReady)); err != nil {
		t.Fatal(err)
	}

	kind, got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if kind != FrameRecord || !bytes.Equal(got, payload) {
		t.Fatalf("record frame mismatch: kind=%d payload=%s", kind, got)
	}

	kind, got, err = ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if kind != FrameControl || string(got) != ControlReady {
		t.Fatalf("control frame mismatch: kind=%d payload=%s", kind, got)
	}
}

func TestFrameRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'x', 'y', 'z', Version, byte(FrameRecord), 0, 0, 0, 0})

	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expect error for bad magic")
	}
}

func TestFrameRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{MagicNumber, MagicByte2, MagicByte3, 0x7f, byte(FrameRecord), 0, 0, 0, 0})

	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expect error for unsupported version")
	}
}

func TestEmptyPayloadFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameControl, nil); err != nil {
		t.Fatal(err)
	}
	kind, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if kind != FrameControl || len(payload) != 0 {
		t.Fatalf("expect empty control frame, got kind=%d len=%d", kind, len(payload))
	}
}

func TestControlClassifier(t *testing.T) {
	if name, ok := Control([]byte("READY")); !ok || name != ControlReady {
		t.Fatal("READY not recognized")
	}
	if name, ok := Control([]byte("CLOSE")); !ok || name != ControlClose {
		t.Fatal("CLOSE not recognized")
	}
	if _, ok := Control([]byte(`{"uid":0}`)); ok {
		t.Fatal("record payload misclassified as control")
	}
}
