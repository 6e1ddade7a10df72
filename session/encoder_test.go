package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeKeepsUserAndError(t *testing.T) {
	in := Entry{
		Status:     StatusUnresolved,
		User:       User{"name": "Ada", "email_verified_at": "2024-01-01T00:00:00Z"},
		Err:        &RemoteError{StatusCode: 500, Message: "server error"},
		Generation: 42,
		UpdatedAt:  time.Unix(0, 1700000000123),
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out.Status != in.Status || out.Generation != 42 || !out.UpdatedAt.Equal(in.UpdatedAt) {
		t.Fatalf("header mismatch: %+v", out)
	}
	if out.User.String("name") != "Ada" || !out.User.EmailVerified() {
		t.Fatalf("user mismatch: %#v", out.User)
	}
	var re *RemoteError
	if !errors.As(out.Err, &re) || re.StatusCode != 500 || re.Message != "server error" {
		t.Fatalf("error mismatch: %#v", out.Err)
	}
}

func TestEncodeNormalisesForeignErrors(t *testing.T) {
	data, err := Encode(Entry{Status: StatusUnresolved, Err: statusErr(401)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	re, ok := out.Err.(*RemoteError)
	if !ok || re.HTTPStatus() != 401 {
		t.Fatalf("expected RemoteError with 401, got %#v", out.Err)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	if _, err := Decode([]byte{99}); !errors.Is(err, ErrEntryCorrupt) {
		t.Fatalf("expected ErrEntryCorrupt, got %v", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := Encode(Entry{Status: StatusResolved, User: User{"id": "1"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(append(data, 'x')); !errors.Is(err, ErrEntryCorrupt) {
		t.Fatalf("expected ErrEntryCorrupt for trailing bytes, got %v", err)
	}
}

func TestDecodeAcceptsV1Layout(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(entryFormatVersionV1)
	buf.WriteByte(byte(StatusUnresolved))
	_ = binary.Write(&buf, binary.BigEndian, uint64(7))
	_ = binary.Write(&buf, binary.BigEndian, int64(0))
	buf.WriteByte(1)
	msg := "legacy failure"
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(msg)))
	buf.WriteString(msg)
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))

	out, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	re, ok := out.Err.(*RemoteError)
	if !ok || re.Message != msg || re.StatusCode != 0 {
		t.Fatalf("unexpected v1 error: %#v", out.Err)
	}
	if out.Generation != 7 || out.User != nil {
		t.Fatalf("unexpected v1 entry: %+v", out)
	}
}

type statusErr int

func (e statusErr) Error() string   { return "status" }
func (e statusErr) HTTPStatus() int { return int(e) }
