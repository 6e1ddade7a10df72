package session

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"time"
)

const (
	entryFormatVersionCurrent = 2
	entryFormatVersionV1      = 1

	maxErrorMessageLen = 4096
	maxUserPayloadLen  = 1 << 20
)

var (
	// ErrEntryCorrupt is returned by Decode for malformed input.
	ErrEntryCorrupt = errors.New("session entry corrupt")
	// ErrEntryTooLarge is returned by Encode when the user payload exceeds the limit.
	ErrEntryTooLarge = errors.New("session entry too large")
)

// Encode serialises an entry for out-of-process caches.
//
// Layout (v2): version | status | generation u64 | updatedAt unix-nano i64 |
// hasErr | [errStatus u16 | errLen u16 | err] | userLen u32 | user JSON.
// v1 lacked the error status code.
func Encode(e Entry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(entryFormatVersionCurrent)
	buf.WriteByte(byte(e.Status))

	if err := binary.Write(&buf, binary.BigEndian, e.Generation); err != nil {
		return nil, err
	}
	var updated int64
	if !e.UpdatedAt.IsZero() {
		updated = e.UpdatedAt.UnixNano()
	}
	if err := binary.Write(&buf, binary.BigEndian, updated); err != nil {
		return nil, err
	}

	if re := toRemoteError(e.Err); re != nil {
		buf.WriteByte(1)
		msg := re.Message
		if len(msg) > maxErrorMessageLen {
			msg = msg[:maxErrorMessageLen]
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(re.StatusCode)); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(msg))); err != nil {
			return nil, err
		}
		buf.WriteString(msg)
	} else {
		buf.WriteByte(0)
	}

	var userJSON []byte
	if e.User != nil {
		data, err := json.Marshal(e.User)
		if err != nil {
			return nil, err
		}
		userJSON = data
	}
	if len(userJSON) > maxUserPayloadLen {
		return nil, ErrEntryTooLarge
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(userJSON))); err != nil {
		return nil, err
	}
	buf.Write(userJSON)

	return buf.Bytes(), nil
}

// Decode parses data produced by Encode, including older format versions.
func Decode(data []byte) (Entry, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return Entry{}, ErrEntryCorrupt
	}
	if version != entryFormatVersionCurrent && version != entryFormatVersionV1 {
		return Entry{}, ErrEntryCorrupt
	}

	status, err := r.ReadByte()
	if err != nil || Status(status) > StatusUnresolved {
		return Entry{}, ErrEntryCorrupt
	}

	var e Entry
	e.Status = Status(status)

	if err := binary.Read(r, binary.BigEndian, &e.Generation); err != nil {
		return Entry{}, ErrEntryCorrupt
	}
	var updated int64
	if err := binary.Read(r, binary.BigEndian, &updated); err != nil {
		return Entry{}, ErrEntryCorrupt
	}
	if updated != 0 {
		e.UpdatedAt = time.Unix(0, updated)
	}

	hasErr, err := r.ReadByte()
	if err != nil || hasErr > 1 {
		return Entry{}, ErrEntryCorrupt
	}
	if hasErr == 1 {
		re := &RemoteError{}
		if version >= entryFormatVersionCurrent {
			var code uint16
			if err := binary.Read(r, binary.BigEndian, &code); err != nil {
				return Entry{}, ErrEntryCorrupt
			}
			re.StatusCode = int(code)
		}
		var n uint16
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Entry{}, ErrEntryCorrupt
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return Entry{}, ErrEntryCorrupt
		}
		re.Message = string(msg)
		e.Err = re
	}

	var userLen uint32
	if err := binary.Read(r, binary.BigEndian, &userLen); err != nil {
		return Entry{}, ErrEntryCorrupt
	}
	if userLen > maxUserPayloadLen || int(userLen) != r.Len() {
		return Entry{}, ErrEntryCorrupt
	}
	if userLen > 0 {
		raw := make([]byte, userLen)
		if _, err := io.ReadFull(r, raw); err != nil {
			return Entry{}, ErrEntryCorrupt
		}
		var u User
		if err := json.Unmarshal(raw, &u); err != nil {
			return Entry{}, ErrEntryCorrupt
		}
		e.User = u
	}

	return e, nil
}
