package codec

import (
	"encoding/binary"
	"fmt"
)

// Binary encoding layout: [1 byte tag][payload...], big-endian fixed-width
// fields throughout. This is the §4.4 "compact binary encoding" half of the
// codec; EncodeText/DecodeText in text.go implement the textual fallback.

// EncodeBinary serializes a Frame to its compact wire form.
func EncodeBinary(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case StartTestFrame:
		b := make([]byte, 1+4+4+1+1+1)
		b[0] = byte(MsgStartTest)
		binary.BigEndian.PutUint32(b[1:], v.DurationMs)
		binary.BigEndian.PutUint32(b[5:], v.ChunkSize)
		b[9] = v.ParallelStreams
		b[10] = boolByte(v.AIInsights)
		b[11] = boolByte(v.Binary)
		return b, nil

	case PingFrame:
		b := make([]byte, 1+4+8)
		b[0] = byte(MsgPing)
		binary.BigEndian.PutUint32(b[1:], v.Token)
		binary.BigEndian.PutUint64(b[5:], v.TSendMs)
		return b, nil

	case PongFrame:
		b := make([]byte, 1+4+8)
		b[0] = byte(MsgPong)
		binary.BigEndian.PutUint32(b[1:], v.Token)
		binary.BigEndian.PutUint64(b[5:], v.TEchoMs)
		return b, nil

	case BeginUploadFrame:
		b := make([]byte, 1+8+8)
		b[0] = byte(MsgBeginUpload)
		binary.BigEndian.PutUint64(b[1:], v.BytesGoal)
		binary.BigEndian.PutUint64(b[9:], v.DeadlineMs)
		return b, nil

	case EndUploadFrame:
		return []byte{byte(MsgEndUpload)}, nil

	case ProgressFrame:
		b := make([]byte, 1+1+1+2+1+2)
		b[0] = byte(MsgProgress)
		b[1] = v.Stage
		b[2] = v.Pct
		binary.BigEndian.PutUint16(b[3:], v.SpeedMbpsX10)
		b[5] = boolByte(v.HasLatency)
		binary.BigEndian.PutUint16(b[6:], v.LatencyMsX10)
		return b, nil

	case ResultsFrame:
		return encodeResults(v.Result), nil

	case ErrorFrame:
		return encodeStrPair(byte(MsgError), v.Kind, v.Message), nil

	case WarningFrame:
		return encodeStrPair(byte(MsgWarning), v.Kind, v.Message), nil

	case DataFrame:
		b := make([]byte, 1+len(v.Payload))
		b[0] = byte(MsgData)
		copy(b[1:], v.Payload)
		return b, nil

	default:
		return nil, fmt.Errorf("codec: unsupported frame type %T", f)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func encodeStrPair(tag byte, a, b string) []byte {
	out := make([]byte, 0, 1+2+len(a)+2+len(b))
	out = append(out, tag)
	out = appendStr(out, a)
	out = appendStr(out, b)
	return out
}

func appendStr(b []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
	b = append(b, lenBuf...)
	return append(b, s...)
}

func readStr(b []byte, off int) (string, int, error) {
	if off+2 > len(b) {
		return "", 0, fmt.Errorf("codec: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(b[off:]))
	off += 2
	if off+n > len(b) {
		return "", 0, fmt.Errorf("codec: truncated string body")
	}
	return string(b[off : off+n]), off + n, nil
}

// encodeResults flattens a CompactResult into its positional binary layout.
func encodeResults(r CompactResult) []byte {
	b := make([]byte, 0, 96)
	b = append(b, byte(MsgResults))

	u32 := make([]byte, 4)
	u16 := make([]byte, 2)
	u64 := make([]byte, 8)

	binary.BigEndian.PutUint32(u32, r.DownMbpsX10)
	b = append(b, u32...)
	binary.BigEndian.PutUint32(u32, r.UpMbpsX10)
	b = append(b, u32...)
	binary.BigEndian.PutUint16(u16, r.LatencyMsX10)
	b = append(b, u16...)
	binary.BigEndian.PutUint16(u16, r.JitterMsX10)
	b = append(b, u16...)
	binary.BigEndian.PutUint16(u16, r.DurationSecX10)
	b = append(b, u16...)
	binary.BigEndian.PutUint64(u64, uint64(r.TimestampUnix))
	b = append(b, u64...)

	b = append(b, boolByte(r.HasLoadedLatency))
	if r.HasLoadedLatency {
		binary.BigEndian.PutUint16(u16, r.IdleAvgMsX10)
		b = append(b, u16...)
		binary.BigEndian.PutUint16(u16, r.DownloadAvgMsX10)
		b = append(b, u16...)
		binary.BigEndian.PutUint16(u16, r.UploadAvgMsX10)
		b = append(b, u16...)
		binary.BigEndian.PutUint16(u16, r.IdleRPM)
		b = append(b, u16...)
		binary.BigEndian.PutUint16(u16, r.DownloadRPM)
		b = append(b, u16...)
		binary.BigEndian.PutUint16(u16, r.UploadRPM)
		b = append(b, u16...)
		b = append(b, byte(r.BufferbloatGrade))
	}

	b = append(b, boolByte(r.HasScores))
	if r.HasScores {
		for _, pair := range []struct {
			score uint16
			grade Grade
		}{
			{r.GamingScoreX10, r.GamingGrade},
			{r.StreamingScoreX10, r.StreamingGrade},
			{r.VideoScoreX10, r.VideoGrade},
			{r.BrowsingScoreX10, r.BrowsingGrade},
			{r.OverallScoreX10, r.OverallGrade},
		} {
			binary.BigEndian.PutUint16(u16, pair.score)
			b = append(b, u16...)
			b = append(b, byte(pair.grade))
		}
		b = append(b, boolByte(r.PacketLossAssumed))
	}

	b = append(b, boolByte(r.HasAIInsights))
	if r.HasAIInsights {
		b = appendStr(b, r.AIInsights)
	}

	b = append(b, byte(len(r.Notes)))
	for _, n := range r.Notes {
		b = appendStr(b, n)
	}

	return b
}

// DecodeBinary parses a tagged frame produced by EncodeBinary.
func DecodeBinary(b []byte) (Frame, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("codec: empty frame")
	}
	tag := MsgType(b[0])
	body := b[1:]

	switch tag {
	case MsgStartTest:
		if len(body) < 11 {
			return nil, fmt.Errorf("codec: short StartTest frame")
		}
		return StartTestFrame{
			DurationMs:      binary.BigEndian.Uint32(body[0:]),
			ChunkSize:       binary.BigEndian.Uint32(body[4:]),
			ParallelStreams: body[8],
			AIInsights:      body[9] != 0,
			Binary:          body[10] != 0,
		}, nil

	case MsgPing:
		if len(body) < 12 {
			return nil, fmt.Errorf("codec: short Ping frame")
		}
		return PingFrame{
			Token:   binary.BigEndian.Uint32(body[0:]),
			TSendMs: binary.BigEndian.Uint64(body[4:]),
		}, nil

	case MsgPong:
		if len(body) < 12 {
			return nil, fmt.Errorf("codec: short Pong frame")
		}
		return PongFrame{
			Token:   binary.BigEndian.Uint32(body[0:]),
			TEchoMs: binary.BigEndian.Uint64(body[4:]),
		}, nil

	case MsgBeginUpload:
		if len(body) < 16 {
			return nil, fmt.Errorf("codec: short BeginUpload frame")
		}
		return BeginUploadFrame{
			BytesGoal:  binary.BigEndian.Uint64(body[0:]),
			DeadlineMs: binary.BigEndian.Uint64(body[8:]),
		}, nil

	case MsgEndUpload:
		return EndUploadFrame{}, nil

	case MsgProgress:
		if len(body) < 7 {
			return nil, fmt.Errorf("codec: short Progress frame")
		}
		return ProgressFrame{
			Stage:        body[0],
			Pct:          body[1],
			SpeedMbpsX10: binary.BigEndian.Uint16(body[2:]),
			HasLatency:   body[4] != 0,
			LatencyMsX10: binary.BigEndian.Uint16(body[5:]),
		}, nil

	case MsgResults:
		r, err := decodeResults(body)
		if err != nil {
			return nil, err
		}
		return ResultsFrame{Result: r}, nil

	case MsgError:
		kind, msg, err := decodeStrPair(body)
		if err != nil {
			return nil, err
		}
		return ErrorFrame{Kind: kind, Message: msg}, nil

	case MsgWarning:
		kind, msg, err := decodeStrPair(body)
		if err != nil {
			return nil, err
		}
		return WarningFrame{Kind: kind, Message: msg}, nil

	case MsgData:
		payload := make([]byte, len(body))
		copy(payload, body)
		return DataFrame{Payload: payload}, nil

	default:
		return nil, fmt.Errorf("codec: unknown frame tag %d", tag)
	}
}

func decodeStrPair(b []byte) (string, string, error) {
	a, off, err := readStr(b, 0)
	if err != nil {
		return "", "", err
	}
	c, _, err := readStr(b, off)
	if err != nil {
		return "", "", err
	}
	return a, c, nil
}

func decodeResults(b []byte) (CompactResult, error) {
	var r CompactResult
	need := func(n, off int) error {
		if off+n > len(b) {
			return fmt.Errorf("codec: truncated Results frame")
		}
		return nil
	}

	off := 0
	if err := need(4, off); err != nil {
		return r, err
	}
	r.DownMbpsX10 = binary.BigEndian.Uint32(b[off:])
	off += 4
	if err := need(4, off); err != nil {
		return r, err
	}
	r.UpMbpsX10 = binary.BigEndian.Uint32(b[off:])
	off += 4
	if err := need(2, off); err != nil {
		return r, err
	}
	r.LatencyMsX10 = binary.BigEndian.Uint16(b[off:])
	off += 2
	if err := need(2, off); err != nil {
		return r, err
	}
	r.JitterMsX10 = binary.BigEndian.Uint16(b[off:])
	off += 2
	if err := need(2, off); err != nil {
		return r, err
	}
	r.DurationSecX10 = binary.BigEndian.Uint16(b[off:])
	off += 2
	if err := need(8, off); err != nil {
		return r, err
	}
	r.TimestampUnix = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8

	if err := need(1, off); err != nil {
		return r, err
	}
	r.HasLoadedLatency = b[off] != 0
	off++
	if r.HasLoadedLatency {
		if err := need(13, off); err != nil {
			return r, err
		}
		r.IdleAvgMsX10 = binary.BigEndian.Uint16(b[off:])
		off += 2
		r.DownloadAvgMsX10 = binary.BigEndian.Uint16(b[off:])
		off += 2
		r.UploadAvgMsX10 = binary.BigEndian.Uint16(b[off:])
		off += 2
		r.IdleRPM = binary.BigEndian.Uint16(b[off:])
		off += 2
		r.DownloadRPM = binary.BigEndian.Uint16(b[off:])
		off += 2
		r.UploadRPM = binary.BigEndian.Uint16(b[off:])
		off += 2
		r.BufferbloatGrade = Grade(b[off])
		off++
	}

	if err := need(1, off); err != nil {
		return r, err
	}
	r.HasScores = b[off] != 0
	off++
	if r.HasScores {
		targets := []*uint16{&r.GamingScoreX10, &r.StreamingScoreX10, &r.VideoScoreX10, &r.BrowsingScoreX10, &r.OverallScoreX10}
		grades := []*Grade{&r.GamingGrade, &r.StreamingGrade, &r.VideoGrade, &r.BrowsingGrade, &r.OverallGrade}
		for i := range targets {
			if err := need(3, off); err != nil {
				return r, err
			}
			*targets[i] = binary.BigEndian.Uint16(b[off:])
			off += 2
			*grades[i] = Grade(b[off])
			off++
		}
		if err := need(1, off); err != nil {
			return r, err
		}
		r.PacketLossAssumed = b[off] != 0
		off++
	}

	if err := need(1, off); err != nil {
		return r, err
	}
	r.HasAIInsights = b[off] != 0
	off++
	if r.HasAIInsights {
		s, next, err := readStr(b, off)
		if err != nil {
			return r, err
		}
		r.AIInsights = s
		off = next
	}

	if err := need(1, off); err != nil {
		return r, err
	}
	count := int(b[off])
	off++
	if count > 0 {
		r.Notes = make([]string, 0, count)
	}
	for i := 0; i < count; i++ {
		s, next, err := readStr(b, off)
		if err != nil {
			return r, err
		}
		r.Notes = append(r.Notes, s)
		off = next
	}

	return r, nil
}
