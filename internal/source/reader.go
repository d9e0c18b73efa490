package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/theirongolddev/tburn/internal/model"
)

// maxLineSize bounds a single JSONL line; tool results can be large.
// Longer lines are skipped and counted as parse errors.
var maxLineSize = 16 * 1024 * 1024

// ReadEvents streams JSONL events from r, calling fn for every recognised
// line in file order. Malformed and oversize lines are skipped and
// counted; they never reach fn. The returned error is only set for read
// failures.
//
// Routing by top-level "type" field:
//   - "user", "assistant", "system", "summary" → full JSON parse
//   - everything else → skipped without parsing
func ReadEvents(r io.Reader, fn func(Event)) (parseErrors int, err error) {
	br := bufio.NewReaderSize(r, 256*1024)
	var buf []byte

	for {
		var oversize bool
		buf, oversize, err = readLine(br, buf)
		if errors.Is(err, io.EOF) {
			return parseErrors, nil
		}
		if err != nil {
			return parseErrors, err
		}
		if oversize {
			parseErrors++
			continue
		}

		line := bytes.TrimSpace(buf)
		if len(line) == 0 {
			continue
		}

		if extractTopLevelType(line) == "" {
			if !json.Valid(line) {
				parseErrors++
			}
			continue
		}

		var entry rawEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			parseErrors++
			continue
		}
		fn(toEvent(&entry))
	}
}

// readLine reads the next line into buf. A line longer than maxLineSize is
// drained to its end and reported as oversize with an empty buffer. io.EOF
// is only returned once no bytes remain.
func readLine(br *bufio.Reader, buf []byte) (line []byte, oversize bool, err error) {
	buf = buf[:0]
	read := 0
	for {
		chunk, err := br.ReadSlice('\n')
		read += len(chunk)
		if !oversize {
			if len(buf)+len(chunk) > maxLineSize {
				oversize = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			return buf, oversize, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && read > 0:
			return buf, oversize, nil
		default:
			return buf, oversize, err
		}
	}
}

func toEvent(e *rawEntry) Event {
	ev := Event{
		SessionID: e.SessionID,
		GitBranch: e.GitBranch,
	}
	if e.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
			ev.Timestamp = ts
		}
	}

	switch e.Type {
	case "user":
		ev.Type = EventUser
	case "assistant":
		ev.Type = EventAssistant
	case "system":
		ev.Type = EventSystem
		if e.Subtype == "compact_boundary" {
			ev.Type = EventCompaction
		}
	case "summary":
		ev.Type = EventCompaction
	}

	if e.Message == nil {
		return ev
	}
	ev.MessageID = e.Message.ID
	ev.Model = e.Message.Model
	ev.Content = flattenContent(e.Message.Content)

	if u := e.Message.Usage; u != nil && ev.Type == EventAssistant {
		usage := model.Usage{
			InputTokens:     int64(u.InputTokens),
			OutputTokens:    int64(u.OutputTokens),
			CacheReadTokens: int64(u.CacheReadInputTokens),
			ReasoningTokens: int64(u.ReasoningTokens),
		}
		if usage.ReasoningTokens == 0 && u.OutputTokensDetails != nil {
			usage.ReasoningTokens = int64(u.OutputTokensDetails.ReasoningTokens)
		}
		if u.CacheCreation != nil {
			usage.CacheCreationTokens = int64(u.CacheCreation.Ephemeral5mInputTokens + u.CacheCreation.Ephemeral1hInputTokens)
			ev.Cache1hTokens = int64(u.CacheCreation.Ephemeral1hInputTokens)
		} else {
			usage.CacheCreationTokens = int64(u.CacheCreationInputTokens)
		}
		ev.Usage = &usage
	}
	return ev
}

// typeKey is the byte sequence for a JSON key named "type" (with quotes).
var typeKey = []byte(`"type"`)

// extractTopLevelType finds the top-level "type" field in a JSONL line.
// Tracks brace depth and string boundaries so nested "type" keys are ignored.
// Early-exits once found, making cost O(1) vs line length for typical lines.
func extractTopLevelType(line []byte) string {
	depth := 0
	for i := 0; i < len(line); {
		switch line[i] {
		case '"':
			if depth == 1 && bytes.HasPrefix(line[i:], typeKey) {
				val, isKey := classifyType(line, i+len(typeKey))
				if isKey {
					return val
				}
			}
			i = skipJSONString(line, i)
		case '{':
			depth++
			i++
		case '}':
			depth--
			i++
		default:
			i++
		}
	}
	return ""
}

// classifyType checks whether pos follows a JSON key (expects : then value).
// isKey=false means "type" appeared as a value, not a key.
func classifyType(line []byte, pos int) (val string, isKey bool) {
	i := skipSpaces(line, pos)
	if i >= len(line) || line[i] != ':' {
		return "", false
	}
	i = skipSpaces(line, i+1)
	if i >= len(line) || line[i] != '"' {
		return "", true
	}
	i++

	end := bytes.IndexByte(line[i:], '"')
	if end < 0 || end > 20 {
		return "", true
	}
	v := string(line[i : i+end])
	switch v {
	case "assistant", "user", "system", "summary":
		return v, true
	}
	return "", true
}

// skipJSONString advances past a JSON string starting at the opening quote.
//
//nolint:gosec // manual bounds checking throughout
func skipJSONString(line []byte, i int) int {
	i++
	for i < len(line) {
		switch line[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return i
}

func skipSpaces(line []byte, i int) int {
	for i < len(line) && line[i] == ' ' {
		i++
	}
	return i
}
