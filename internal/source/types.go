package source

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/theirongolddev/tburn/internal/model"
)

// EventType classifies one transcript line.
type EventType int

// Event types. Lines of any other type are reported as EventOther.
const (
	EventOther EventType = iota
	EventUser
	EventAssistant
	EventSystem
	EventCompaction
)

func (t EventType) String() string {
	switch t {
	case EventUser:
		return "user"
	case EventAssistant:
		return "assistant"
	case EventSystem:
		return "system"
	case EventCompaction:
		return "compaction"
	default:
		return "other"
	}
}

// Event is one parsed transcript line.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	GitBranch string
	Content   string
	MessageID string
	Model     string
	Usage     *model.Usage
	// Cache1hTokens is the part of Usage.CacheCreationTokens written with the
	// one-hour TTL; it is priced differently.
	Cache1hTokens int64
}

// rawEntry is a single line in a conversation JSONL file.
type rawEntry struct {
	Type      string      `json:"type"`
	Subtype   string      `json:"subtype,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	GitBranch string      `json:"gitBranch,omitempty"`
	Message   *rawMessage `json:"message,omitempty"`
}

// rawMessage is the message envelope of user and assistant lines.
type rawMessage struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content,omitempty"`
	Usage   *rawUsage       `json:"usage,omitempty"`
}

// rawUsage holds token counts from the API response.
type rawUsage struct {
	InputTokens              model.Count    `json:"input_tokens"`
	OutputTokens             model.Count    `json:"output_tokens"`
	CacheCreationInputTokens model.Count    `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     model.Count    `json:"cache_read_input_tokens"`
	ReasoningTokens          model.Count    `json:"reasoning_tokens"`
	CacheCreation            *cacheCreation `json:"cache_creation,omitempty"`
	OutputTokensDetails      *struct {
		ReasoningTokens model.Count `json:"reasoning_tokens"`
	} `json:"output_tokens_details,omitempty"`
}

// cacheCreation holds the breakdown of cache write tokens by TTL bucket.
type cacheCreation struct {
	Ephemeral5mInputTokens model.Count `json:"ephemeral_5m_input_tokens"`
	Ephemeral1hInputTokens model.Count `json:"ephemeral_1h_input_tokens"`
}

// contentBlock is one element of structured message content.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// flattenContent returns the text of string content or of the text blocks
// of structured content.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Type != "text" || blk.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(blk.Text)
	}
	return b.String()
}

// DiscoveredFile represents a JSONL file found during directory scanning.
type DiscoveredFile struct {
	Path          string
	Project       string // decoded display name (e.g., "gitlore")
	ProjectDir    string // raw directory name
	SessionID     string // extracted from filename
	IsSubagent    bool
	ParentSession string // for subagents: parent session UUID
}
