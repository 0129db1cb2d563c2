package lark

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/raphaelgruber/forgebot/internal/models"
)

// WebhookEvent is the envelope Lark posts to the event endpoint. The
// same shape carries url_verification challenges and message events.
type WebhookEvent struct {
	Challenge string `json:"challenge"`
	Type      string `json:"type"`
	Header    struct {
		EventType string `json:"event_type"`
		Token     string `json:"token"`
	} `json:"header"`
	Event *struct {
		Challenge string `json:"challenge"`
		Operator  *struct {
			UserID string `json:"user_id"`
			OpenID string `json:"open_id"`
		} `json:"operator"`
		Sender *struct {
			SenderID struct {
				UserID string `json:"user_id"`
				OpenID string `json:"open_id"`
			} `json:"sender_id"`
		} `json:"sender"`
		Message *struct {
			MessageID string `json:"message_id"`
			ChatID    string `json:"chat_id"`
			Content   string `json:"content"`
			ParentID  string `json:"parent_id"`
			RootID    string `json:"root_id"`
		} `json:"message"`
	} `json:"event"`
}

// IsChallenge reports whether the event is a url_verification handshake.
func (e *WebhookEvent) IsChallenge() bool {
	return e.Type == "url_verification" || e.Header.EventType == "url_verification"
}

// ChallengeValue returns the challenge string wherever Lark put it.
func (e *WebhookEvent) ChallengeValue() string {
	if e.Challenge != "" {
		return e.Challenge
	}
	if e.Event != nil {
		return e.Event.Challenge
	}
	return ""
}

// VerifyToken checks the event against the configured verification
// token. An empty configured token skips verification.
func (e *WebhookEvent) VerifyToken(token string) bool {
	if token == "" {
		return true
	}
	return e.Header.Token == token
}

// IncomingMessage is a parsed user message from a webhook event.
type IncomingMessage struct {
	UserID    string
	ChatID    string
	MessageID string
	Content   string
	ParentID  string
	RootID    string
}

// InThread reports whether the message is a threaded reply.
func (m *IncomingMessage) InThread() bool {
	return m.RootID != "" || m.ParentID != ""
}

// ThreadID returns the id identifying the conversation thread.
func (m *IncomingMessage) ThreadID() string {
	if m.RootID != "" {
		return m.RootID
	}
	return m.ParentID
}

// ParseUserMessage extracts the sender and text from a message event.
// Returns nil for events that carry no usable message.
func (e *WebhookEvent) ParseUserMessage() *IncomingMessage {
	if e.Event == nil || e.Event.Message == nil {
		return nil
	}

	var userID string
	if e.Event.Operator != nil {
		userID = e.Event.Operator.UserID
		if userID == "" {
			userID = e.Event.Operator.OpenID
		}
	}
	if userID == "" && e.Event.Sender != nil {
		userID = e.Event.Sender.SenderID.UserID
		if userID == "" {
			userID = e.Event.Sender.SenderID.OpenID
		}
	}
	if userID == "" {
		return nil
	}

	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(e.Event.Message.Content), &content); err != nil {
		return nil
	}
	text := strings.TrimSpace(content.Text)
	if text == "" {
		return nil
	}

	return &IncomingMessage{
		UserID:    userID,
		ChatID:    e.Event.Message.ChatID,
		MessageID: e.Event.Message.MessageID,
		Content:   text,
		ParentID:  e.Event.Message.ParentID,
		RootID:    e.Event.Message.RootID,
	}
}

var (
	helpRe   = regexp.MustCompile(`(?i)^(help|about|usage)$`)
	branchRe = regexp.MustCompile(`(?i)^branch:\s*(\S+)\s+(.+)`)
)

// IsHelpRequest reports whether the text is a help keyword.
func IsHelpRequest(text string) bool {
	return helpRe.MatchString(strings.TrimSpace(text))
}

// ParseInstruction splits a message into mode, target branch, and the
// actual instruction. A "branch: <name>" prefix selects update-branch
// mode; everything else defaults to create-pr.
func ParseInstruction(text string) (models.Mode, string, string) {
	if m := branchRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return models.ModeUpdateBranch, m[1], strings.TrimSpace(m[2])
	}
	return models.ModeCreatePR, "", strings.TrimSpace(text)
}

// ActionEvent is the payload of a card button callback.
type ActionEvent struct {
	OpenID string `json:"open_id"`
	UserID string `json:"user_id"`
	Action struct {
		Value struct {
			Type  string `json:"type"`
			JobID string `json:"job_id"`
		} `json:"value"`
	} `json:"action"`
}
