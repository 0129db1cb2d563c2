// Package lark talks to the Lark open platform: interactive cards,
// webhook event parsing, and thread replies.
package lark

// Card is an interactive message card.
type Card struct {
	Header   CardHeader    `json:"header"`
	Elements []CardElement `json:"elements"`
}

// CardHeader carries the title and the color template.
type CardHeader struct {
	Title    CardText `json:"title"`
	Template string   `json:"template"`
}

// CardText is a text node, either plain_text or lark_md.
type CardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

// CardElement is a card block: a div with text or an action row.
type CardElement struct {
	Tag     string       `json:"tag"`
	Text    *CardText    `json:"text,omitempty"`
	Actions []CardButton `json:"actions,omitempty"`
}

// CardButton is an interactive button. Value is echoed back in action
// callbacks; URL buttons open a link instead.
type CardButton struct {
	Tag   string         `json:"tag"`
	Text  CardText       `json:"text"`
	Type  string         `json:"type,omitempty"`
	URL   string         `json:"url,omitempty"`
	Value map[string]any `json:"value,omitempty"`
}

// Action value types understood by the status endpoint.
const (
	ActionCheckStatus   = "check_status"
	ActionRefreshStatus = "refresh_status"
	ActionRetry         = "retry"
)

func markdown(content string) CardElement {
	return CardElement{
		Tag:  "div",
		Text: &CardText{Tag: "lark_md", Content: content},
	}
}

func plain(content string) CardText {
	return CardText{Tag: "plain_text", Content: content}
}

func actionButton(label, buttonType, actionType, jobID string) CardButton {
	return CardButton{
		Tag:   "button",
		Text:  plain(label),
		Type:  buttonType,
		Value: map[string]any{"type": actionType, "job_id": jobID},
	}
}
