package engine

// Event is one inbound user action, already normalized by the transport
// layer: either a text/photo message (Token.Kind == TokenNone) or a parsed
// callback token.
type Event struct {
	UserID   int64
	ChatID   int64
	Username string
	FullName string

	// Text is the message text, or empty for photo-only messages.
	Text string

	// PhotoID is the Telegram file id of the largest photo size, when the
	// message carries one.
	PhotoID string

	// Token is the parsed callback payload for callback events.
	Token Token
}

// InlineButton is one button of an inline keyboard; its Token becomes the
// callback data.
type InlineButton struct {
	Label string
	Token Token
}

// Reply describes one outbound action. The transport renders it without any
// knowledge of flows or states.
type Reply struct {
	// Text to send (or to replace the message with, when Edit is set).
	Text string

	// HTML enables Telegram HTML parse mode for Text.
	HTML bool

	// Keyboard replaces the reply keyboard when non-nil.
	Keyboard [][]string

	// Inline attaches an inline keyboard to the message.
	Inline [][]InlineButton

	// Photos are Telegram file ids sent as a media group before Text.
	Photos []string

	// Edit rewrites the callback's message instead of sending a new one.
	Edit bool

	// Alert answers the callback query with a short notice instead of
	// sending a message.
	Alert string
}

func textReply(text string) Reply {
	return Reply{Text: text}
}

func keyboardReply(text string, keyboard [][]string) Reply {
	return Reply{Text: text, Keyboard: keyboard}
}

func htmlKeyboardReply(text string, keyboard [][]string) Reply {
	return Reply{Text: text, HTML: true, Keyboard: keyboard}
}

func alertReply(text string) Reply {
	return Reply{Alert: text}
}
