package chat

import "time"

// Role is the training-side label for a message sender. Exactly two roles
// exist at this stage: the configured target person maps to RoleSystem,
// everyone else maps to RoleUser.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single chat event, shared between the parser and the segmenter.
type Message struct {
	Sender    string
	Text      string
	Timestamp time.Time
	Role      Role
}

// Chat is one conversation's full ordered message history.
type Chat struct {
	Name     string
	Type     string
	Messages []Message
}

// Block is a contiguous, time-bounded, token-bounded group of messages
// formatted as one training example. Messages inside a block have already
// been merged by role and carry delimiter-prefixed text.
type Block struct {
	Messages   []Message
	TokenCount int
	StartTime  time.Time
	EndTime    time.Time
}

// Text renders the block as one training-example string, one merged message
// per line group.
func (b Block) Text() string {
	var out string
	for i, m := range b.Messages {
		if i > 0 {
			out += "\n"
		}
		out += m.Text
	}
	return out
}

// Roles returns the role sequence of the block's messages.
func (b Block) Roles() []Role {
	roles := make([]Role, len(b.Messages))
	for i, m := range b.Messages {
		roles[i] = m.Role
	}
	return roles
}
