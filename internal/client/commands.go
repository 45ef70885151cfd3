package client

import "softspace/internal/models"

// Command is a user action dispatched to the App.
type Command interface {
	commandName() string
}

type (
	SendMessage      struct{ Text string }
	StartNewChat     struct{ Initial bool }
	OpenConversation struct{ ID string }
	SwitchMode       struct{ Mode models.Mode }
	RefreshUsage     struct{}
	Login            struct{ Email, Password string }
	Signup           struct{ Email, Password string }
	Logout           struct{}
	Checkout         struct{}
	ManageBilling    struct{}
)

func (SendMessage) commandName() string      { return "send_message" }
func (StartNewChat) commandName() string     { return "start_new_chat" }
func (OpenConversation) commandName() string { return "open_conversation" }
func (SwitchMode) commandName() string       { return "switch_mode" }
func (RefreshUsage) commandName() string     { return "refresh_usage" }
func (Login) commandName() string            { return "login" }
func (Signup) commandName() string           { return "signup" }
func (Logout) commandName() string           { return "logout" }
func (Checkout) commandName() string         { return "checkout" }
func (ManageBilling) commandName() string    { return "manage_billing" }

// Result is the outcome of a dispatched command.
type Result struct {
	Kind  ErrorKind
	Err   error
	Reply *models.ChatMessage // SendMessage
	URL   string              // Checkout, ManageBilling
}

// OK reports whether the command succeeded.
func (r Result) OK() bool { return r.Err == nil }
