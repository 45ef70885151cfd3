package tui

import "sync"

type noticeKind int

const (
	noticeToast noticeKind = iota
	noticePaywall
	noticeAuth
	noticeURL
)

type notice struct {
	kind noticeKind
	text string
}

// Notifier collects feedback raised while commands run; the model shows it
// once the command returns.
type Notifier struct {
	mu    sync.Mutex
	items []notice
}

func NewNotifier() *Notifier { return &Notifier{} }

func (n *Notifier) push(kind noticeKind, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, notice{kind: kind, text: text})
}

func (n *Notifier) Toast(message string)      { n.push(noticeToast, message) }
func (n *Notifier) ShowPaywall(message string) { n.push(noticePaywall, message) }
func (n *Notifier) PromptAuth(reason string)   { n.push(noticeAuth, reason) }
func (n *Notifier) OpenURL(url string)         { n.push(noticeURL, url) }

func (n *Notifier) drain() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.items
	n.items = nil
	return out
}
