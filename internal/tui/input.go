package tui

import (
	"errors"
	"fmt"
	"strings"

	"softspace/internal/client"
	"softspace/internal/models"
)

var errQuit = errors.New("quit")

const helpText = "/new  /mode slow|vent  /open <id>  /login <email> <password>  /signup <email> <password>  /logout  /usage  /upgrade  /billing  /quit"

// parseInput turns a line typed by the user into a client command. Lines
// without a leading slash are messages.
func parseInput(line string) (client.Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return client.SendMessage{Text: line}, nil
	}

	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/quit", "/exit":
		return nil, errQuit
	case "/new":
		return client.StartNewChat{}, nil
	case "/mode":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: /mode slow|vent")
		}
		mode, err := models.ParseMode(args[0])
		if err != nil {
			return nil, err
		}
		return client.SwitchMode{Mode: mode}, nil
	case "/open":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: /open <conversation id>")
		}
		return client.OpenConversation{ID: args[0]}, nil
	case "/login", "/signup":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: %s <email> <password>", name)
		}
		if name == "/login" {
			return client.Login{Email: args[0], Password: args[1]}, nil
		}
		return client.Signup{Email: args[0], Password: args[1]}, nil
	case "/logout":
		return client.Logout{}, nil
	case "/usage":
		return client.RefreshUsage{}, nil
	case "/upgrade":
		return client.Checkout{}, nil
	case "/billing":
		return client.ManageBilling{}, nil
	}
	return nil, fmt.Errorf("unknown command %s (try %s)", name, helpText)
}
