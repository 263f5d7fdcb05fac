package repl

import "strings"

// Command is a parsed slash command.
type Command struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

// ParseCommand parses a line starting with "/". It returns nil for plain
// chat text.
func ParseCommand(text string) *Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if name == "" {
		return nil
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return &Command{Name: name, Args: args, Raw: text}
}

func helpText() string {
	return `Commands:
  /new              start a new conversation
  /history          list your conversations
  /switch <n|id>    switch to a conversation from /history
  /upload <files>   attach documents to the conversation
  /docs             list attached documents
  /rm <id>          remove an attached document
  /clear-docs       remove every attached document
  /status           show the active conversation
  /logout           log out and exit
  /quit             exit
Anything else is sent as a message.`
}
