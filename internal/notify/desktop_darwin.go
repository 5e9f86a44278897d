package notify

import "strconv"

func desktopCommand(title, message string) (string, []string, error) {
	script := "display notification " + strconv.Quote(message) +
		" with title " + strconv.Quote(title) + ` sound name "Glass"`
	return "osascript", []string{"-e", script}, nil
}
