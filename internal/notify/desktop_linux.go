package notify

func desktopCommand(title, message string) (string, []string, error) {
	return "notify-send", []string{"--urgency=critical", "--app-name=betwatch", title, message}, nil
}
