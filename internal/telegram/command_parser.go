package telegram

import (
	"strings"
)

type CommandKind int

const (
	CmdSearch CommandKind = iota
	CmdMore
	CmdStart
	CmdHelp
	CmdUnknown
)

type Command struct {
	Kind     CommandKind
	Platform string
	Query    string
	Name     string
}

// /yt <q>            -> youtube
// /search <p> <q>    -> платформа p
// /more              -> следующая страница
// обычный текст      -> defaultPlatform
func ParseCommand(text, defaultPlatform string) Command {
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "/") {
		return Command{Kind: CmdSearch, Platform: defaultPlatform, Query: normalizeSpaces(text)}
	}

	parts := strings.SplitN(text, " ", 2)
	name := strings.ToLower(parts[0])
	// /yt@searchbeam_bot в группах
	if at := strings.Index(name, "@"); at > 0 {
		name = name[:at]
	}

	var rest string
	if len(parts) > 1 {
		rest = normalizeSpaces(parts[1])
	}

	switch name {
	case "/start":
		return Command{Kind: CmdStart, Name: name}
	case "/help":
		return Command{Kind: CmdHelp, Name: name}
	case "/more", "/next":
		return Command{Kind: CmdMore, Name: name}
	case "/yt", "/youtube":
		return Command{Kind: CmdSearch, Name: name, Platform: "youtube", Query: rest}
	case "/search":
		platform, query, _ := strings.Cut(rest, " ")
		return Command{Kind: CmdSearch, Name: name, Platform: strings.ToLower(platform), Query: query}
	default:
		return Command{Kind: CmdUnknown, Name: name}
	}
}

func normalizeSpaces(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
