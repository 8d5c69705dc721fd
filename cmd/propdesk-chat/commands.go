// ABOUTME: Slash command parsing for the chat REPL
// ABOUTME: Also reads image files into data URIs for /image

package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/2389/propdesk/internal/agent"
)

type commandKind int

const (
	cmdMessage commandKind = iota
	cmdNew
	cmdAgent
	cmdImage
	cmdHistory
	cmdHelp
	cmdQuit
)

// maxImageBytes matches the gateway's request body limit.
const maxImageBytes = 10 << 20

type command struct {
	kind commandKind
	// text is the message, or the caption for /image.
	text string
	// agent is the selection for /agent; empty means auto.
	agent agent.Type
	path  string
}

var errUsage = errors.New("usage")

// parseInput turns one line of input into a command. Lines that do not
// start with a slash are messages.
func parseInput(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdMessage, text: line}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/quit", "/exit", "/q":
		return command{kind: cmdQuit}, nil
	case "/help", "/?":
		return command{kind: cmdHelp}, nil
	case "/new":
		return command{kind: cmdNew}, nil
	case "/history":
		return command{kind: cmdHistory}, nil
	case "/agent":
		if rest == "" {
			return command{}, fmt.Errorf("%w: /agent <troubleshooting|tenancy|general|auto>", errUsage)
		}
		if rest == "auto" {
			return command{kind: cmdAgent}, nil
		}
		t, err := agent.Parse(rest)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdAgent, agent: t}, nil
	case "/image":
		path, caption, _ := strings.Cut(rest, " ")
		if path == "" {
			return command{}, fmt.Errorf("%w: /image <path> [caption]", errUsage)
		}
		return command{kind: cmdImage, path: path, text: strings.TrimSpace(caption)}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s (try /help)", name)
	}
}

// readImage loads an image file as a base64 data URI.
func readImage(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if info.Size() > maxImageBytes {
		return "", fmt.Errorf("image is %d bytes, limit is %d", info.Size(), maxImageBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /new                     Start a new conversation")
	fmt.Println("  /agent <name|auto>       Pick troubleshooting, tenancy or general; auto lets the router decide")
	fmt.Println("  /image <path> [caption]  Send a photo for analysis")
	fmt.Println("  /history                 Show the current conversation")
	fmt.Println("  /help                    Show this help")
	fmt.Println("  /quit                    Exit")
}
