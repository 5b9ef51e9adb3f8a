package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"rivoo/internal/assistant"
	"rivoo/internal/control"
	"rivoo/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 2*time.Minute, "How long to wait for the daemon")
	raw := cli.BoolP("json", "j", false, "Print the raw reply")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: rivoo-ctl [flags] [command]\n\ncommands (default toggle):\n")
		for _, c := range control.Commands {
			fmt.Fprintf(os.Stderr, "  %s\n", c)
		}
		fmt.Fprintf(os.Stderr, "\nflags:\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	cmd, arg := "toggle", ""
	if args := cli.Args(); len(args) > 0 {
		cmd, arg = args[0], strings.Join(args[1:], " ")
	}

	reply, err := ipc.SendCommand(*socket, cmd, arg, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rivoo-daemon not running:", err)
		os.Exit(1)
	}

	if *raw {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(reply)
	} else {
		printReply(cmd, reply)
	}

	if !reply.OK {
		os.Exit(1)
	}
}

func printReply(cmd string, r control.Reply) {
	if !r.OK {
		fmt.Fprintln(os.Stderr, "error:", r.Error)
		return
	}

	switch cmd {
	case "voices":
		for _, v := range r.Voices {
			fmt.Printf("%-24s %s\n", v.Name, v.Language)
		}
		return
	case "history":
		if r.State == nil {
			return
		}
		for _, m := range r.State.Conversation {
			fmt.Printf("%-9s %s\n", m.Role+":", m.Content)
		}
		return
	}

	if st := r.State; st != nil {
		fmt.Printf("status: %s  auto: %t  voice: %t (%s)\n", st.Status, st.AutoMode, st.VoiceMode, st.Voice)
		if st.Error != "" {
			fmt.Println("last error:", st.Error)
		}
		if cmd == "say" || cmd == "stop" || cmd == "file" {
			if n := len(st.Conversation); n > 0 && st.Conversation[n-1].Role == assistant.RoleAssistant {
				fmt.Println(st.Conversation[n-1].Content)
			}
		}
	}
}
