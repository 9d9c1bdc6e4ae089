// Package cli parses murmur command lines.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandRun            Command = "run"
	CommandPress          Command = "press"
	CommandStop           Command = "stop"
	CommandSwitchProvider Command = "switch-provider"
	CommandSwitchVoice    Command = "switch-voice"
	CommandStatus         Command = "status"
	CommandDevices        Command = "devices"
	CommandDoctor         Command = "doctor"
	CommandVersion        Command = "version"
	CommandHelp           Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:            {},
	CommandPress:          {},
	CommandStop:           {},
	CommandSwitchProvider: {},
	CommandSwitchVoice:    {},
	CommandStatus:         {},
	CommandDevices:        {},
	CommandDoctor:         {},
	CommandVersion:        {},
	CommandHelp:           {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	EnvFile    string
	LogLevel   string
	Console    bool
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	fs := pflag.NewFlagSet("murmur", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.StringVar(&parsed.ConfigPath, "config", "", "config file path")
	fs.StringVarP(&parsed.EnvFile, "env-file", "e", "", "dotenv file with API keys")
	fs.StringVarP(&parsed.LogLevel, "log-level", "l", "", "log level")
	fs.BoolVar(&parsed.Console, "console", false, "mirror logs to stderr")
	help := fs.BoolP("help", "h", false, "show help")
	showVersion := fs.Bool("version", false, "show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return parsed, nil
		}
		return Parsed{}, err
	}

	switch {
	case *help:
		return parsed, nil
	case *showVersion:
		parsed.Command = CommandVersion
		parsed.ShowHelp = false
		return parsed, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return parsed, nil
	}
	cmd := Command(rest[0])
	if _, ok := validCommands[cmd]; !ok {
		return Parsed{}, fmt.Errorf("unknown command: %s", rest[0])
	}
	if len(rest) > 1 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", rest[0])
	}
	parsed.Command = cmd
	parsed.ShowHelp = cmd == CommandHelp
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command>

Commands:
  run              Run the voice controller in the foreground
  press            Start an interaction on the running controller
  stop             Stop the active recording
  switch-provider  Cycle to the next inference provider (clears history)
  switch-voice     Cycle to the next synthesis voice
  status           Print controller state
  devices          List available input devices
  doctor           Run configuration and environment checks
  version          Print version information
  help             Show this help

Flags:
  --config PATH         Config file path (default: $XDG_CONFIG_HOME/murmur/config.jsonc)
  -e, --env-file PATH   Dotenv file with API keys (default: .env beside the config)
  -l, --log-level LVL   debug, info, warn, or error (overrides config)
  --console             Mirror logs to stderr
  -h, --help            Show help
  --version             Show version
`, binaryName)
}
