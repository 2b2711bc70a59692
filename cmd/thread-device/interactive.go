package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/threadkit/threadkit-go/pkg/discovery"
	"github.com/threadkit/threadkit-go/pkg/thread"
)

// shell is the interactive command line of thread-device.
type shell struct {
	d  *device
	rl *readline.Instance
}

func newShell() (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "thread> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt. Log output
// goes here in interactive mode.
func (s *shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until the user quits or ctx ends; quitting cancels ctx.
func (s *shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	out := s.rl.Stdout()
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		cctx, done := context.WithTimeout(ctx, 5*time.Second)
		switch cmd {
		case "help", "?":
			s.printHelp()
		case "status", "s":
			printStatus(out, s.d.h)
		case "host":
			err = s.cmdHost(cctx, args)
		case "add":
			err = s.cmdAdd(cctx, args)
		case "remove", "rm":
			err = s.cmdRemove(cctx, args)
		case "clear":
			err = s.d.h.SrpRemoveAll(cctx, len(args) > 0 && args[0] == "erase")
		case "srp":
			err = s.cmdSrp(cctx, args)
		case "browse", "b":
			err = s.cmdBrowse(ctx, args)
		case "quit", "exit", "q":
			done()
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return
		default:
			fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
		done()
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Thread Device Commands:
  status              - Show role, addresses and SRP registrations
  host <name>         - Set the SRP host name (only while nothing is registered)
  add <instance> [port] - Register a service of the configured type
  remove <slot>       - Remove a registered service
  clear [erase]       - Remove the host and all services
  srp start|stop      - Start or stop the SRP client
  browse [type] [sec] - List services advertised on the link via mDNS
  quit                - Exit`)
}

func (s *shell) cmdHost(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: host <name>")
	}
	conf := s.d.h.SrpConf()
	conf.HostName = args[0]
	return s.d.h.SrpSetConf(ctx, conf)
}

func (s *shell) cmdAdd(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: add <instance> [port]")
	}
	svc := s.d.cfg.Service.service(s.d.eui)
	svc.InstanceName = args[0]
	if len(args) == 2 {
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid port: %s", args[1])
		}
		svc.Port = uint16(port)
	}
	id, err := s.d.h.SrpAddService(ctx, svc)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.rl.Stdout(), "Added %s in slot %d\n", svc.InstanceName, id)
	return nil
}

func (s *shell) cmdRemove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: remove <slot>")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid slot: %s", args[0])
	}
	return s.d.h.SrpRemoveService(ctx, thread.SrpServiceID(id))
}

func (s *shell) cmdSrp(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: srp start|stop")
	}
	switch args[0] {
	case "start":
		return s.d.h.SrpAutostart(ctx)
	case "stop":
		return s.d.h.SrpStop(ctx)
	}
	return fmt.Errorf("usage: srp start|stop")
}

// cmdBrowse lists the services the advertising proxy published on the LAN.
func (s *shell) cmdBrowse(ctx context.Context, args []string) error {
	serviceType := s.d.cfg.Service.Type
	if len(args) > 0 {
		serviceType = args[0]
	}
	wait := 3 * time.Second
	if len(args) > 1 {
		secs, err := strconv.Atoi(args[1])
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid duration: %s", args[1])
		}
		wait = time.Duration(secs) * time.Second
	}

	b, err := discovery.NewMDNSBrowser(discovery.BrowserConfig{})
	if err != nil {
		return err
	}
	defer b.Stop()
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	found, err := b.Browse(ctx, serviceType)
	if err != nil {
		return err
	}

	out := s.rl.Stdout()
	n := 0
	for svc := range found {
		n++
		fmt.Fprintf(out, "  %s.%s host=%s port=%d addrs=%v\n", svc.Instance, svc.Type, svc.Host, svc.Port, svc.Addresses)
		for k, v := range svc.Txt {
			fmt.Fprintf(out, "    %s=%s\n", k, v)
		}
	}
	fmt.Fprintf(out, "%d service(s) of type %s\n", n, serviceType)
	return nil
}
