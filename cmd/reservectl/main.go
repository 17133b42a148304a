package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/reservectl/internal/config"
	"github.com/danmuck/reservectl/internal/emergency"
	"github.com/danmuck/reservectl/internal/logging"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/protocol/frame"
	"github.com/danmuck/reservectl/internal/server"
	"github.com/gagliardetto/solana-go"
)

const usage = `usage: reservectl <command> [flags]

commands:
  serve    run the admin HTTP server
  invoke   run one instruction against the local store; simulated
           collaborators start fresh each run, so multi-step flows
           (mint then redeem) stay consistent only under serve or replay
  replay   run every frame in a file in one process
  state    print the committed controller state
  config   write or validate a config template`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "reservectl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	ctx := context.Background()
	switch args[0] {
	case "serve":
		return cmdServe(ctx, args[1:])
	case "invoke":
		return cmdInvoke(ctx, args[1:], out)
	case "replay":
		return cmdReplay(ctx, args[1:], out)
	case "state":
		return cmdState(ctx, args[1:], out)
	case "config":
		return cmdConfig(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "node config path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := openNode(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer n.Close()
	srv := server.New(n.cfg.Name, n.cfg.Addr, n.cfg.CorsOrigins, n.env, n.store)
	srv.RequireToken(n.cfg.AdminToken)
	if n.cfg.TLSCert != "" {
		if err := srv.UseTLS(n.cfg.TLSCert, n.cfg.TLSKey); err != nil {
			return err
		}
	}
	return srv.Serve()
}

func cmdInvoke(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("invoke", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "node config path")
	data := fs.String("data", "", "instruction data as hex")
	accountList := fs.String("accounts", "state", "comma separated accounts: <base58|state>[+s][+w]")
	record := fs.String("record", "", "append the invoked frame to this file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: reservectl invoke -data <hex> [-accounts ...] [-config path] [-record frames]")
		fmt.Fprintln(fs.Output(), "collaborator state is rebuilt from the sim fixture per run; only serve and replay keep it consistent across instructions")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(*data, "0x"))
	if err != nil {
		return fmt.Errorf("decode -data: %w", err)
	}

	n, err := openNode(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer n.Close()

	accounts, err := parseAccounts(*accountList, n.ctrl.StateKey())
	if err != nil {
		return err
	}
	receipt, ierr := n.env.Invoke(ctx, accounts, raw)
	if err := writeJSON(out, receipt); err != nil {
		return err
	}
	if ierr != nil {
		return ierr
	}
	if *record != "" {
		return appendFrame(*record, frame.Frame{Accounts: accounts, Data: raw})
	}
	return nil
}

func cmdReplay(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "node config path")
	file := fs.String("file", "", "file of binary frames")
	keepGoing := fs.Bool("continue", false, "keep going after a rejected frame")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("replay requires -file")
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := openNode(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer n.Close()
	return replayFrames(ctx, n, f, out, *keepGoing)
}

func replayFrames(ctx context.Context, n *node, r io.Reader, out io.Writer, keepGoing bool) error {
	limits := frame.DefaultLimits()
	for i := 0; ; i++ {
		fr, err := frame.ReadFrame(r, limits)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		receipt, ierr := n.env.Invoke(ctx, fr.Accounts, fr.Data)
		if err := writeJSON(out, receipt); err != nil {
			return err
		}
		if ierr != nil && !keepGoing {
			return fmt.Errorf("frame %d: %w", i, ierr)
		}
	}
}

func cmdState(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "node config path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := openNode(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer n.Close()
	st := n.env.State()
	return writeJSON(out, map[string]any{
		"state_account": n.ctrl.StateKey().String(),
		"state":         st,
		"phase":         emergency.PhaseOf(st.Record, st.Params.MinCollateralRatioBps).String(),
	})
}

func cmdConfig(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	kind := fs.String("kind", "node", "config kind: node|sim")
	output := fs.String("output", "", "output path for config template")
	validate := fs.Bool("validate", false, "validate an existing config file")
	input := fs.String("input", "", "config path for validation")
	force := fs.Bool("force", false, "overwrite existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.ConfigureRuntime()

	if *validate {
		if *input == "" {
			return errors.New("config -validate requires -input")
		}
		switch *kind {
		case "node":
			if _, err := config.LoadNodeConfig(*input); err != nil {
				return err
			}
		case "sim":
			if _, err := loadSimConfig(*input); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown kind: %s", *kind)
		}
		fmt.Fprintf(out, "validated %s config at %s\n", *kind, *input)
		return nil
	}

	if *output == "" {
		return errors.New("config requires -output or -validate")
	}
	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s config template to %s\n", *kind, *output)
	return nil
}

// parseAccounts reads entries like "state+w" or "<base58>+s+w".
func parseAccounts(list string, stateKey solana.PublicKey) ([]protocol.Account, error) {
	var accounts []protocol.Account
	for i, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "+")
		var acct protocol.Account
		if parts[0] == "state" {
			acct.Key = stateKey
			acct.Writable = true
		} else {
			key, err := solana.PublicKeyFromBase58(parts[0])
			if err != nil {
				return nil, fmt.Errorf("account %d: %w", i, err)
			}
			acct.Key = key
		}
		for _, flagName := range parts[1:] {
			switch flagName {
			case "s":
				acct.Signer = true
			case "w":
				acct.Writable = true
			default:
				return nil, fmt.Errorf("account %d: unknown flag %q", i, flagName)
			}
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func appendFrame(path string, f frame.Frame) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := frame.WriteFrame(file, f, frame.DefaultLimits()); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
