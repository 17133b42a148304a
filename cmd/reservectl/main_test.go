package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/reservectl/internal/host"
	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/danmuck/reservectl/internal/testutil/testlog"
	"github.com/gagliardetto/solana-go"
)

func writeNodeConfig(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+".toml")
	body := fmt.Sprintf("name = %q\nstore_path = %q\n\n[log]\nlevel = \"error\"\n", name, filepath.Join(dir, name+".db"))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write node config: %v", err)
	}
	return path
}

func initAccounts() (string, solana.PublicKey) {
	authority := solana.NewWallet().PublicKey()
	entries := []string{"state", authority.String() + "+s"}
	for len(entries) < 10 {
		entries = append(entries, solana.NewWallet().PublicKey().String())
	}
	return strings.Join(entries, ","), authority
}

func initData() string {
	init := protocol.InitPayload{
		TokenIssuer:  solana.NewWallet().PublicKey(),
		YieldToken:   solana.NewWallet().PublicKey(),
		SOLStrategy:  solana.NewWallet().PublicKey(),
		USDCStrategy: solana.NewWallet().PublicKey(),
		Accelerator:  solana.NewWallet().PublicKey(),
	}
	return hex.EncodeToString(protocol.Instruction(protocol.OpInitialize, init.Encode()))
}

func TestInvokeStateAndReplay(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	cfg := writeNodeConfig(t, dir, "primary")
	frames := filepath.Join(dir, "frames.bin")
	accounts, authority := initAccounts()

	var out bytes.Buffer
	err := run([]string{"invoke", "-config", cfg, "-data", initData(), "-accounts", accounts, "-record", frames}, &out)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var receipt host.Receipt
	if err := json.Unmarshal(out.Bytes(), &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if !receipt.Committed || receipt.Opcode != protocol.OpInitialize.String() {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	out.Reset()
	if err := run([]string{"state", "-config", cfg}, &out); err != nil {
		t.Fatalf("state: %v", err)
	}
	if !strings.Contains(out.String(), `"initialized": true`) || !strings.Contains(out.String(), authority.String()) {
		t.Fatalf("state not persisted: %s", out.String())
	}

	out.Reset()
	err = run([]string{"invoke", "-config", cfg, "-data", initData(), "-accounts", accounts}, &out)
	if err == nil {
		t.Fatalf("expected second initialize to be rejected")
	}

	replica := writeNodeConfig(t, dir, "replica")
	out.Reset()
	if err := run([]string{"replay", "-config", replica, "-file", frames}, &out); err != nil {
		t.Fatalf("replay: %v", err)
	}
	out.Reset()
	if err := run([]string{"state", "-config", replica}, &out); err != nil {
		t.Fatalf("replica state: %v", err)
	}
	if !strings.Contains(out.String(), authority.String()) {
		t.Fatalf("replay did not reproduce authority: %s", out.String())
	}
}

func TestConfigWriteAndValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "node.toml")
	var out bytes.Buffer
	if err := run([]string{"config", "-output", path}, &out); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := run([]string{"config", "-validate", "-input", path}, &out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := run([]string{"config", "-output", path}, &out); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
}

func TestParseAccounts(t *testing.T) {
	testlog.Start(t)
	state := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	got, err := parseAccounts("state, "+other.String()+"+s+w", state)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0].Key != state || !got[0].Writable || !got[1].Signer || !got[1].Writable {
		t.Fatalf("unexpected accounts %+v", got)
	}
	if _, err := parseAccounts("state+x", state); err == nil {
		t.Fatalf("expected unknown flag error")
	}
}

func TestUnknownCommand(t *testing.T) {
	testlog.Start(t)
	if err := run([]string{"bogus"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

func TestHelpExplainsCollaboratorLifetime(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	if err := run([]string{"help"}, &out); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(out.String(), "only under serve or replay") {
		t.Fatalf("help text does not explain collaborator lifetime: %s", out.String())
	}
}
