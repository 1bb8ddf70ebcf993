package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wxvault/internal/account"
	"github.com/matheus3301/wxvault/internal/batch"
	"github.com/matheus3301/wxvault/internal/cipher"
	"github.com/matheus3301/wxvault/internal/config"
	"github.com/matheus3301/wxvault/internal/keyscan"
	"github.com/matheus3301/wxvault/internal/lock"
	"github.com/matheus3301/wxvault/internal/logging"
	"github.com/matheus3301/wxvault/internal/version"
)

var (
	jsonFlag    = flag.Bool("json", false, "output in JSON format")
	verboseFlag = flag.Bool("verbose", false, "debug logging")
	dirFlag     = flag.String("dir", "", "staging directory (defaults to the most recent decrypt)")
	outFlag     = flag.String("out", "", "output path")
	keyFlag     = flag.String("key", "", "hex database key for offline decryption")
	srcFlag     = flag.String("src", "", "source database directory for offline decryption")
	verFlag     = flag.Int("version", 0, "schema version for offline decryption (3 or 4)")
	wxidFlag    = flag.String("wxid", "", "account id for offline decryption")
	forceFlag   = flag.Bool("force", false, "re-decrypt databases that are already staged")
	workersFlag = flag.Int("workers", 0, "parallel decryption workers (defaults to CPU count)")
	tableFlag   = flag.String("table", "", "build compatibility table (overrides config)")
	fromFlag    = flag.String("from", "", "message window start (2006-01-02 or RFC 3339)")
	toFlag      = flag.String("to", "", "message window end (2006-01-02 or RFC 3339)")
	typeFlag    = flag.String("type", "", "message type filter (text, image, audio, ...)")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	switch args[0] {
	case "scan":
		cmdScan(ctx)
	case "decrypt":
		cmdDecrypt(ctx)
	case "contacts":
		cmdContacts()
	case "members":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wxvault members <chatroom-wxid>")
			os.Exit(1)
		}
		cmdMembers(args[1])
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wxvault [--from t] [--to t] [--type kind] messages <wxid>")
			os.Exit(1)
		}
		cmdMessages(args[1])
	case "avatar":
		if len(args) < 2 || *outFlag == "" {
			fmt.Fprintln(os.Stderr, "usage: wxvault --out <file> avatar <wxid>")
			os.Exit(1)
		}
		cmdAvatar(args[1], *outFlag)
	case "dat":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wxvault dat <src.dat> <dst>")
			os.Exit(1)
		}
		cmdDat(args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wxvault [flags] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  scan             Find running clients and extract database keys")
	fmt.Fprintln(os.Stderr, "  decrypt          Decrypt account databases into a staging directory")
	fmt.Fprintln(os.Stderr, "  contacts         List contacts of a staged account")
	fmt.Fprintln(os.Stderr, "  members <id>     Show a chatroom roster")
	fmt.Fprintln(os.Stderr, "  messages <id>    Print the chat history with a contact or chatroom")
	fmt.Fprintln(os.Stderr, "  avatar <id>      Write a contact's avatar image to --out")
	fmt.Fprintln(os.Stderr, "  dat <src> <dst>  De-obfuscate an auxiliary media file")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return config.Default()
	}
	return cfg
}

func newLogger() *zap.Logger {
	logger, err := logging.New(config.LogPath(), *verboseFlag)
	if err != nil {
		fail(err)
	}
	return logger
}

func loadTable(cfg *config.Config) *version.Table {
	path := *tableFlag
	if path == "" {
		path = cfg.VersionTable
	}
	if path == "" {
		fail(fmt.Errorf("no build compatibility table configured; pass --table or set version_table in %s", config.ConfigPath()))
	}
	table, err := version.LoadTable(path)
	if err != nil {
		fail(err)
	}
	return table
}

func cmdScan(ctx context.Context) {
	cfg := loadConfig()
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	accounts := scanAccounts(ctx, cfg, logger)
	if *jsonFlag {
		type row struct {
			Wxid    string `json:"wxid"`
			Name    string `json:"name"`
			Dir     string `json:"dir"`
			Version int    `json:"version"`
			Key     string `json:"key"`
		}
		rows := make([]row, 0, len(accounts))
		for _, a := range accounts {
			rows = append(rows, row{a.Wxid, a.Name, a.Dir, int(a.Version), hex.EncodeToString(a.Key)})
		}
		outputJSON(rows)
		return
	}
	for _, a := range accounts {
		fmt.Printf("%-24s %s  %s\n", a.Wxid, a.Version, a.Dir)
		fmt.Printf("  key: %s\n", hex.EncodeToString(a.Key))
		if a.XORKey != 0 {
			fmt.Printf("  xor: 0x%02x\n", a.XORKey)
		}
	}
}

func scanAccounts(ctx context.Context, cfg *config.Config, logger *zap.Logger) []*account.Account {
	table := loadTable(cfg)
	targets, err := keyscan.FindTargets(ctx)
	if err != nil {
		fail(err)
	}
	if len(targets) == 0 {
		fail(keyscan.ErrKeyNotFound)
	}
	accounts, err := keyscan.NewScanner(table, logger).Scan(ctx, targets)
	if err != nil {
		fail(err)
	}
	return accounts
}

func cmdDecrypt(ctx context.Context) {
	cfg := loadConfig()
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	var accounts []*account.Account
	if *keyFlag != "" {
		accounts = []*account.Account{offlineAccount(cfg)}
	} else {
		accounts = scanAccounts(ctx, cfg, logger)
	}

	for _, acct := range accounts {
		// The scanner resolved the profile against the compatibility
		// table; decryption must use those exact parameters.
		profile := acct.Profile
		if !profile.Version.Valid() {
			fail(fmt.Errorf("%w: account %s carries no decryption profile", version.ErrUnsupportedVersion, acct.Wxid))
		}

		src := filepath.Join(acct.Dir, account.StagingSubdir(acct.Version))
		if *srcFlag != "" {
			src = *srcFlag
		}
		dst := config.AccountDir(cfg.OutputDir, acct.Wxid)

		lk, err := lock.Acquire(dst)
		if err != nil {
			fail(err)
		}

		opts := batch.Options{Workers: *workersFlag, Force: *forceFlag}
		manifest, err := batch.Run(ctx, src, dst, profile, acct.Key, opts, logger)
		if err != nil {
			_ = lk.Release()
			fail(err)
		}

		err = acct.Save(dst)
		_ = lk.Release()
		if err != nil {
			fail(err)
		}
		cfg.AddRecentDatabase(dst, acct.Version)
		cfg.AddDecryptHistory(acct.Wxid, acct.Name, dst, acct.Version)

		decrypted, skipped, failed := manifest.Counts()
		if *jsonFlag {
			outputJSON(map[string]any{
				"wxid":      acct.Wxid,
				"dir":       dst,
				"run_id":    manifest.RunID,
				"decrypted": decrypted,
				"skipped":   skipped,
				"failed":    failed,
			})
		} else {
			fmt.Printf("%s: %d decrypted, %d skipped, %d failed -> %s\n",
				acct.Wxid, decrypted, skipped, failed, dst)
		}
		if failed > 0 {
			for _, e := range manifest.Entries() {
				if e.Err != nil {
					fmt.Fprintf(os.Stderr, "  %s: %v\n", e.Source, e.Err)
				}
			}
		}
	}

	if err := config.Save(config.ConfigPath(), cfg); err != nil {
		fail(err)
	}
}

// offlineAccount builds an account record from the --key/--src/--version
// flags so databases copied off another machine can be decrypted without
// a running client.
func offlineAccount(cfg *config.Config) *account.Account {
	if *srcFlag == "" {
		fail(fmt.Errorf("offline decryption needs --src"))
	}
	key, err := hex.DecodeString(*keyFlag)
	if err != nil {
		fail(fmt.Errorf("parse --key: %w", err))
	}
	v := version.Version(*verFlag)
	if *verFlag == 0 {
		v = version.Version(cfg.DefaultVersion)
	}
	if !v.Valid() {
		fail(fmt.Errorf("%w: %d", version.ErrUnsupportedVersion, *verFlag))
	}
	wxid := *wxidFlag
	if wxid == "" {
		wxid = filepath.Base(filepath.Clean(*srcFlag))
	}
	// Offline runs have no build id to resolve; base scheme
	// parameters are all that can be assumed.
	profile, err := version.BaseProfile(v)
	if err != nil {
		fail(err)
	}
	return &account.Account{Wxid: wxid, Dir: *srcFlag, Key: key, Version: v, Profile: profile}
}

func cmdDat(src, dst string) {
	dir := stagingDir()
	acct, err := account.Load(dir)
	if err != nil {
		fail(err)
	}
	if acct.XORKey == 0 {
		fail(fmt.Errorf("account %s has no auxiliary obfuscation code", acct.Wxid))
	}
	if err := cipher.DecodeDat(src, dst, acct.XORKey); err != nil {
		fail(err)
	}
	fmt.Printf("wrote %s\n", dst)
}
