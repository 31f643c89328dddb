// Command codeforge is the CLI surface of spec.md §6: `auth
// {login|logout|list}`, `run <prompt>`, and `status`, dispatched with the
// teacher's own switch-on-os.Args[1] style (cmd/godex/main.go) rather
// than a CLI framework, since the teacher never reaches for one despite
// cobra being available elsewhere in the pack.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/codeforge/codeforge/internal/aliases"
	"github.com/codeforge/codeforge/internal/config"
	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/llm"
	"github.com/codeforge/codeforge/internal/metrics"
	"github.com/codeforge/codeforge/internal/oauth/devicecode"
	"github.com/codeforge/codeforge/internal/oauth/pkce"
	"github.com/codeforge/codeforge/internal/orchestrator"
	"github.com/codeforge/codeforge/internal/orchestrator/agent"
	"github.com/codeforge/codeforge/internal/orchestrator/taskqueue"
	"github.com/codeforge/codeforge/internal/provider/anthropic"
	"github.com/codeforge/codeforge/internal/provider/codex"
	"github.com/codeforge/codeforge/internal/provider/google"
	"github.com/codeforge/codeforge/internal/provider/openai"
	"github.com/codeforge/codeforge/internal/proxy"
	"github.com/codeforge/codeforge/internal/registry"
	"github.com/codeforge/codeforge/internal/tool"
	"github.com/codeforge/codeforge/internal/tool/bashtool"
	"github.com/codeforge/codeforge/internal/tool/edittool"
	"github.com/codeforge/codeforge/internal/tool/globtool"
	"github.com/codeforge/codeforge/internal/tool/greptool"
	"github.com/codeforge/codeforge/internal/tool/multiedittool"
	"github.com/codeforge/codeforge/internal/tool/readtool"
	"github.com/codeforge/codeforge/internal/tool/todotool"
	"github.com/codeforge/codeforge/internal/tool/watchtool"
	"github.com/codeforge/codeforge/internal/tool/webfetchtool"
	"github.com/codeforge/codeforge/internal/tool/websearchtool"
	"github.com/codeforge/codeforge/internal/tool/writetool"
)

// Exit codes, per spec.md §6.
const (
	exitSuccess             = 0
	exitInvalidUsage         = 2
	exitAuthenticationNeeded = 3
	exitPermissionDenied     = 4
	exitToolExecutionFailed  = 5
	exitInternal             = 10
)

var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitInvalidUsage)
	}

	switch os.Args[1] {
	case "--version", "version", "-v":
		fmt.Println(Version)
		return
	case "run":
		if err := runRun(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(exitCodeFor(err))
		}
	case "auth":
		if err := runAuth(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(exitCodeFor(err))
		}
	case "status":
		if err := runStatus(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(exitCodeFor(err))
		}
	case "proxy":
		if err := runProxy(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(exitCodeFor(err))
		}
	case "probe":
		if err := runProbe(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(exitCodeFor(err))
		}
	case "aliases":
		if err := runAliases(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(exitCodeFor(err))
		}
	default:
		usage()
		os.Exit(exitInvalidUsage)
	}
}

// exitCodeFor maps an errs.Kind to spec.md §6's exit codes; untagged
// errors fall back to the internal-error code.
func exitCodeFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindAuthentication:
		return exitAuthenticationNeeded
	case errs.KindPermissionDenied:
		return exitPermissionDenied
	case errs.KindExecutionFailed:
		return exitToolExecutionFailed
	case errs.KindInvalidParameters:
		return exitInvalidUsage
	default:
		return exitInternal
	}
}

// buildRegistry wires the four provider adapters into a Registry using
// cfg.Providers' preference order and env-var fallbacks, mirroring the
// teacher's buildHarnessRouter but keyed off the Provider Registry
// instead of a per-model-string router.
func buildRegistry(cfg config.Config, store *credstore.Store) *registry.Registry {
	reg := registry.New(store)
	factories := map[string]registry.Factory{
		"anthropic": func(s *credstore.Store) llm.Provider { return anthropic.New(s) },
		"openai":    func(s *credstore.Store) llm.Provider { return openai.New(s) },
		"google":    func(s *credstore.Store) llm.Provider { return google.New(s) },
		"codex":     func(s *credstore.Store) llm.Provider { return codex.New(s) },
	}
	for id, settings := range cfg.Providers.Entries {
		factory, ok := factories[id]
		if !ok || !settings.Enabled {
			continue
		}
		reg.Register(id, factory, settings.EnvVar, settings.Preference)
	}
	return reg
}

// buildToolRegistry assembles ten of the eleven tools of spec.md §4.5
// behind one permission-gated, audit-logged Registry. The eleventh, "todo",
// is registered separately by wireTaskQueue once a task queue exists to
// back it, since the tool and the queue are mutually referential
// (the queue's executor needs the tool registry; the tool needs the
// queue's Submitter view).
func buildToolRegistry(audit *tool.AuditSink) *tool.Registry {
	tools := tool.NewRegistry(tool.AllowAllPermissions{}, audit)
	tools.Register(readtool.New())
	tools.Register(writetool.New())
	tools.Register(edittool.New())
	tools.Register(multiedittool.New())
	tools.Register(bashtool.New())
	tools.Register(greptool.New())
	tools.Register(globtool.New())
	tools.Register(webfetchtool.New())
	tools.Register(websearchtool.New())
	tools.Register(watchtool.New())
	return tools
}

// wireTaskQueue builds the orchestrator's virtual-agent dispatcher
// (internal/orchestrator/agent.Manager) bound to one default agent type
// running cfg's default provider/model, starts a taskqueue.Queue on top
// of it, and registers the "todo" tool against that queue's Submitter
// view. Returns the queue so the caller can run and close it alongside
// the session.
func wireTaskQueue(cfg config.Config, reg *registry.Registry, tools *tool.Registry) *taskqueue.Queue {
	manager := agent.New(reg, tools)
	manager.Register(agent.Type{
		Name:         "default",
		Capabilities: []string{"general"},
		ProviderID:   cfg.Exec.DefaultProvider,
		Model:        cfg.Exec.DefaultModel,
	})
	queue := taskqueue.New(manager, 4)
	tools.Register(todotool.New(queue, newRunID))
	return queue
}

func runRun(args []string) error {
	if len(args) == 0 {
		return errs.New(errs.KindInvalidParameters, "usage: codeforge run <prompt>")
	}
	prompt := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return errs.Wrap(errs.KindInternal, "load config", err)
	}

	store := credstore.New(cfg.Auth.CredentialStorePath)
	reg := buildRegistry(cfg, store)

	var audit *tool.AuditSink
	auditPath := os.Getenv("CODEFORGE_AUDIT_LOG")
	if auditPath != "" {
		audit, err = tool.NewAuditSink(auditPath)
		if err != nil {
			return errs.Wrap(errs.KindIO, "open audit log", err)
		}
		defer audit.Close()
	} else {
		audit = tool.NewDiscardAuditSink()
	}
	tools := buildToolRegistry(audit)

	collector, err := metrics.NewCollector(cfg.Metrics.CollectorConfig())
	if err != nil {
		return errs.Wrap(errs.KindInternal, "start metrics collector", err)
	}
	defer collector.Close()

	model := aliases.ExpandAlias(cfg.Proxy.Aliases, cfg.Exec.DefaultModel)
	handle, err := reg.GetModel(cfg.Exec.DefaultProvider, model)
	if err != nil {
		handle, err = reg.GetBestModel(model)
		if err != nil {
			return err
		}
	}

	ctx := context.Background()
	if cfg.Exec.MaxElapsed > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Exec.MaxElapsed)
		defer cancel()
	}

	queue := wireTaskQueue(cfg, reg, tools)
	defer queue.Close()
	go queue.Run(ctx)

	session := orchestrator.NewSession(newRunID())
	ectx := tool.ExecutionContext{
		SessionID:  session.ID,
		WorkingDir: cfg.Exec.WorkingDir,
		Abort:      tool.NewAbortSignal(),
	}

	start := time.Now()
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	opts := orchestrator.Options{
		MaxTurns:         cfg.Exec.MaxTurns,
		ExecutionContext: ectx,
		OnEvent: func(ev orchestrator.Event) error {
			switch ev.Kind {
			case orchestrator.EventTextDelta:
				fmt.Fprint(out, ev.TextDelta)
			case orchestrator.EventFinish:
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	_, runErr := orchestrator.Loop(ctx, session, handle.Provider, handle.ModelID, tools, prompt, opts)
	collector.Record(metrics.RequestMetric{
		Timestamp: start,
		Provider:  cfg.Exec.DefaultProvider,
		Model:     handle.ModelID,
		Latency:   time.Since(start),
		Status:    statusFor(runErr),
		Error:     errString(runErr),
	})
	return runErr
}

func statusFor(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func newRunID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}

func runAuth(args []string) error {
	if len(args) == 0 {
		return errs.New(errs.KindInvalidParameters, "usage: codeforge auth {login|logout|list} [provider]")
	}

	cfg, err := config.Load()
	if err != nil {
		return errs.Wrap(errs.KindInternal, "load config", err)
	}
	store := credstore.New(cfg.Auth.CredentialStorePath)

	switch args[0] {
	case "login":
		if len(args) < 2 {
			return errs.New(errs.KindInvalidParameters, "usage: codeforge auth login <provider>")
		}
		return runAuthLogin(store, args[1])
	case "logout":
		if len(args) < 2 {
			return errs.New(errs.KindInvalidParameters, "usage: codeforge auth logout <provider>")
		}
		return store.Remove(args[1])
	case "list":
		return runAuthList(store)
	default:
		return errs.New(errs.KindInvalidParameters, "unknown auth command: "+args[0]+" (use login, logout, or list)")
	}
}

func runAuthList(store *credstore.Store) error {
	providers, err := store.List()
	if err != nil {
		return errs.Wrap(errs.KindIO, "list credentials", err)
	}
	if len(providers) == 0 {
		fmt.Println("no providers configured")
		return nil
	}
	for _, id := range providers {
		rec, ok, err := store.Get(id)
		if err != nil || !ok {
			continue
		}
		status := string(rec.Type)
		if rec.IsExpired(time.Now()) {
			status += " (expired)"
		}
		fmt.Printf("%-10s %s\n", id, status)
	}
	return nil
}

// runAuthLogin walks the interactive PKCE or device-code flow for
// provider, matching spec.md §4.3: Anthropic uses PKCE, Codex (GitHub)
// uses the device-code flow, and OpenAI/Google accept a pasted API key.
func runAuthLogin(store *credstore.Store, provider string) error {
	switch provider {
	case "anthropic":
		return loginPKCE(store, provider)
	case "codex":
		return loginDeviceCode(store, provider)
	case "openai", "google":
		return loginAPIKey(store, provider)
	default:
		return errs.New(errs.KindInvalidParameters, "unknown provider: "+provider)
	}
}

func loginPKCE(store *credstore.Store, provider string) error {
	cfg := pkce.AnthropicConfig()
	challenge, err := pkce.NewChallenge()
	if err != nil {
		return errs.Wrap(errs.KindInternal, "generate pkce challenge", err)
	}

	fmt.Println("Open this URL in your browser and approve access:")
	fmt.Println(pkce.AuthorizeURL(cfg, challenge))
	fmt.Print("Paste the code shown after approval: ")

	reader := bufio.NewReader(os.Stdin)
	pasted, _ := reader.ReadString('\n')
	code, state := pkce.ParsePastedCode(strings.TrimSpace(pasted))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pkce.Exchange(ctx, cfg, challenge, code, store, provider); err != nil {
		return errs.Wrap(errs.KindAuthentication, "exchange authorization code", err)
	}
	_ = state
	fmt.Println("anthropic: logged in")
	return nil
}

func loginDeviceCode(store *credstore.Store, provider string) error {
	cfg := devicecode.Config{
		ClientID:      "codeforge-cli",
		DeviceCodeURL: "https://github.com/login/device/code",
		TokenURL:      "https://github.com/login/oauth/access_token",
		Scopes:        []string{"repo", "read:user"},
	}

	ctx := context.Background()
	auth, err := devicecode.RequestAuthorization(ctx, cfg)
	if err != nil {
		return errs.Wrap(errs.KindAuthentication, "request device authorization", err)
	}

	fmt.Printf("Go to %s and enter code: %s\n", auth.VerificationURI, auth.UserCode)
	if err := devicecode.Poll(ctx, cfg, auth, store, provider); err != nil {
		return errs.Wrap(errs.KindAuthentication, "poll for device token", err)
	}
	fmt.Println("codex: logged in")
	return nil
}

func loginAPIKey(store *credstore.Store, provider string) error {
	fmt.Printf("Paste your %s API key: ", provider)
	reader := bufio.NewReader(os.Stdin)
	key, _ := reader.ReadString('\n')
	key = strings.TrimSpace(key)
	if key == "" {
		return errs.New(errs.KindInvalidParameters, "empty API key")
	}
	if err := store.Set(provider, credstore.Record{Type: credstore.TypeAPIKey, Key: key}); err != nil {
		return errs.Wrap(errs.KindIO, "save credential", err)
	}
	fmt.Printf("%s: logged in\n", provider)
	return nil
}

func runStatus(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errs.Wrap(errs.KindInternal, "load config", err)
	}
	store := credstore.New(cfg.Auth.CredentialStorePath)
	reg := buildRegistry(cfg, store)

	available, err := reg.ListAvailableProviders()
	if err != nil {
		return errs.Wrap(errs.KindIO, "list available providers", err)
	}

	fmt.Println("codeforge status")
	fmt.Println("=================")
	fmt.Printf("config:   %s\n", config.DefaultPath())
	fmt.Printf("credstore: %s\n", cfg.Auth.CredentialStorePath)
	fmt.Printf("default provider: %s (model %s)\n", cfg.Exec.DefaultProvider, cfg.Exec.DefaultModel)
	if len(available) == 0 {
		fmt.Println("available providers: none")
		return nil
	}
	fmt.Println("available providers:")
	for _, id := range available {
		fmt.Printf("  - %s\n", id)
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: codeforge run <prompt>")
	fmt.Fprintln(os.Stderr, "       codeforge auth login <provider> | logout <provider> | list")
	fmt.Fprintln(os.Stderr, "       codeforge status")
	fmt.Fprintln(os.Stderr, "       codeforge proxy [--listen ADDR]")
	fmt.Fprintln(os.Stderr, "       codeforge probe <model> [--url URL] [--key KEY] [--json]")
	fmt.Fprintln(os.Stderr, "       codeforge aliases list | update [--dry-run]")
}

// runProxy starts the OpenAI-compatible HTTP façade (internal/proxy) in
// front of the Provider Registry, blocking until SIGINT/SIGTERM.
func runProxy(args []string) error {
	fs := flag.NewFlagSet("proxy", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	listen := fs.String("listen", "", "listen address (overrides config)")
	allowAnyKey := fs.Bool("allow-any-key", false, "skip API key validation (local/dev only)")
	if err := fs.Parse(args); err != nil {
		return errs.Wrap(errs.KindInvalidParameters, "parse flags", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return errs.Wrap(errs.KindInternal, "load config", err)
	}
	store := credstore.New(cfg.Auth.CredentialStorePath)
	reg := buildRegistry(cfg, store)

	pcfg := proxy.Config{
		Listen:      cfg.Proxy.ListenAddr,
		AdminSocket: cfg.Proxy.AdminSocket,
		AllowAnyKey: *allowAnyKey,
	}
	if *listen != "" {
		pcfg.Listen = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("codeforge proxy listening on %s\n", pcfg.Listen)
	return proxy.Run(ctx, pcfg, reg)
}

// runProbe checks whether model is reachable through a running proxy's
// /v1/models listing, the client-side equivalent of the teacher's
// single-model /v1/models/<id> lookup (internal/proxy only exposes the
// list form, so probe filters it client-side instead).
func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	url := fs.String("url", "http://127.0.0.1:8787", "proxy URL")
	apiKey := fs.String("key", "", "API key (or set CODEFORGE_API_KEY)")
	jsonOutput := fs.Bool("json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return errs.Wrap(errs.KindInvalidParameters, "parse flags", err)
	}
	if fs.NArg() < 1 {
		return errs.New(errs.KindInvalidParameters, "usage: codeforge probe <model> [--url URL] [--key KEY] [--json]")
	}
	model := fs.Arg(0)

	key := *apiKey
	if key == "" {
		key = os.Getenv("CODEFORGE_API_KEY")
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*url, "/")+"/v1/models", nil)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "build request", err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindIO, "request proxy", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.KindIO, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.KindExecutionFailed, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var listing proxy.OpenAIModelsResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return errs.Wrap(errs.KindInternal, "parse response", err)
	}

	for _, m := range listing.Data {
		if m.ID == model {
			if *jsonOutput {
				out, _ := json.Marshal(m)
				fmt.Println(string(out))
			} else {
				fmt.Printf("OK: %s (owned by %s)\n", m.ID, m.OwnedBy)
			}
			return nil
		}
	}

	if *jsonOutput {
		fmt.Printf(`{"status":"not_found","model":%q}`+"\n", model)
	} else {
		fmt.Printf("ERROR: model %q not found\n", model)
	}
	os.Exit(1)
	return nil
}

// runAliases implements the "aliases" subcommand: list the configured
// alias → model-id mapping, or update it by querying every configured
// provider for its latest model list, matching the teacher's
// runAliasesList/runAliasesUpdate split (cmd/godex/main.go) but
// resolving through internal/registry.Registry instead of a
// per-backend ModelLister map.
func runAliases(args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		return runAliasesList(args[1:])
	case "update":
		return runAliasesUpdate(args[1:])
	default:
		return errs.New(errs.KindInvalidParameters, "unknown aliases command: "+args[0]+" (use 'list' or 'update')")
	}
}

func runAliasesList(args []string) error {
	fs := flag.NewFlagSet("aliases list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return errs.Wrap(errs.KindInvalidParameters, "parse flags", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return errs.Wrap(errs.KindInternal, "load config", err)
	}
	if len(cfg.Proxy.Aliases) == 0 {
		fmt.Println("no aliases configured")
		return nil
	}

	keys := make([]string, 0, len(cfg.Proxy.Aliases))
	for k := range cfg.Proxy.Aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-12s -> %s\n", k, cfg.Proxy.Aliases[k])
	}
	return nil
}

func runAliasesUpdate(args []string) error {
	fs := flag.NewFlagSet("aliases update", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dryRun := fs.Bool("dry-run", false, "show what would change without writing")
	if err := fs.Parse(args); err != nil {
		return errs.Wrap(errs.KindInvalidParameters, "parse flags", err)
	}

	configPath := config.DefaultPath()
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "load config", err)
	}
	store := credstore.New(cfg.Auth.CredentialStorePath)
	reg := buildRegistry(cfg, store)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	current := cfg.Proxy.Aliases
	if current == nil {
		current = map[string]string{}
	}

	results := aliases.Resolve(ctx, reg, current, nil)
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(os.Stderr, "warning: %s: %s\n", r.Alias, r.Error)
		}
	}
	n := aliases.ApplyResolutions(current, results)
	if n == 0 {
		fmt.Println("no alias changes")
		return nil
	}
	if *dryRun {
		fmt.Printf("would update %d alias(es)\n", n)
		return nil
	}
	if err := config.UpdateAliases(configPath, current); err != nil {
		return errs.Wrap(errs.KindIO, "save aliases", err)
	}
	fmt.Printf("synced %d alias(es)\n", n)
	return nil
}
