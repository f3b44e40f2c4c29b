package cliutils

import (
	"log"

	"github.com/lexcodex/aicode/agent"
	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/internal/config"
	"github.com/lexcodex/aicode/llm"
	"github.com/lexcodex/aicode/persistence"
	"github.com/lexcodex/aicode/tools"
)

// Runtime is the wired service graph. Close releases the language servers
// and the session store.
type Runtime struct {
	Workspace  string
	ConfigPath string
	Config     config.Config

	Policy   *framework.SafetyPolicy
	Registry *framework.Registry
	Executor *framework.Executor
	Audit    *framework.MemoryAuditLog
	Client   *llm.Client
	Session  *agent.Session
	Store    persistence.SessionStore

	// ContextText is the aicode.md content folded into the system prompt.
	ContextText string
	// CustomSkipped names manifest tools dropped over builtin collisions.
	CustomSkipped []string

	runner  framework.CommandRunner
	symbols *tools.RoutingSymbolProvider
}

// Bootstrap builds the runtime for the resolved environment. The session
// store and language servers degrade to absent on failure; only a broken
// config or workspace is fatal.
func Bootstrap(opts Options) (*Runtime, error) {
	env, err := ResolveEnv(opts)
	if err != nil {
		return nil, err
	}
	cfg := env.Config

	policy, err := framework.NewSafetyPolicy(env.Workspace, cfg.Settings.SafeMode)
	if err != nil {
		return nil, err
	}
	runner := &framework.ShellRunner{}

	var routing *tools.RoutingSymbolProvider
	var symbols tools.SymbolProvider
	if opts.StartLSP && cfg.LSP.Enabled && len(cfg.LSP.Servers) > 0 {
		routing = tools.NewRoutingSymbolProvider(env.Workspace, cfg.LSP.Servers)
		symbols = routing
	}

	reg, _, skipped, err := BuildToolRegistry(cfg, policy, runner, env.Workspace, symbols)
	if err != nil {
		return nil, err
	}

	audit := framework.NewMemoryAuditLog(0)
	exec := framework.NewExecutor(reg, policy)
	exec.Audit = audit

	client := NewChatClient(cfg)

	contextText, err := agent.LoadContextFile(env.Workspace)
	if err != nil {
		log.Printf("[session] context file skipped: %v", err)
		contextText = ""
	}
	cm := framework.NewContextManager(agent.BuildSystemPrompt(reg, contextText), cfg.Settings.RetainRecent)
	budget := framework.ContextBudget{
		Limit:   cfg.Settings.ContextLength,
		Reserve: cfg.Settings.MaxTokens,
	}

	sess := agent.NewSession(cm, budget, exec, client)
	sess.Endpoint = cfg.EndpointURL()
	sess.ModelName = cfg.Model

	rt := &Runtime{
		Workspace:     env.Workspace,
		ConfigPath:    env.ConfigPath,
		Config:        cfg,
		Policy:        policy,
		Registry:      reg,
		Executor:      exec,
		Audit:         audit,
		Client:        client,
		Session:       sess,
		ContextText:   contextText,
		CustomSkipped: skipped,
		runner:        runner,
		symbols:       routing,
	}

	if opts.OpenStore {
		store, err := persistence.NewSQLiteSessionStore(SessionDBPath(env.Workspace))
		if err != nil {
			log.Printf("[session] session store unavailable: %v", err)
		} else {
			rt.Store = store
		}
	}
	return rt, nil
}

// ReloadTools rebuilds the registry from builtins plus the custom manifest
// and swaps it into the executor. The caller re-renders the system prompt.
func (rt *Runtime) ReloadTools() ([]string, []string, error) {
	var symbols tools.SymbolProvider
	if rt.symbols != nil {
		symbols = rt.symbols
	}
	reg, added, skipped, err := BuildToolRegistry(rt.Config, rt.Policy, rt.runner, rt.Workspace, symbols)
	if err != nil {
		return nil, nil, err
	}
	rt.Registry = reg
	rt.Executor.Registry = reg
	rt.CustomSkipped = skipped
	return added, skipped, nil
}

// RestoreSession applies a stored snapshot to the runtime: history, model
// client, and the active config selection.
func (rt *Runtime) RestoreSession(snap *persistence.SessionSnapshot) error {
	if err := rt.Session.Import(snap); err != nil {
		return err
	}
	if snap.Endpoint != "" && snap.Model != "" {
		client := llm.NewClient(snap.Endpoint, snap.Model)
		client.Temperature = rt.Config.Settings.Temperature
		client.MaxTokens = rt.Config.Settings.MaxTokens
		client.SetTimeout(rt.Config.Settings.Timeout())
		client.SetDebugLogging(rt.Config.Settings.Debug)
		rt.Client = client
		rt.Session.Client = client
		rt.Config.Model = snap.Model
		for name, url := range rt.Config.Endpoints {
			if url == snap.Endpoint {
				rt.Config.ActiveEndpoint = name
				break
			}
		}
	}
	return nil
}

// Close shuts down the language servers and the session store.
func (rt *Runtime) Close() error {
	var first error
	if rt.symbols != nil {
		if err := rt.symbols.Close(); err != nil {
			first = err
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
