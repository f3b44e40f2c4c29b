package framework

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SafetyPolicy bounds what tools may touch. Root is the workspace directory
// file tools are confined to; AllowedRoots extends it with additional
// absolute prefixes (read-only data directories and the like). SafeMode
// gates confirm-required tools behind a user prompt.
type SafetyPolicy struct {
	SafeMode     bool
	Root         string
	AllowedRoots []string
}

// NewSafetyPolicy resolves root to an absolute path and returns the policy.
func NewSafetyPolicy(root string, safeMode bool) (*SafetyPolicy, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, NewToolError(FailureInternal, "resolve workspace root: %v", err)
	}
	return &SafetyPolicy{SafeMode: safeMode, Root: filepath.Clean(abs)}, nil
}

// ResolvePath maps a tool-supplied path onto the filesystem, rejecting
// anything that escapes the workspace root via traversal segments or an
// absolute reference outside the allow-list. The returned path is absolute
// and cleaned; no I/O is performed beyond the check itself.
func (p *SafetyPolicy) ResolvePath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", NewToolError(FailureInvalidArguments, "path must not be empty")
	}
	abs := raw
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.Root, abs)
	}
	abs = filepath.Clean(abs)
	if p.contains(abs) {
		return abs, nil
	}
	return "", NewToolError(FailurePathViolation, "path %s escapes workspace %s", raw, p.Root)
}

func (p *SafetyPolicy) contains(abs string) bool {
	roots := append([]string{p.Root}, p.AllowedRoots...)
	for _, root := range roots {
		if root == "" {
			continue
		}
		if abs == root || strings.HasPrefix(abs, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// CheckCommand rejects commands matching the destructive deny list before
// any process is spawned. The returned error carries FailureCommandBlocked.
func (p *SafetyPolicy) CheckCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return NewToolError(FailureInvalidArguments, "command must not be empty")
	}
	if base := commandBase(trimmed); base != "" {
		if _, blocked := blockedBasenames[base]; blocked {
			return NewToolError(FailureCommandBlocked, "command blocked by safety filter: %s", base)
		}
	}
	for _, pat := range denyPatterns {
		if pat.MatchString(trimmed) {
			return NewToolError(FailureCommandBlocked, "command blocked by safety filter: %s", trimmed)
		}
	}
	return nil
}

func commandBase(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

// blockedBasenames refuse privilege escalation outright regardless of
// arguments.
var blockedBasenames = map[string]struct{}{
	"sudo":   {},
	"su":     {},
	"passwd": {},
}

// denyPatterns match command classes destructive enough to refuse before
// any confirmation prompt. Compiled once at package init; the list errs on
// the side of blocking.
var denyPatterns = []*regexp.Regexp{
	// recursive force-delete of root or everything
	regexp.MustCompile(`\brm\s+(-[^\s]*)?-r[^\s]*f[^\s]*\s+/\s*$`),
	regexp.MustCompile(`\brm\s+(-[^\s]*)?-f[^\s]*r[^\s]*\s+/\s*$`),
	regexp.MustCompile(`\brm\s+-rf\s+/`),
	regexp.MustCompile(`\brm\s+-fr\s+/`),
	regexp.MustCompile(`\brm\s+-rf\s+\*`),
	// dd with an input source can overwrite anything
	regexp.MustCompile(`\bdd\s+if=`),
	// fork bomb
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`),
	// power control
	regexp.MustCompile(`\b(shutdown|reboot|poweroff|halt|init\s+[06])\b`),
	// filesystem creation / formatting
	regexp.MustCompile(`\b(mkfs|mkfs\.\w+|format)\b`),
	// raw writes to block devices
	regexp.MustCompile(`>\s*/dev/(sd|nvme|vd|hd|mmcblk)`),
	// recursive permission changes on root
	regexp.MustCompile(`\bchmod\s+-R\s+\S+\s+/\s*$`),
	regexp.MustCompile(`\bchown\s+-R\s+\S+\s+/\s*$`),
	// wiping partition tables
	regexp.MustCompile(`\bwipefs\b.*-a\b`),
	regexp.MustCompile(`\bsgdisk\b.*--zap-all\b`),
	// filling disks
	regexp.MustCompile(`\byes\b.*>\s*/dev/`),
	regexp.MustCompile(`\bcat\s+/dev/(zero|urandom)\s*>\s*/dev/`),
}
