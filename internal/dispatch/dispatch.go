// Package dispatch translates oracle action proposals into concrete tool
// invocation requests. The catalog is closed: an action the registry does not
// know produces an unsupported sentinel rather than an error, so a single bad
// proposal never aborts an iteration.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
)

// builder turns validated arguments into a shell command line. It may return
// a validation message instead when a required argument is missing.
type builder func(r *Registry, args map[string]interface{}) (cmd string, cred *schemas.Credential, vErr string)

// Registry maps action names onto command builders. A zero target falls back
// to defaultTarget so proposals may omit it.
type Registry struct {
	logger        *zap.Logger
	defaultTarget string
	builders      map[string]builder
}

// NewRegistry builds the full action catalog for one engagement target.
func NewRegistry(logger *zap.Logger, defaultTarget string) *Registry {
	r := &Registry{
		logger:        logger.Named("dispatch"),
		defaultTarget: defaultTarget,
	}
	r.builders = map[string]builder{
		"nmap_scan":     (*Registry).buildNmap,
		"gobuster_scan": (*Registry).buildGobuster,
		"curl_request":  (*Registry).buildCurl,
		"nikto_scan":    (*Registry).buildNikto,
		"ssh_connect":   (*Registry).buildSSH,
		"ftp_connect":   (*Registry).buildFTP,
		"read_file":     (*Registry).buildReadFile,
		"bash_command":  (*Registry).buildBash,
	}
	return r
}

// Actions returns the catalog's action names, internal ones included.
func (r *Registry) Actions() []string {
	names := make([]string, 0, len(r.builders)+1)
	for name := range r.builders {
		names = append(names, name)
	}
	return append(names, "record_flag")
}

// Dispatch resolves one proposal into an invocation request. It never returns
// an error: unknown actions and missing required arguments are reported as
// fields on the request so the caller can log and move on.
func (r *Registry) Dispatch(p schemas.ActionProposal) schemas.InvocationRequest {
	req := schemas.InvocationRequest{
		ID:     uuid.NewString(),
		Action: p.Name,
	}
	if p.Name == "record_flag" {
		req.Internal = true
		req.Flag = stringArg(p.Args, "flag", "")
		if req.Flag == "" {
			req.ValidationError = "record_flag requires a flag argument"
		}
		return req
	}

	build, ok := r.builders[p.Name]
	if !ok {
		r.logger.Warn("unsupported action proposed", zap.String("action", p.Name))
		req.Unsupported = true
		return req
	}

	cmd, cred, vErr := build(r, p.Args)
	if vErr != "" {
		r.logger.Warn("proposal failed validation",
			zap.String("action", p.Name),
			zap.String("reason", vErr))
		req.ValidationError = vErr
		return req
	}
	req.Command = cmd
	req.Credential = cred
	r.logger.Debug("dispatched action",
		zap.String("action", p.Name),
		zap.String("command", cmd))
	return req
}

func (r *Registry) target(args map[string]interface{}) string {
	return stringArg(args, "target", r.defaultTarget)
}

// scanProfiles mirrors the usual nmap presets. Unknown types fall back to
// default.
var scanProfiles = map[string]string{
	"quick":   "-T4 -F",
	"default": "-sV -sC",
	"full":    "-sV -sC -p-",
	"stealth": "-sS -T2",
	"vuln":    "--script vuln",
	"udp":     "-sU --top-ports 100",
}

func (r *Registry) buildNmap(args map[string]interface{}) (string, *schemas.Credential, string) {
	profile, ok := scanProfiles[stringArg(args, "scan_type", "default")]
	if !ok {
		profile = scanProfiles["default"]
	}
	ports := stringArg(args, "ports", "1-1000")
	flags := profile
	if !strings.Contains(profile, "-p-") && !strings.Contains(profile, "--top-ports") {
		flags = fmt.Sprintf("%s -p %s", profile, ports)
	}
	return fmt.Sprintf("nmap %s %s", flags, r.target(args)), nil, ""
}

func (r *Registry) buildGobuster(args map[string]interface{}) (string, *schemas.Credential, string) {
	url := stringArg(args, "url", "")
	if url == "" {
		url = "http://" + r.target(args)
	}
	wordlist := stringArg(args, "wordlist", "/usr/share/wordlists/dirb/common.txt")
	ext := stringArg(args, "extensions", "php,html,txt")
	return fmt.Sprintf("gobuster dir -u %s -w %s -x %s -q", url, wordlist, ext), nil, ""
}

func (r *Registry) buildCurl(args map[string]interface{}) (string, *schemas.Credential, string) {
	url := stringArg(args, "url", "")
	if url == "" {
		return "", nil, "curl_request requires a url argument"
	}
	method := strings.ToUpper(stringArg(args, "method", "GET"))
	cmd := fmt.Sprintf("curl -s -i -X %s", method)
	if data := stringArg(args, "data", ""); data != "" {
		cmd += fmt.Sprintf(" -d %q", data)
	}
	if hdr := stringArg(args, "headers", ""); hdr != "" {
		cmd += fmt.Sprintf(" -H %q", hdr)
	}
	return cmd + " " + url, nil, ""
}

func (r *Registry) buildNikto(args map[string]interface{}) (string, *schemas.Credential, string) {
	port := stringArg(args, "port", "80")
	return fmt.Sprintf("nikto -h %s -p %s -nointeractive", r.target(args), port), nil, ""
}

func (r *Registry) buildSSH(args map[string]interface{}) (string, *schemas.Credential, string) {
	host := stringArg(args, "host", r.defaultTarget)
	user := stringArg(args, "username", "")
	if host == "" {
		return "", nil, "ssh_connect requires a host argument"
	}
	if user == "" {
		return "", nil, "ssh_connect requires a username argument"
	}
	pass := stringArg(args, "password", "")
	remote := stringArg(args, "command", "id; hostname; ls -la")
	cmd := fmt.Sprintf("sshpass -p %q ssh -o StrictHostKeyChecking=no -o ConnectTimeout=10 %s@%s %q",
		pass, user, host, remote)
	return cmd, &schemas.Credential{Host: host, User: user, Password: pass}, ""
}

func (r *Registry) buildFTP(args map[string]interface{}) (string, *schemas.Credential, string) {
	host := stringArg(args, "host", r.defaultTarget)
	if host == "" {
		return "", nil, "ftp_connect requires a host argument"
	}
	user := stringArg(args, "username", "anonymous")
	pass := stringArg(args, "password", "anonymous@")
	cmd := fmt.Sprintf("curl -s --connect-timeout 10 --user %s:%s ftp://%s/", user, pass, host)
	return cmd, &schemas.Credential{Host: host, User: user, Password: pass}, ""
}

func (r *Registry) buildReadFile(args map[string]interface{}) (string, *schemas.Credential, string) {
	path := stringArg(args, "path", "")
	if path == "" {
		return "", nil, "read_file requires a path argument"
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return fmt.Sprintf("curl -s %s", path), nil, ""
	}
	return fmt.Sprintf("cat %q", path), nil, ""
}

func (r *Registry) buildBash(args map[string]interface{}) (string, *schemas.Credential, string) {
	cmd := stringArg(args, "command", "")
	if cmd == "" {
		return "", nil, "bash_command requires a command argument"
	}
	return cmd, nil, ""
}

// stringArg tolerates the loose typing of oracle JSON: numbers and booleans
// are rendered with fmt, nil and absent keys yield the fallback.
func stringArg(args map[string]interface{}, key, fallback string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return fallback
		}
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
